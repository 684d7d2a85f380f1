package links

import (
	"crypto/rand"
)

const (
	CodeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	CodeLength   = 6
)

// Largest multiple of len(CodeAlphabet) that fits in a byte. Bytes at or above
// it are rejected so every symbol keeps the same probability.
const maxUnbiasedByte = 256 - 256%len(CodeAlphabet)

type CryptoCodeGenerator struct{}

func NewCryptoCodeGenerator() *CryptoCodeGenerator { return &CryptoCodeGenerator{} }

func (g *CryptoCodeGenerator) Generate() (string, error) {
	out := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength*2)

	for len(out) < CodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= maxUnbiasedByte {
				continue
			}
			out = append(out, CodeAlphabet[int(b)%len(CodeAlphabet)])
			if len(out) == CodeLength {
				break
			}
		}
	}

	return string(out), nil
}

// IsShortCode reports whether s has the shape of a generated code.
func IsShortCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
