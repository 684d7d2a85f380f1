package accounts

import (
	"net/url"
	"unicode"
)

const DefaultLanding = "/"

// SafeReturnPath returns state when it is a same-origin relative path and
// DefaultLanding otherwise.
func SafeReturnPath(state string) string {
	if isLocalPath(state) {
		return state
	}
	return DefaultLanding
}

func isLocalPath(p string) bool {
	if p == "" || p[0] != '/' {
		return false
	}
	// "//host" and "/\host" are treated as network paths by browsers.
	if len(p) > 1 && (p[1] == '/' || p[1] == '\\') {
		return false
	}
	for _, r := range p {
		if r == '\\' || unicode.IsControl(r) || unicode.IsSpace(r) {
			return false
		}
	}

	u, err := url.Parse(p)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == "" && u.User == nil
}
