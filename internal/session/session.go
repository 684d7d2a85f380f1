// Package session keeps the signed-in identity in a signed cookie.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/IgorGrieder/short-url/internal/processing/accounts"
	"github.com/golang-jwt/jwt/v5"
)

const CookieName = "short_url_session"

var ErrNoSession = errors.New("no session")

type Options struct {
	Secret string
	TTL    time.Duration
	Issuer string
	Secure bool
}

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Manager issues and verifies HS256 session tokens. A token past half its
// lifetime is re-issued on read, so an active user stays signed in.
type Manager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	secure bool
	now    func() time.Time
}

func NewManager(opts Options) (*Manager, error) {
	if len(opts.Secret) < 16 {
		return nil, errors.New("session secret must be at least 16 characters")
	}
	if opts.TTL <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	return &Manager{
		secret: []byte(opts.Secret),
		ttl:    opts.TTL,
		issuer: opts.Issuer,
		secure: opts.Secure,
		now:    time.Now,
	}, nil
}

// Issue signs a fresh token for id and sets it as the session cookie.
func (m *Manager) Issue(w http.ResponseWriter, id accounts.Identity) error {
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(id.AccountID, 10),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return fmt.Errorf("sign session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    signed,
		Path:     "/",
		Expires:  now.Add(m.ttl),
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Load returns the identity carried by the request's session cookie and
// renews the cookie when it has passed half of its lifetime.
func (m *Manager) Load(w http.ResponseWriter, r *http.Request) (accounts.Identity, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return accounts.Identity{}, ErrNoSession
	}

	c, err := m.parse(cookie.Value)
	if err != nil {
		return accounts.Identity{}, err
	}

	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return accounts.Identity{}, fmt.Errorf("session subject %q: %w", c.Subject, ErrNoSession)
	}
	identity := accounts.Identity{AccountID: id, Email: c.Email}

	if c.ExpiresAt.Sub(m.now()) < m.ttl/2 {
		if err := m.Issue(w, identity); err != nil {
			return accounts.Identity{}, err
		}
	}
	return identity, nil
}

func (m *Manager) parse(raw string) (*claims, error) {
	token, err := jwt.ParseWithClaims(raw, &claims{},
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, ErrNoSession
	}
	return c, nil
}

// Clear expires the session cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

type contextKey struct{}

func WithIdentity(ctx context.Context, id accounts.Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func IdentityFromContext(ctx context.Context) (accounts.Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(accounts.Identity)
	return id, ok && id.AccountID != 0
}
