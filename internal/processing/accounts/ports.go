package accounts

import (
	"context"
	"errors"
)

// Rejections surfaced to the user as the reason of an unauthorized response.
var (
	ErrLoginFailed         = errors.New("login cancelled or failed")
	ErrProfileUnavailable  = errors.New("failed to get user information")
	ErrInvalidProfile      = errors.New("invalid external user")
	ErrRegistrationsClosed = errors.New("registrations closed")
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
)

type AccountRepository interface {
	FindByID(ctx context.Context, id uint64) (*Account, error)
	Insert(ctx context.Context, account *Account) error
}

// Provider is the external OAuth2 identity provider.
type Provider interface {
	AuthCodeURL(state string) string
	// Exchange trades an authorization code for an access token.
	Exchange(ctx context.Context, code string) (string, error)
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)
}
