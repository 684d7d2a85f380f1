package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IgorGrieder/short-url/internal/infrastructure/logger"
	appvalidation "github.com/IgorGrieder/short-url/internal/infrastructure/validation"
	"go.uber.org/zap"
)

// Service drives one login attempt from the authorization redirect to a
// resolved identity. It keeps no state between the two legs: the return path
// travels through the provider as the OAuth state value.
type Service struct {
	repo        AccountRepository
	provider    Provider
	allowSignup bool
	now         func() time.Time
}

func NewService(repo AccountRepository, provider Provider, allowSignup bool) *Service {
	return &Service{
		repo:        repo,
		provider:    provider,
		allowSignup: allowSignup,
		now:         time.Now,
	}
}

// LoginURL builds the provider authorization URL. A non-empty returnURL is
// carried as the state parameter and validated on the way back.
func (s *Service) LoginURL(returnURL string) string {
	return s.provider.AuthCodeURL(strings.TrimSpace(returnURL))
}

// Callback completes the login. Every rejection wraps one of ErrLoginFailed,
// ErrProfileUnavailable, ErrInvalidProfile or ErrRegistrationsClosed; other
// errors come from the account store.
func (s *Service) Callback(ctx context.Context, code, state string) (*CallbackResult, error) {
	if strings.TrimSpace(code) == "" {
		return nil, ErrLoginFailed
	}

	token, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	if token == "" {
		return nil, ErrLoginFailed
	}

	profile, err := s.provider.FetchProfile(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileUnavailable, err)
	}
	if profile == nil {
		return nil, ErrInvalidProfile
	}
	if err := appvalidation.Validate(profile); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}

	account, created, err := s.resolveAccount(ctx, profile)
	if err != nil {
		return nil, err
	}

	return &CallbackResult{
		Identity: Identity{
			AccountID: account.ID,
			Email:     account.Email,
		},
		RedirectTo: SafeReturnPath(state),
		Created:    created,
	}, nil
}

// resolveAccount reuses the stored account untouched, or provisions one when
// signups are open. A concurrent first login for the same id loses the insert
// race and falls back to the winner's record.
func (s *Service) resolveAccount(ctx context.Context, profile *Profile) (*Account, bool, error) {
	id := uint64(profile.ID)

	existing, err := s.repo.FindByID(ctx, id)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, false, fmt.Errorf("find account: %w", err)
	}

	if !s.allowSignup {
		return nil, false, ErrRegistrationsClosed
	}

	account := &Account{
		ID:        id,
		Email:     profile.Email,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, account); err != nil {
		if !errors.Is(err, ErrAccountExists) {
			return nil, false, fmt.Errorf("insert account: %w", err)
		}
		existing, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return nil, false, fmt.Errorf("find account after conflict: %w", err)
		}
		return existing, false, nil
	}

	logger.Info("account provisioned", zap.Uint64("account_id", id))
	return account, true, nil
}

var rejections = []error{
	ErrLoginFailed,
	ErrProfileUnavailable,
	ErrInvalidProfile,
	ErrRegistrationsClosed,
}

// Reason returns the user-facing reason for a login rejection. ok is false
// for errors that are not rejections (store failures and the like).
func Reason(err error) (reason string, ok bool) {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return r.Error(), true
		}
	}
	return "", false
}
