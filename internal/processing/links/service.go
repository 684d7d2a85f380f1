package links

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const defaultMaxAttempts = 10

// Codes that would be shadowed by fixed routes of the same length.
var reservedCodes = map[string]struct{}{
	"health": {},
}

type Service struct {
	linkRepo    LinkRepository
	codes       CodeGenerator
	publisher   ClickPublisher
	schemes     map[string]struct{}
	maxAttempts int
	now         func() time.Time
}

type Option func(*Service)

// WithMaxAttempts bounds how many generated codes CreateShortURL tries before
// giving up with ErrExhausted.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithClickPublisher routes RecordClick through p instead of the repository.
func WithClickPublisher(p ClickPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func NewService(linkRepo LinkRepository, codes CodeGenerator, validSchemes []string, opts ...Option) *Service {
	schemes := make(map[string]struct{}, len(validSchemes))
	for _, scheme := range validSchemes {
		scheme = strings.ToLower(strings.TrimSpace(scheme))
		if scheme != "" {
			schemes[scheme] = struct{}{}
		}
	}

	s := &Service{
		linkRepo:    linkRepo,
		codes:       codes,
		schemes:     schemes,
		maxAttempts: defaultMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateShortURL returns the code for originalURL owned by ownerID, minting a
// new one unless the owner already shortened the same URL. The dedup lookup
// and the insert are not atomic: two concurrent requests for the same pair can
// both create a link.
func (s *Service) CreateShortURL(ctx context.Context, originalURL string, ownerID uint64) (string, error) {
	if err := s.validateURL(originalURL); err != nil {
		return "", err
	}

	existing, err := s.linkRepo.FindByOwnerAndURL(ctx, ownerID, originalURL)
	if err == nil {
		return existing.ShortCode, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("lookup existing link: %w", err)
	}

	link := &Link{
		OriginalURL: originalURL,
		CreatedBy:   ownerID,
		CreatedAt:   s.now().UTC(),
	}

	for range s.maxAttempts {
		code, err := s.codes.Generate()
		if err != nil {
			return "", fmt.Errorf("generate short code: %w", err)
		}
		if _, reserved := reservedCodes[code]; reserved {
			continue
		}
		link.ShortCode = code

		if err := s.linkRepo.Insert(ctx, link); err != nil {
			if errors.Is(err, ErrCodeTaken) {
				continue
			}
			return "", fmt.Errorf("insert link: %w", err)
		}

		return link.ShortCode, nil
	}

	return "", ErrExhausted
}

// GetOriginalURL reports false when no link uses code.
func (s *Service) GetOriginalURL(ctx context.Context, code string) (string, bool, error) {
	if !IsShortCode(code) {
		return "", false, nil
	}

	link, err := s.linkRepo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}

	return link.OriginalURL, true, nil
}

// GetUserURLs lists the owner's links, newest first.
func (s *Service) GetUserURLs(ctx context.Context, ownerID uint64) ([]Link, error) {
	out, err := s.linkRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Link{}
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, code string, requesterID uint64) (DeleteOutcome, error) {
	link, err := s.linkRepo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return DeleteOutcomeNotFound, nil
		}
		return 0, err
	}
	if link.CreatedBy != requesterID {
		return DeleteOutcomeForbidden, nil
	}

	deleted, err := s.linkRepo.DeleteByCodeAndOwner(ctx, code, requesterID)
	if err != nil {
		return 0, err
	}
	if !deleted {
		// Removed between the lookup and the delete.
		return DeleteOutcomeNotFound, nil
	}
	return DeleteOutcomeDeleted, nil
}

// DeleteURL collapses Delete into "did a deletion happen".
func (s *Service) DeleteURL(ctx context.Context, code string, requesterID uint64) (bool, error) {
	outcome, err := s.Delete(ctx, code, requesterID)
	if err != nil {
		return false, err
	}
	return outcome == DeleteOutcomeDeleted, nil
}

func (s *Service) IncrementClick(ctx context.Context, code string) error {
	return s.ApplyClick(ctx, code, s.now())
}

// ApplyClick bumps the counter and stamps lastAccessed with at. Unknown codes
// are ignored.
func (s *Service) ApplyClick(ctx context.Context, code string, at time.Time) error {
	if strings.TrimSpace(code) == "" {
		return nil
	}
	return s.linkRepo.IncrementClick(ctx, code, at.UTC())
}

// RecordClick is called from the redirect path.
func (s *Service) RecordClick(ctx context.Context, code string) error {
	if strings.TrimSpace(code) == "" {
		return nil
	}
	if s.publisher != nil {
		return s.publisher.PublishClick(ctx, code, s.now().UTC())
	}
	return s.IncrementClick(ctx, code)
}

func (s *Service) validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return ErrInvalidURL
	}
	if _, ok := s.schemes[strings.ToLower(u.Scheme)]; !ok {
		return ErrInvalidURL
	}
	if strings.TrimSpace(u.Host) == "" && (u.Opaque == "" || requiresHost(u.Scheme)) {
		return ErrInvalidURL
	}

	return nil
}

// requiresHost reports schemes whose URLs must carry an authority. Without
// one, "http:example.com" resolves against whatever page follows the redirect.
func requiresHost(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "http", "https", "ftp", "ftps", "ws", "wss":
		return true
	}
	return false
}
