package links

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound   = errors.New("link not found")
	ErrInvalidURL = errors.New("invalid url")
	ErrCodeTaken  = errors.New("short code taken")
	ErrExhausted  = errors.New("short code attempts exhausted")
)

type LinkRepository interface {
	Insert(ctx context.Context, link *Link) error
	FindByCode(ctx context.Context, code string) (*Link, error)
	FindByOwnerAndURL(ctx context.Context, owner uint64, originalURL string) (*Link, error)
	ListByOwner(ctx context.Context, owner uint64) ([]Link, error)
	DeleteByCodeAndOwner(ctx context.Context, code string, owner uint64) (bool, error)
	IncrementClick(ctx context.Context, code string, at time.Time) error
}

type CodeGenerator interface {
	Generate() (string, error)
}

// ClickPublisher hands a click off to an asynchronous pipeline instead of
// writing the counter inline.
type ClickPublisher interface {
	PublishClick(ctx context.Context, code string, at time.Time) error
}
