package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/IgorGrieder/short-url/internal/infrastructure/db"
	"github.com/IgorGrieder/short-url/internal/processing/links"
	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const linksTable = "links"

var linkColumns = []string{"id", "short_code", "original_url", "created_by", "created_at", "click_count", "last_accessed"}

type LinksRepository struct {
	pool *pgxpool.Pool
	sb   squirrel.StatementBuilderType
}

func NewLinksRepository(p *db.Postgres) (*LinksRepository, error) {
	if p == nil || p.Pool == nil {
		return nil, errors.New("postgres pool is nil")
	}
	return &LinksRepository{
		pool: p.Pool,
		sb:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

func (r *LinksRepository) Insert(ctx context.Context, link *links.Link) error {
	query, args, err := r.sb.
		Insert(linksTable).
		Columns("short_code", "original_url", "created_by", "created_at", "click_count").
		Values(link.ShortCode, link.OriginalURL, int64(link.CreatedBy), link.CreatedAt.UTC(), link.ClickCount).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	var id int64
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return links.ErrCodeTaken
		}
		return err
	}

	link.ID = strconv.FormatInt(id, 10)
	return nil
}

func (r *LinksRepository) FindByCode(ctx context.Context, code string) (*links.Link, error) {
	return r.findOne(ctx, squirrel.Eq{"short_code": code})
}

func (r *LinksRepository) FindByOwnerAndURL(ctx context.Context, owner uint64, originalURL string) (*links.Link, error) {
	return r.findOne(ctx, squirrel.Eq{"created_by": int64(owner), "original_url": originalURL})
}

func (r *LinksRepository) findOne(ctx context.Context, where squirrel.Eq) (*links.Link, error) {
	query, args, err := r.sb.
		Select(linkColumns...).
		From(linksTable).
		Where(where).
		OrderBy("created_at ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	link, err := scanLink(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, links.ErrNotFound
		}
		return nil, err
	}
	return link, nil
}

func (r *LinksRepository) ListByOwner(ctx context.Context, owner uint64) ([]links.Link, error) {
	query, args, err := r.sb.
		Select(linkColumns...).
		From(linksTable).
		Where(squirrel.Eq{"created_by": int64(owner)}).
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]links.Link, 0)
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, *link)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *LinksRepository) DeleteByCodeAndOwner(ctx context.Context, code string, owner uint64) (bool, error) {
	query, args, err := r.sb.
		Delete(linksTable).
		Where(squirrel.Eq{"short_code": code, "created_by": int64(owner)}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *LinksRepository) IncrementClick(ctx context.Context, code string, at time.Time) error {
	query, args, err := r.sb.
		Update(linksTable).
		Set("click_count", squirrel.Expr("click_count + 1")).
		Set("last_accessed", at.UTC()).
		Where(squirrel.Eq{"short_code": code}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	_, err = r.pool.Exec(ctx, query, args...)
	return err
}

func scanLink(row pgx.Row) (*links.Link, error) {
	var (
		id           int64
		createdBy    int64
		lastAccessed *time.Time
		link         links.Link
	)
	if err := row.Scan(&id, &link.ShortCode, &link.OriginalURL, &createdBy, &link.CreatedAt, &link.ClickCount, &lastAccessed); err != nil {
		return nil, err
	}

	link.ID = strconv.FormatInt(id, 10)
	link.CreatedBy = uint64(createdBy)
	link.CreatedAt = link.CreatedAt.UTC()
	if lastAccessed != nil {
		t := lastAccessed.UTC()
		link.LastAccessed = &t
	}
	return &link, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

var _ links.LinkRepository = (*LinksRepository)(nil)
