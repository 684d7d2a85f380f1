package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/IgorGrieder/short-url/internal/infrastructure/db"
	"github.com/IgorGrieder/short-url/internal/processing/accounts"
	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accountsTable = "accounts"

type AccountsRepository struct {
	pool *pgxpool.Pool
	sb   squirrel.StatementBuilderType
}

func NewAccountsRepository(p *db.Postgres) (*AccountsRepository, error) {
	if p == nil || p.Pool == nil {
		return nil, errors.New("postgres pool is nil")
	}
	return &AccountsRepository{
		pool: p.Pool,
		sb:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

func (r *AccountsRepository) FindByID(ctx context.Context, id uint64) (*accounts.Account, error) {
	query, args, err := r.sb.
		Select("id", "email", "created_at").
		From(accountsTable).
		Where(squirrel.Eq{"id": int64(id)}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var (
		rawID   int64
		account accounts.Account
	)
	err = r.pool.QueryRow(ctx, query, args...).Scan(&rawID, &account.Email, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, accounts.ErrAccountNotFound
		}
		return nil, err
	}

	account.ID = uint64(rawID)
	account.CreatedAt = account.CreatedAt.UTC()
	return &account, nil
}

func (r *AccountsRepository) Insert(ctx context.Context, account *accounts.Account) error {
	query, args, err := r.sb.
		Insert(accountsTable).
		Columns("id", "email", "created_at").
		Values(int64(account.ID), account.Email, account.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	if _, err := r.pool.Exec(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return accounts.ErrAccountExists
		}
		return err
	}
	return nil
}

var _ accounts.AccountRepository = (*AccountsRepository)(nil)
