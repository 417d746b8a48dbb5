package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres keeps the session entries in a small key-value table so that a
// console restart, or a second console instance pointed at the same
// database, sees the same single session.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := p.pool.QueryRow(ctx,
		`SELECT value FROM session_entries WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get session entry: %w", err)
	}
	return value, nil
}

func (p *Postgres) Set(ctx context.Context, key string, value string) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO session_entries (key, value, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = $3`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set session entry: %w", err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM session_entries WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete session entry: %w", err)
	}
	return nil
}

func (p *Postgres) Clear(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM session_entries`)
	if err != nil {
		return fmt.Errorf("clear session entries: %w", err)
	}
	return nil
}
