package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRecorder struct {
	pool *pgxpool.Pool
}

func NewPostgresRecorder(pool *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{pool: pool}
}

func (r *PostgresRecorder) Record(ctx context.Context, entry Entry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO audit_entries (id, action, username, outcome, reason, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.Action, entry.Username, entry.Outcome, entry.Reason, entry.OccurredAt)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, action, username, outcome, reason, occurred_at
		 FROM audit_entries
		 ORDER BY occurred_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.Username, &entry.Outcome, &entry.Reason, &entry.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
