package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SyncStateRepo keeps small per-account transport cursors, such as sync
// tokens, across restarts.
type SyncStateRepo struct {
	db *sql.DB
}

func NewSyncStateRepo(db *sql.DB) *SyncStateRepo {
	return &SyncStateRepo{db: db}
}

func (r *SyncStateRepo) Save(ctx context.Context, owner, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_state (owner, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(owner, key) DO UPDATE SET value = excluded.value
	`, owner, key, value)
	if err != nil {
		return fmt.Errorf("failed to save sync state %s: %w", key, err)
	}
	return nil
}

// Load returns "" when nothing was saved yet.
func (r *SyncStateRepo) Load(ctx context.Context, owner, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM sync_state WHERE owner = ? AND key = ?`,
		owner, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load sync state %s: %w", key, err)
	}
	return value, nil
}
