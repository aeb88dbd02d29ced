package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/edubot/internal/core"
	"github.com/sandevgo/edubot/pkg/log"
)

type ThreadsRepo struct {
	db *sql.DB
}

func NewThreadsRepo(db *sql.DB) *ThreadsRepo {
	return &ThreadsRepo{db: db}
}

func (r *ThreadsRepo) FindThread(ctx context.Context, platform, name string) (core.Thread, error) {
	var (
		t         core.Thread
		createdAt int64
	)
	query := `SELECT id, platform, name, created_at FROM threads WHERE platform = ? AND name = ?`
	err := r.db.QueryRowContext(ctx, query, platform, name).Scan(&t.ID, &t.Platform, &t.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Thread{}, core.ErrNotFound
	}
	if err != nil {
		return core.Thread{}, fmt.Errorf("failed to query thread: %w", err)
	}
	t.CreatedAt = fromUnix(createdAt)
	return t, nil
}

// GetOrCreateThread relies on the (platform, name) constraint: a caller that
// loses a concurrent insert re-reads the winner's row.
func (r *ThreadsRepo) GetOrCreateThread(ctx context.Context, platform, name string) (core.Thread, error) {
	t, err := r.FindThread(ctx, platform, name)
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.Thread{}, err
	}

	now := time.Now()
	query := `INSERT INTO threads (platform, name, created_at) VALUES (?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, platform, name, toUnix(now))
	if err != nil {
		if isUniqueViolation(err) {
			log.FromCtx(ctx).Debug().Str("platform", platform).Str("thread", name).Msg("thread created concurrently, re-reading")
			return r.FindThread(ctx, platform, name)
		}
		return core.Thread{}, fmt.Errorf("failed to insert thread: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Thread{}, err
	}

	log.FromCtx(ctx).Debug().Int64("id", id).Str("platform", platform).Str("thread", name).Msg("created thread")
	return core.Thread{ID: id, Platform: platform, Name: name, CreatedAt: fromUnix(toUnix(now))}, nil
}
