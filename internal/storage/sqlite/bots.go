package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sandevgo/edubot/internal/core"
)

type BotsRepo struct {
	db *sql.DB
}

func NewBotsRepo(db *sql.DB) *BotsRepo {
	return &BotsRepo{db: db}
}

func (r *BotsRepo) FindBot(ctx context.Context, username, platform string) (core.Bot, error) {
	var b core.Bot
	query := `SELECT id, username, platform FROM bots WHERE username = ? AND platform = ?`
	err := r.db.QueryRowContext(ctx, query, username, platform).Scan(&b.ID, &b.Username, &b.Platform)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Bot{}, core.ErrNotFound
	}
	if err != nil {
		return core.Bot{}, fmt.Errorf("failed to query bot: %w", err)
	}
	return b, nil
}

func (r *BotsRepo) GetOrCreateBot(ctx context.Context, username, platform string) (core.Bot, error) {
	b, err := r.FindBot(ctx, username, platform)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.Bot{}, err
	}

	res, err := r.db.ExecContext(ctx, `INSERT INTO bots (username, platform) VALUES (?, ?)`, username, platform)
	if err != nil {
		if isUniqueViolation(err) {
			return r.FindBot(ctx, username, platform)
		}
		return core.Bot{}, fmt.Errorf("failed to insert bot: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Bot{}, err
	}
	return core.Bot{ID: id, Username: username, Platform: platform}, nil
}
