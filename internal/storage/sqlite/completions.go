package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/edubot/internal/core"
)

const completionColumns = `c.id, c.bot_id, c.body, c.reply_to, c.score, c.created_at`

type CompletionsRepo struct {
	db *sql.DB
}

func NewCompletionsRepo(db *sql.DB) *CompletionsRepo {
	return &CompletionsRepo{db: db}
}

func (r *CompletionsRepo) RecordCompletion(ctx context.Context, botID int64, text string, replyToID int64) (core.Completion, error) {
	now := fromUnix(toUnix(time.Now()))
	query := `INSERT INTO completions (bot_id, body, reply_to, score, created_at) VALUES (?, ?, ?, 0, ?)`
	res, err := r.db.ExecContext(ctx, query, botID, text, replyToID, toUnix(now))
	if err != nil {
		return core.Completion{}, fmt.Errorf("failed to insert completion: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Completion{}, err
	}

	return core.Completion{
		ID:        id,
		BotID:     botID,
		Text:      text,
		ReplyToID: replyToID,
		CreatedAt: now,
	}, nil
}

// AdjustScore applies delta in a single statement so concurrent feedback on
// the same completion cannot lose updates.
func (r *CompletionsRepo) AdjustScore(ctx context.Context, completionID int64, delta int) (core.Completion, error) {
	query := `UPDATE completions SET score = score + ? WHERE id = ?
		RETURNING id, bot_id, body, reply_to, score, created_at`
	c, err := scanCompletion(r.db.QueryRowContext(ctx, query, delta, completionID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Completion{}, core.ErrNotFound
	}
	if err != nil {
		return core.Completion{}, fmt.Errorf("failed to update completion score: %w", err)
	}
	return c, nil
}

func (r *CompletionsRepo) FindCandidate(ctx context.Context, q core.CandidateQuery) (core.Completion, error) {
	query := `SELECT ` + completionColumns + `
		FROM completions c
		JOIN messages m ON m.id = c.reply_to
		WHERE c.bot_id = ? AND m.thread_id = ? AND c.body = ?
		  AND m.sent_at > ? AND m.sent_at < ?
		ORDER BY c.id DESC
		LIMIT 1`

	c, err := scanCompletion(r.db.QueryRowContext(ctx, query,
		q.BotID, q.ThreadID, q.Text, toUnix(q.After), toUnix(q.Before)))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Completion{}, core.ErrNotFound
	}
	if err != nil {
		return core.Completion{}, fmt.Errorf("failed to query completion candidate: %w", err)
	}
	return c, nil
}

func (r *CompletionsRepo) CompletionForMessage(ctx context.Context, botID, messageID int64) (core.Completion, error) {
	query := `SELECT ` + completionColumns + `
		FROM completions c
		WHERE c.bot_id = ? AND c.reply_to = ?
		ORDER BY c.id DESC
		LIMIT 1`

	c, err := scanCompletion(r.db.QueryRowContext(ctx, query, botID, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Completion{}, core.ErrNotFound
	}
	if err != nil {
		return core.Completion{}, fmt.Errorf("failed to query completion: %w", err)
	}
	return c, nil
}

func scanCompletion(row rowScanner) (core.Completion, error) {
	var (
		c         core.Completion
		createdAt int64
	)
	if err := row.Scan(&c.ID, &c.BotID, &c.Text, &c.ReplyToID, &c.Score, &createdAt); err != nil {
		return core.Completion{}, err
	}
	c.CreatedAt = fromUnix(createdAt)
	return c, nil
}
