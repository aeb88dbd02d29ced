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

type MessagesRepo struct {
	db *sql.DB
}

func NewMessagesRepo(db *sql.DB) *MessagesRepo {
	return &MessagesRepo{db: db}
}

func (r *MessagesRepo) LookupMessage(ctx context.Context, threadID int64, msg core.IncomingMessage) (core.Message, error) {
	query := `SELECT id, thread_id, username, body, sent_at FROM messages
		WHERE thread_id = ? AND username = ? AND body = ? AND sent_at = ?`
	m, err := scanMessage(r.db.QueryRowContext(ctx, query, threadID, msg.Username, msg.Body, toUnix(msg.SentAt)))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Message{}, core.ErrNotFound
	}
	if err != nil {
		return core.Message{}, fmt.Errorf("failed to query message: %w", err)
	}
	return m, nil
}

// IngestMessage is idempotent on (thread, username, body, sent_at). The unique
// constraint decides; a violation means another caller stored it first.
func (r *MessagesRepo) IngestMessage(ctx context.Context, threadID int64, msg core.IncomingMessage) (core.Message, bool, error) {
	existing, err := r.LookupMessage(ctx, threadID, msg)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return core.Message{}, false, err
	}

	query := `INSERT INTO messages (thread_id, username, body, sent_at) VALUES (?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, threadID, msg.Username, msg.Body, toUnix(msg.SentAt))
	if err != nil {
		if isUniqueViolation(err) {
			existing, err := r.LookupMessage(ctx, threadID, msg)
			return existing, false, err
		}
		return core.Message{}, false, fmt.Errorf("failed to insert message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return core.Message{}, false, err
	}

	log.FromCtx(ctx).Debug().Int64("id", id).Int64("thread_id", threadID).Str("username", msg.Username).Msg("stored message")
	return core.Message{
		ID:       id,
		ThreadID: threadID,
		Username: msg.Username,
		Body:     msg.Body,
		SentAt:   fromUnix(toUnix(msg.SentAt)),
	}, true, nil
}

func (r *MessagesRepo) MessagesSince(ctx context.Context, threadID int64, since time.Time) ([]core.Message, error) {
	query := `SELECT id, thread_id, username, body, sent_at FROM messages
		WHERE thread_id = ? AND sent_at >= ? ORDER BY sent_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, threadID, toUnix(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []core.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return messages, nil
}

// RecentMessages returns up to limit of the thread's newest messages, oldest first.
func (r *MessagesRepo) RecentMessages(ctx context.Context, threadID int64, limit int) ([]core.Message, error) {
	query := `SELECT id, thread_id, username, body, sent_at FROM (
			SELECT id, thread_id, username, body, sent_at FROM messages
			WHERE thread_id = ? ORDER BY sent_at DESC, id DESC LIMIT ?
		) ORDER BY sent_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer rows.Close()

	var messages []core.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (core.Message, error) {
	var (
		m      core.Message
		sentAt int64
	)
	if err := row.Scan(&m.ID, &m.ThreadID, &m.Username, &m.Body, &sentAt); err != nil {
		return core.Message{}, err
	}
	m.SentAt = fromUnix(sentAt)
	return m, nil
}
