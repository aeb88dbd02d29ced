package core

import (
	"context"
	"time"
)

type ThreadStore interface {
	GetOrCreateThread(ctx context.Context, platform, name string) (Thread, error)
	FindThread(ctx context.Context, platform, name string) (Thread, error)
}

type BotRegistry interface {
	GetOrCreateBot(ctx context.Context, username, platform string) (Bot, error)
	FindBot(ctx context.Context, username, platform string) (Bot, error)
}

type MessageLedger interface {
	// IngestMessage stores msg unless an identical message already exists in
	// the thread. The bool reports whether a new row was written.
	IngestMessage(ctx context.Context, threadID int64, msg IncomingMessage) (Message, bool, error)
	LookupMessage(ctx context.Context, threadID int64, msg IncomingMessage) (Message, error)
	// MessagesSince returns the thread's messages sent at or after since, oldest first.
	MessagesSince(ctx context.Context, threadID int64, since time.Time) ([]Message, error)
	// RecentMessages returns up to limit of the thread's newest messages, oldest first.
	RecentMessages(ctx context.Context, threadID int64, limit int) ([]Message, error)
}

type CompletionLedger interface {
	RecordCompletion(ctx context.Context, botID int64, text string, replyToID int64) (Completion, error)
	AdjustScore(ctx context.Context, completionID int64, delta int) (Completion, error)
	FindCandidate(ctx context.Context, q CandidateQuery) (Completion, error)
	CompletionForMessage(ctx context.Context, botID, messageID int64) (Completion, error)
}

// CandidateQuery selects completions of BotID in ThreadID whose text equals
// Text and whose replied-to message was sent strictly between After and Before.
type CandidateQuery struct {
	BotID    int64
	ThreadID int64
	Text     string
	After    time.Time
	Before   time.Time
}

type Store interface {
	ThreadStore
	BotRegistry
	MessageLedger
	CompletionLedger
}
