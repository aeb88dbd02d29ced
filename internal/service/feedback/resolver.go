package feedback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/edubot/internal/core"
	"github.com/sandevgo/edubot/pkg/log"
)

// Window is how long before the feedback reference time the replied-to
// message may have been sent. Duplicate replies of the same bot in the same
// thread inside this window are attributed to the most recent one.
const Window = 90 * time.Second

type Store interface {
	core.ThreadStore
	core.BotRegistry
	core.CompletionLedger
}

type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve finds the completion of bot in thread whose text equals text and
// whose replied-to message was sent in (at-Window, at). Among several the
// highest id wins. Returns core.ErrNotFound when nothing qualifies.
func (r *Resolver) Resolve(ctx context.Context, bot core.Bot, thread core.Thread, text string, at time.Time) (core.Completion, error) {
	return r.store.FindCandidate(ctx, core.CandidateQuery{
		BotID:    bot.ID,
		ThreadID: thread.ID,
		Text:     text,
		After:    at.Add(-Window),
		Before:   at,
	})
}

// ApplyFeedback adds fb.Delta to the matching completion's score. Feedback
// that matches nothing (an unknown bot or thread, or a post the bot never
// generated) is logged and reported as not applied, never as an error.
func (r *Resolver) ApplyFeedback(ctx context.Context, identity core.BotIdentity, fb core.Feedback) (bool, error) {
	logger := log.FromCtx(ctx)

	bot, err := r.store.FindBot(ctx, identity.Username, identity.Platform)
	if err != nil {
		return r.notFound(ctx, err, fb, "bot not registered")
	}

	thread, err := r.store.FindThread(ctx, identity.Platform, fb.Thread)
	if err != nil {
		return r.notFound(ctx, err, fb, "thread not known")
	}

	completion, err := r.Resolve(ctx, bot, thread, fb.QuotedText, fb.SentAt)
	if err != nil {
		return r.notFound(ctx, err, fb, "message is not a completion")
	}

	updated, err := r.store.AdjustScore(ctx, completion.ID, fb.Delta)
	if err != nil {
		return false, fmt.Errorf("failed to adjust completion score: %w", err)
	}

	logger.Info().
		Int64("completion_id", updated.ID).
		Int("delta", fb.Delta).
		Int("score", updated.Score).
		Str("reaction", fb.Reaction).
		Msg("completion score adjusted")
	return true, nil
}

func (r *Resolver) notFound(ctx context.Context, err error, fb core.Feedback, reason string) (bool, error) {
	if !errors.Is(err, core.ErrNotFound) {
		return false, err
	}
	log.FromCtx(ctx).Debug().
		Str("thread", fb.Thread).
		Str("text", fb.QuotedText).
		Time("at", fb.SentAt).
		Msg(reason)
	return false, nil
}

// ReactionDelta maps a reaction key to a score delta. Unknown reactions map to 0.
func ReactionDelta(reaction string) int {
	switch reaction {
	case "👍", "👍️", "+1", ":+1:", "👍🏻", "👍🏼", "👍🏽", "👍🏾", "👍🏿":
		return 1
	case "👎", "👎️", "-1", ":-1:", "👎🏻", "👎🏼", "👎🏽", "👎🏾", "👎🏿":
		return -1
	default:
		return 0
	}
}
