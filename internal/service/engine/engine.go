package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/sandevgo/edubot/internal/core"
	"github.com/sandevgo/edubot/internal/service/feedback"
	"github.com/sandevgo/edubot/internal/service/memory"
	"github.com/sandevgo/edubot/pkg/log"
)

const (
	DefaultPromptTokens     = 7000
	DefaultCompletionTokens = 1192
	DefaultHistoryMessages  = 100
)

// Config is built once at startup and owned by the Engine.
type Config struct {
	// PromptTokens bounds the estimated size of the preamble plus history.
	PromptTokens int
	// CompletionTokens is passed to the provider as the reply budget.
	CompletionTokens int
	// HistoryMessages caps how many stored messages of the thread are loaded
	// before the window trims them to the prompt budget.
	HistoryMessages int
	Estimator       core.Estimator
}

type Engine struct {
	cfg       Config
	store     core.Store
	provider  core.CompletionProvider
	prompter  *memory.SysPrompt
	window    *memory.Window
	resolver  *feedback.Resolver
	describer core.ImageDescriber
	fetcher   core.PageFetcher
}

type Option func(*Engine)

func WithImageDescriber(d core.ImageDescriber) Option {
	return func(e *Engine) { e.describer = d }
}

func WithPageFetcher(f core.PageFetcher) Option {
	return func(e *Engine) { e.fetcher = f }
}

func New(
	cfg Config,
	store core.Store,
	provider core.CompletionProvider,
	prompter *memory.SysPrompt,
	opts ...Option,
) *Engine {
	if cfg.PromptTokens <= 0 {
		cfg.PromptTokens = DefaultPromptTokens
	}
	if cfg.CompletionTokens <= 0 {
		cfg.CompletionTokens = DefaultCompletionTokens
	}
	if cfg.HistoryMessages <= 0 {
		cfg.HistoryMessages = DefaultHistoryMessages
	}
	if cfg.Estimator == nil {
		cfg.Estimator = memory.Heuristic{}
	}

	e := &Engine{
		cfg:      cfg,
		store:    store,
		provider: provider,
		prompter: prompter,
		window:   memory.NewWindow(cfg.Estimator, cfg.PromptTokens),
		resolver: feedback.NewResolver(store),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type TurnRequest struct {
	Bot    core.BotIdentity
	Thread string
	// Messages are the new messages of the thread, oldest first.
	Messages []core.IncomingMessage
	// PersonaOverride is appended to the system preamble for this turn only.
	PersonaOverride string
}

// HandleTurn stores the new messages, builds a budgeted context and records
// the provider's reply as a completion of the last human message. Messages
// stay stored when the provider fails, so the whole turn can be retried.
func (e *Engine) HandleTurn(ctx context.Context, req TurnRequest) (string, error) {
	logger := log.FromCtx(ctx).With().
		Str("turn_id", uuid.NewString()).
		Str("platform", req.Bot.Platform).
		Str("thread", req.Thread).
		Logger()
	ctx = logger.WithContext(ctx)

	if len(req.Messages) == 0 {
		return "", core.ErrNothingToAnswer
	}

	thread, err := e.store.GetOrCreateThread(ctx, req.Bot.Platform, req.Thread)
	if err != nil {
		return "", fmt.Errorf("failed to resolve thread: %w", err)
	}

	bot, err := e.store.GetOrCreateBot(ctx, req.Bot.Username, req.Bot.Platform)
	if err != nil {
		return "", fmt.Errorf("failed to resolve bot: %w", err)
	}

	stored, _, err := e.ingest(ctx, thread, req.Bot.Platform, req.Messages)
	if err != nil {
		return "", err
	}
	if len(stored) == 0 {
		return "", core.ErrNothingToAnswer
	}
	replyTo := stored[len(stored)-1]

	turns, err := e.history(ctx, bot, thread, req.Messages)
	if err != nil {
		return "", err
	}

	system := e.prompter.Build(req.Bot, req.PersonaOverride)
	overhead := 0
	for _, m := range system {
		overhead += e.cfg.Estimator.Estimate(m.Content)
	}

	window := e.window.Build(turns, overhead)
	logger.Debug().
		Int("history", len(turns)).
		Int("window", len(window)).
		Int("overhead", overhead).
		Msg("context assembled")

	reply, err := e.provider.Complete(ctx, toChat(system, window), e.cfg.CompletionTokens)
	if err != nil {
		return "", &core.ProviderError{Err: err}
	}

	cleaned := CleanCompletion(bot.Username, reply)
	if strings.TrimSpace(cleaned) == "" {
		return "", &core.ProviderError{Err: core.ErrEmptyCompletion}
	}

	completion, err := e.store.RecordCompletion(ctx, bot.ID, cleaned, replyTo.ID)
	if err != nil {
		return "", fmt.Errorf("failed to record completion: %w", err)
	}

	logger.Info().Int64("completion_id", completion.ID).Int64("reply_to", replyTo.ID).Msg("completion recorded")
	return cleaned, nil
}

// HandleFeedback adjusts the score of the completion fb reacts to. It reports
// false without error when no completion matches.
func (e *Engine) HandleFeedback(ctx context.Context, bot core.BotIdentity, fb core.Feedback) (bool, error) {
	return e.resolver.ApplyFeedback(ctx, bot, fb)
}

// Remember stores messages the bot was not asked to answer, so later turns
// see them as history. It returns how many were new.
func (e *Engine) Remember(ctx context.Context, bot core.BotIdentity, threadName string, msgs []core.IncomingMessage) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}
	thread, err := e.store.GetOrCreateThread(ctx, bot.Platform, threadName)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve thread: %w", err)
	}
	_, inserted, err := e.ingest(ctx, thread, bot.Platform, msgs)
	return inserted, err
}

// ingest stores every message not written by a registered bot, in order.
func (e *Engine) ingest(ctx context.Context, thread core.Thread, platform string, msgs []core.IncomingMessage) ([]core.Message, int, error) {
	logger := log.FromCtx(ctx)
	bots := make(map[string]bool)

	stored := make([]core.Message, 0, len(msgs))
	inserted := 0
	for _, msg := range msgs {
		isBot, ok := bots[msg.Username]
		if !ok {
			_, err := e.store.FindBot(ctx, msg.Username, platform)
			switch {
			case err == nil:
				isBot = true
			case errors.Is(err, core.ErrNotFound):
				isBot = false
			default:
				return nil, 0, fmt.Errorf("failed to look up bot: %w", err)
			}
			bots[msg.Username] = isBot
		}
		if isBot {
			continue
		}

		m, isNew, err := e.store.IngestMessage(ctx, thread.ID, msg)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to ingest message: %w", err)
		}
		if isNew {
			inserted++
		} else {
			logger.Debug().Int64("message_id", m.ID).Msg("message already stored")
		}
		stored = append(stored, m)
	}
	return stored, inserted, nil
}

// history returns the thread's recent stored conversation together with
// everything sent since the first incoming message, oldest first. Each of
// the bot's earlier replies is placed after the message it answered.
func (e *Engine) history(ctx context.Context, bot core.Bot, thread core.Thread, msgs []core.IncomingMessage) ([]core.Turn, error) {
	since := msgs[0].SentAt
	for _, m := range msgs[1:] {
		if m.SentAt.Before(since) {
			since = m.SentAt
		}
	}

	recent, err := e.store.RecentMessages(ctx, thread.ID, e.cfg.HistoryMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	batch, err := e.store.MessagesSince(ctx, thread.ID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	stored := mergeMessages(recent, batch)

	turns := make([]core.Turn, 0, len(stored)*2)
	for _, m := range stored {
		turns = append(turns, core.Turn{Role: core.RoleUser, Speaker: m.Username, Text: m.Body})

		c, err := e.store.CompletionForMessage(ctx, bot.ID, m.ID)
		if errors.Is(err, core.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load completion: %w", err)
		}
		turns = append(turns, core.Turn{Role: core.RoleAssistant, Speaker: bot.Username, Text: c.Text})
	}
	return turns, nil
}

// mergeMessages unions two sorted message lists by id, keeping time order.
func mergeMessages(a, b []core.Message) []core.Message {
	seen := make(map[int64]bool, len(a)+len(b))
	out := make([]core.Message, 0, len(a)+len(b))
	for _, list := range [][]core.Message{a, b} {
		for _, m := range list {
			if !seen[m.ID] {
				seen[m.ID] = true
				out = append(out, m)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SentAt.Before(out[j].SentAt)
	})
	return out
}

func toChat(system []core.ChatMessage, turns []core.Turn) []core.ChatMessage {
	out := make([]core.ChatMessage, 0, len(system)+len(turns))
	out = append(out, system...)
	for _, t := range turns {
		if t.Role == core.RoleAssistant {
			out = append(out, core.ChatMessage{Role: core.RoleAssistant, Name: t.Speaker, Content: t.Text})
			continue
		}
		out = append(out, core.ChatMessage{Role: core.RoleUser, Name: t.Speaker, Content: t.Render()})
	}
	return out
}

// CleanCompletion strips a leading "<username>:" echo and leading whitespace.
func CleanCompletion(username, text string) string {
	text = strings.TrimLeftFunc(text, unicode.IsSpace)
	text = strings.TrimPrefix(text, username+":")
	return strings.TrimLeftFunc(text, unicode.IsSpace)
}
