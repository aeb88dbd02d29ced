package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sandevgo/edubot/internal/core"
	"github.com/sandevgo/edubot/internal/service/memory"
	store "github.com/sandevgo/edubot/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bot  = core.BotIdentity{Username: "bot", Platform: "demo"}
)

type fakeProvider struct {
	reply   string
	err     error
	calls   int
	history []core.ChatMessage
	budget  int
}

func (p *fakeProvider) Complete(_ context.Context, history []core.ChatMessage, budget int) (string, error) {
	p.calls++
	p.history = history
	p.budget = budget
	return p.reply, p.err
}

type fakeDescriber struct {
	caption string
	err     error
}

func (d fakeDescriber) DescribeImage(context.Context, []byte, string) (string, error) {
	return d.caption, d.err
}

type fakeFetcher struct {
	text string
	err  error
}

func (f fakeFetcher) FetchText(context.Context, string) (string, error) {
	return f.text, f.err
}

func newEngine(p core.CompletionProvider, opts ...Option) (*Engine, *store.Store) {
	s := store.NewStore()
	e := New(Config{}, s, p, memory.NewSysPrompt(nil, "test-model"), opts...)
	return e, s
}

func turn(msgs ...core.IncomingMessage) TurnRequest {
	return TurnRequest{Bot: bot, Thread: "room1", Messages: msgs}
}

func alice(body string, at time.Time) core.IncomingMessage {
	return core.IncomingMessage{Username: "alice", Body: body, SentAt: at}
}

func completionOf(t *testing.T, s *store.Store, msg core.IncomingMessage) core.Completion {
	t.Helper()
	ctx := context.Background()
	thread, err := s.FindThread(ctx, bot.Platform, "room1")
	require.NoError(t, err)
	b, err := s.FindBot(ctx, bot.Username, bot.Platform)
	require.NoError(t, err)
	m, err := s.LookupMessage(ctx, thread.ID, msg)
	require.NoError(t, err)
	c, err := s.CompletionForMessage(ctx, b.ID, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, c.ReplyToID)
	return c
}

func TestHandleTurn_RecordsCleanedCompletion(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{reply: "bot: hello!"}
	e, s := newEngine(p)

	question := alice("hi bot", base)
	reply, err := e.HandleTurn(ctx, turn(question))
	require.NoError(t, err)
	assert.Equal(t, "hello!", reply)

	c := completionOf(t, s, question)
	assert.Equal(t, "hello!", c.Text)
	assert.Equal(t, 0, c.Score)

	assert.Equal(t, DefaultCompletionTokens, p.budget)
	last := p.history[len(p.history)-1]
	assert.Equal(t, core.RoleUser, last.Role)
	assert.Equal(t, "alice", last.Name)
	assert.Equal(t, "alice: hi bot", last.Content)
	assert.Equal(t, core.RoleSystem, p.history[0].Role)
}

func TestHandleTurn_Feedback(t *testing.T) {
	ctx := context.Background()
	e, s := newEngine(&fakeProvider{reply: "hello!"})

	question := alice("hi bot", base)
	_, err := e.HandleTurn(ctx, turn(question))
	require.NoError(t, err)

	thumbsUp := core.Feedback{Thread: "room1", QuotedText: "hello!", Reaction: "👍", SentAt: base.Add(time.Minute), Delta: 1}

	applied, err := e.HandleFeedback(ctx, bot, thumbsUp)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 1, completionOf(t, s, question).Score)

	applied, err = e.HandleFeedback(ctx, bot, thumbsUp)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, 2, completionOf(t, s, question).Score)

	late := thumbsUp
	late.SentAt = base.Add(5 * time.Minute)
	applied, err = e.HandleFeedback(ctx, bot, late)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 2, completionOf(t, s, question).Score)
}

func TestHandleTurn_ProviderError(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{err: errors.New("boom")}
	e, s := newEngine(p)

	question := alice("hi bot", base)
	_, err := e.HandleTurn(ctx, turn(question))

	var perr *core.ProviderError
	require.ErrorAs(t, err, &perr)

	thread, err := s.FindThread(ctx, bot.Platform, "room1")
	require.NoError(t, err)
	m, err := s.LookupMessage(ctx, thread.ID, question)
	require.NoError(t, err, "message stays stored")

	b, err := s.FindBot(ctx, bot.Username, bot.Platform)
	require.NoError(t, err)
	_, err = s.CompletionForMessage(ctx, b.ID, m.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	// retrying the turn does not duplicate the message
	p.err = nil
	p.reply = "sorry, here"
	_, err = e.HandleTurn(ctx, turn(question))
	require.NoError(t, err)
	msgs, err := s.MessagesSince(ctx, thread.ID, base)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestHandleTurn_EmptyCompletion(t *testing.T) {
	e, _ := newEngine(&fakeProvider{reply: "bot:   "})

	_, err := e.HandleTurn(context.Background(), turn(alice("hi", base)))
	assert.ErrorIs(t, err, core.ErrEmptyCompletion)

	var perr *core.ProviderError
	assert.ErrorAs(t, err, &perr)
}

func TestHandleTurn_NothingToAnswer(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{reply: "hello!"}
	e, _ := newEngine(p)

	_, err := e.HandleTurn(ctx, turn())
	assert.ErrorIs(t, err, core.ErrNothingToAnswer)

	_, err = e.HandleTurn(ctx, turn(core.IncomingMessage{Username: "bot", Body: "hello!", SentAt: base}))
	assert.ErrorIs(t, err, core.ErrNothingToAnswer)
	assert.Zero(t, p.calls)
}

func TestHandleTurn_SkipsBotMessages(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{reply: "ok"}
	e, s := newEngine(p)

	_, err := e.HandleTurn(ctx, turn(alice("first", base)))
	require.NoError(t, err)

	question := alice("second", base.Add(2*time.Second))
	_, err = e.HandleTurn(ctx, turn(
		alice("first", base),
		core.IncomingMessage{Username: "bot", Body: "ok", SentAt: base.Add(time.Second)},
		question,
	))
	require.NoError(t, err)

	thread, err := s.FindThread(ctx, bot.Platform, "room1")
	require.NoError(t, err)
	msgs, err := s.MessagesSince(ctx, thread.ID, base)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.Equal(t, "alice", m.Username)
	}

	// the earlier reply is folded in after the message it answered
	var convo []string
	for _, m := range p.history {
		if m.Role != core.RoleSystem {
			convo = append(convo, string(m.Role)+"|"+m.Content)
		}
	}
	assert.Equal(t, []string{
		"user|alice: first",
		"assistant|ok",
		"user|alice: second",
	}, convo)

	assert.Equal(t, "ok", completionOf(t, s, question).Text)
}

func TestHandleTurn_Window(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{reply: "ok"}
	s := store.NewStore()
	e := New(Config{PromptTokens: 1000}, s, p, memory.NewSysPrompt(nil, "m"))

	var msgs []core.IncomingMessage
	for i := range 40 {
		msgs = append(msgs, alice(strings.Repeat("word ", 40), base.Add(time.Duration(i)*time.Second)))
	}
	_, err := e.HandleTurn(ctx, turn(msgs...))
	require.NoError(t, err)

	users := 0
	for _, m := range p.history {
		if m.Role == core.RoleUser {
			users++
		}
	}
	assert.Less(t, users, len(msgs))
	assert.Positive(t, users)
}

func TestHandleTurn_PersonaOverride(t *testing.T) {
	p := &fakeProvider{reply: "ok"}
	e, _ := newEngine(p)

	req := turn(alice("hi", base))
	req.PersonaOverride = "Speak like a pirate."
	_, err := e.HandleTurn(context.Background(), req)
	require.NoError(t, err)

	var system []string
	for _, m := range p.history {
		if m.Role == core.RoleSystem {
			system = append(system, m.Content)
		}
	}
	assert.Equal(t, "Speak like a pirate.", system[len(system)-1])
}

func TestRemember(t *testing.T) {
	ctx := context.Background()
	e, s := newEngine(&fakeProvider{})

	msgs := []core.IncomingMessage{alice("one", base), alice("two", base.Add(time.Second))}
	n, err := e.Remember(ctx, bot, "room1", msgs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = e.Remember(ctx, bot, "room1", msgs)
	require.NoError(t, err)
	assert.Zero(t, n)

	thread, err := s.FindThread(ctx, bot.Platform, "room1")
	require.NoError(t, err)
	stored, err := s.MessagesSince(ctx, thread.ID, base)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestCleanCompletion(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello!", "hello!"},
		{"prefixed", "bot: hello!", "hello!"},
		{"leading space", "  \nbot:hello!", "hello!"},
		{"other name kept", "alice: hello!", "alice: hello!"},
		{"prefix only once", "bot: bot: hi", "bot: hi"},
		{"trailing space kept", "hi  ", "hi  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanCompletion("bot", tt.in))
		})
	}
}

func conversation(history []core.ChatMessage) []string {
	var out []string
	for _, m := range history {
		if m.Role != core.RoleSystem {
			out = append(out, string(m.Role)+"|"+m.Content)
		}
	}
	return out
}

func TestHandleTurn_SeesEarlierTurns(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{reply: "You told me: alice."}
	e, _ := newEngine(p)

	_, err := e.Remember(ctx, bot, "room1", []core.IncomingMessage{alice("my name is alice", base)})
	require.NoError(t, err)

	_, err = e.HandleTurn(ctx, turn(alice("what is my name?", base.Add(time.Minute))))
	require.NoError(t, err)

	p.reply = "Still alice."
	_, err = e.HandleTurn(ctx, turn(alice("and again?", base.Add(2*time.Minute))))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"user|alice: my name is alice",
		"user|alice: what is my name?",
		"assistant|You told me: alice.",
		"user|alice: and again?",
	}, conversation(p.history))
}

func TestHandleTurn_HistoryLimit(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{reply: "ok"}
	s := store.NewStore()
	e := New(Config{HistoryMessages: 2}, s, p, memory.NewSysPrompt(nil, "m"))

	var remembered []core.IncomingMessage
	for i := range 5 {
		remembered = append(remembered, alice("note "+string(rune('a'+i)), base.Add(time.Duration(i)*time.Second)))
	}
	_, err := e.Remember(ctx, bot, "room1", remembered)
	require.NoError(t, err)

	_, err = e.HandleTurn(ctx, turn(alice("question", base.Add(time.Minute))))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"user|alice: note e",
		"user|alice: question",
	}, conversation(p.history))
}

func TestHandleTurn_OlderBatchStillIncluded(t *testing.T) {
	ctx := context.Background()
	p := &fakeProvider{reply: "ok"}
	s := store.NewStore()
	e := New(Config{HistoryMessages: 1}, s, p, memory.NewSysPrompt(nil, "m"))

	_, err := e.HandleTurn(ctx, turn(
		alice("one", base),
		alice("two", base.Add(time.Second)),
		alice("three", base.Add(2*time.Second)),
	))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"user|alice: one",
		"user|alice: two",
		"user|alice: three",
	}, conversation(p.history))
}
