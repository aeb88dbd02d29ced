// Package storetest checks that a core.Store keeps the uniqueness, ordering
// and matching rules every backend must share.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sandevgo/edubot/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) core.Store

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func Run(t *testing.T, newStore Factory) {
	t.Run("threads", func(t *testing.T) { testThreads(t, newStore(t)) })
	t.Run("threads concurrent create", func(t *testing.T) { testThreadsConcurrent(t, newStore(t)) })
	t.Run("bots", func(t *testing.T) { testBots(t, newStore(t)) })
	t.Run("ingest is idempotent", func(t *testing.T) { testIngest(t, newStore(t)) })
	t.Run("ingest concurrent", func(t *testing.T) { testIngestConcurrent(t, newStore(t)) })
	t.Run("messages since", func(t *testing.T) { testMessagesSince(t, newStore(t)) })
	t.Run("recent messages", func(t *testing.T) { testRecentMessages(t, newStore(t)) })
	t.Run("scores", func(t *testing.T) { testScores(t, newStore(t)) })
	t.Run("scores concurrent", func(t *testing.T) { testScoresConcurrent(t, newStore(t)) })
	t.Run("completion references", func(t *testing.T) { testCompletionReferences(t, newStore(t)) })
	t.Run("candidate window", func(t *testing.T) { testCandidateWindow(t, newStore(t)) })
	t.Run("candidate tie-break", func(t *testing.T) { testCandidateTieBreak(t, newStore(t)) })
	t.Run("candidate scope", func(t *testing.T) { testCandidateScope(t, newStore(t)) })
	t.Run("completion for message", func(t *testing.T) { testCompletionForMessage(t, newStore(t)) })
}

func testThreads(t *testing.T, s core.Store) {
	ctx := context.Background()

	_, err := s.FindThread(ctx, "demo", "room1")
	require.ErrorIs(t, err, core.ErrNotFound)

	first, err := s.GetOrCreateThread(ctx, "demo", "room1")
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.Equal(t, "demo", first.Platform)
	assert.Equal(t, "room1", first.Name)

	again, err := s.GetOrCreateThread(ctx, "demo", "room1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	found, err := s.FindThread(ctx, "demo", "room1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	other, err := s.GetOrCreateThread(ctx, "matrix", "room1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID, "thread names are scoped per platform")
}

func testThreadsConcurrent(t *testing.T, s core.Store) {
	ctx := context.Background()
	const workers = 8

	ids := make([]int64, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			th, err := s.GetOrCreateThread(ctx, "demo", "busy")
			ids[i], errs[i] = th.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
}

func testBots(t *testing.T, s core.Store) {
	ctx := context.Background()

	_, err := s.FindBot(ctx, "edubot", "demo")
	require.ErrorIs(t, err, core.ErrNotFound)

	bot, err := s.GetOrCreateBot(ctx, "edubot", "demo")
	require.NoError(t, err)
	assert.NotZero(t, bot.ID)

	again, err := s.GetOrCreateBot(ctx, "edubot", "demo")
	require.NoError(t, err)
	assert.Equal(t, bot.ID, again.ID)

	found, err := s.FindBot(ctx, "edubot", "demo")
	require.NoError(t, err)
	assert.Equal(t, bot, found)

	other, err := s.GetOrCreateBot(ctx, "edubot", "telegram")
	require.NoError(t, err)
	assert.NotEqual(t, bot.ID, other.ID)
}

func testIngest(t *testing.T, s core.Store) {
	ctx := context.Background()
	thread, err := s.GetOrCreateThread(ctx, "demo", "room1")
	require.NoError(t, err)

	msg := core.IncomingMessage{Username: "alice", Body: "hi bot", SentAt: base}

	stored, inserted, err := s.IngestMessage(ctx, thread.ID, msg)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, thread.ID, stored.ThreadID)
	assert.True(t, base.Equal(stored.SentAt))

	dup, inserted, err := s.IngestMessage(ctx, thread.ID, msg)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, stored.ID, dup.ID)

	looked, err := s.LookupMessage(ctx, thread.ID, msg)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, looked.ID)

	later := msg
	later.SentAt = base.Add(time.Second)
	next, inserted, err := s.IngestMessage(ctx, thread.ID, later)
	require.NoError(t, err)
	assert.True(t, inserted, "same text at another time is a new message")
	assert.NotEqual(t, stored.ID, next.ID)

	otherThread, err := s.GetOrCreateThread(ctx, "demo", "room2")
	require.NoError(t, err)
	elsewhere, inserted, err := s.IngestMessage(ctx, otherThread.ID, msg)
	require.NoError(t, err)
	assert.True(t, inserted, "dedup is scoped to one thread")
	assert.NotEqual(t, stored.ID, elsewhere.ID)

	_, err = s.LookupMessage(ctx, thread.ID, core.IncomingMessage{Username: "bob", Body: "hi bot", SentAt: base})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testIngestConcurrent(t *testing.T, s core.Store) {
	ctx := context.Background()
	const workers = 8

	thread, err := s.GetOrCreateThread(ctx, "demo", "room1")
	require.NoError(t, err)
	msg := core.IncomingMessage{Username: "alice", Body: "hi bot", SentAt: base}

	ids := make([]int64, workers)
	inserted := make([]bool, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, ok, err := s.IngestMessage(ctx, thread.ID, msg)
			ids[i], inserted[i], errs[i] = m.ID, ok, err
		}(i)
	}
	wg.Wait()

	writes := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
		if inserted[i] {
			writes++
		}
	}
	assert.Equal(t, 1, writes, "exactly one caller stores the message")

	all, err := s.MessagesSince(ctx, thread.ID, base)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testMessagesSince(t *testing.T, s core.Store) {
	ctx := context.Background()
	thread, err := s.GetOrCreateThread(ctx, "demo", "room1")
	require.NoError(t, err)
	other, err := s.GetOrCreateThread(ctx, "demo", "room2")
	require.NoError(t, err)

	ingest := func(threadID int64, user, body string, offset time.Duration) core.Message {
		m, _, err := s.IngestMessage(ctx, threadID, core.IncomingMessage{Username: user, Body: body, SentAt: base.Add(offset)})
		require.NoError(t, err)
		return m
	}

	ingest(thread.ID, "alice", "too old", -time.Minute)
	third := ingest(thread.ID, "carol", "third", 2*time.Second)
	first := ingest(thread.ID, "alice", "first", 0)
	second := ingest(thread.ID, "bob", "second", time.Second)
	ingest(other.ID, "dave", "other room", time.Second)

	got, err := s.MessagesSince(ctx, thread.ID, base)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{first.ID, second.ID, third.ID}, []int64{got[0].ID, got[1].ID, got[2].ID})

	none, err := s.MessagesSince(ctx, thread.ID, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testRecentMessages(t *testing.T, s core.Store) {
	ctx := context.Background()
	thread, err := s.GetOrCreateThread(ctx, "demo", "room1")
	require.NoError(t, err)
	other, err := s.GetOrCreateThread(ctx, "demo", "room2")
	require.NoError(t, err)

	empty, err := s.RecentMessages(ctx, thread.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	var bodies []string
	for i := 0; i < 5; i++ {
		body := "message " + string(rune('a'+i))
		bodies = append(bodies, body)
		// stored newest first to show ordering comes from sent_at
		_, _, err := s.IngestMessage(ctx, thread.ID, core.IncomingMessage{
			Username: "alice",
			Body:     body,
			SentAt:   base.Add(time.Duration(4-i) * time.Second),
		})
		require.NoError(t, err)
	}
	_, _, err = s.IngestMessage(ctx, other.ID, core.IncomingMessage{Username: "bob", Body: "elsewhere", SentAt: base.Add(time.Hour)})
	require.NoError(t, err)

	got, err := s.RecentMessages(ctx, thread.ID, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// sent_at order is e, d, c, b, a; the newest three are c, b, a
	assert.Equal(t, []string{bodies[2], bodies[1], bodies[0]}, []string{got[0].Body, got[1].Body, got[2].Body})

	all, err := s.RecentMessages(ctx, thread.ID, 100)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func testScores(t *testing.T, s core.Store) {
	ctx := context.Background()
	bot, _, msg := seed(t, s)

	c, err := s.RecordCompletion(ctx, bot.ID, "hello!", msg.ID)
	require.NoError(t, err)
	assert.Zero(t, c.Score)
	assert.Equal(t, msg.ID, c.ReplyToID)

	up, err := s.AdjustScore(ctx, c.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, up.Score)

	up, err = s.AdjustScore(ctx, c.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, up.Score)

	down, err := s.AdjustScore(ctx, c.ID, -3)
	require.NoError(t, err)
	assert.Equal(t, -1, down.Score)
	assert.Equal(t, "hello!", down.Text)

	_, err = s.AdjustScore(ctx, c.ID+1000, 1)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testScoresConcurrent(t *testing.T, s core.Store) {
	ctx := context.Background()
	bot, _, msg := seed(t, s)
	const workers = 16

	c, err := s.RecordCompletion(ctx, bot.ID, "hello!", msg.ID)
	require.NoError(t, err)

	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.AdjustScore(ctx, c.ID, 1)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	got, err := s.CompletionForMessage(ctx, bot.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, workers, got.Score, "no update is lost")
}

func testCompletionReferences(t *testing.T, s core.Store) {
	ctx := context.Background()
	bot, _, msg := seed(t, s)

	_, err := s.RecordCompletion(ctx, bot.ID, "orphan", msg.ID+4242)
	assert.Error(t, err, "reply_to must reference a stored message")

	_, err = s.RecordCompletion(ctx, bot.ID+4242, "orphan", msg.ID)
	assert.Error(t, err, "bot must be registered")

	_, err = s.CompletionForMessage(ctx, bot.ID, msg.ID)
	assert.ErrorIs(t, err, core.ErrNotFound, "nothing was recorded")
}

func testCandidateWindow(t *testing.T, s core.Store) {
	ctx := context.Background()
	bot, thread, _ := seed(t, s)
	feedbackAt := base.Add(10 * time.Minute)

	tests := []struct {
		name   string
		before time.Duration
		match  bool
	}{
		{"89s before", 89 * time.Second, true},
		{"exactly 90s before", 90 * time.Second, false},
		{"91s before", 91 * time.Second, false},
		{"same instant", 0, false},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := "reply " + tt.name
			m, _, err := s.IngestMessage(ctx, thread.ID, core.IncomingMessage{
				Username: "alice",
				Body:     "question " + string(rune('a'+i)),
				SentAt:   feedbackAt.Add(-tt.before),
			})
			require.NoError(t, err)
			c, err := s.RecordCompletion(ctx, bot.ID, text, m.ID)
			require.NoError(t, err)

			got, err := s.FindCandidate(ctx, core.CandidateQuery{
				BotID:    bot.ID,
				ThreadID: thread.ID,
				Text:     text,
				After:    feedbackAt.Add(-90 * time.Second),
				Before:   feedbackAt,
			})
			if tt.match {
				require.NoError(t, err)
				assert.Equal(t, c.ID, got.ID)
				return
			}
			assert.ErrorIs(t, err, core.ErrNotFound)
		})
	}
}

func testCandidateTieBreak(t *testing.T, s core.Store) {
	ctx := context.Background()
	bot, thread, msg := seed(t, s)

	later, _, err := s.IngestMessage(ctx, thread.ID, core.IncomingMessage{Username: "bob", Body: "hi too", SentAt: base.Add(5 * time.Second)})
	require.NoError(t, err)

	// Completion ids, not message times, decide.
	first, err := s.RecordCompletion(ctx, bot.ID, "hello!", later.ID)
	require.NoError(t, err)
	second, err := s.RecordCompletion(ctx, bot.ID, "hello!", msg.ID)
	require.NoError(t, err)
	require.Greater(t, second.ID, first.ID)

	got, err := s.FindCandidate(ctx, core.CandidateQuery{
		BotID:    bot.ID,
		ThreadID: thread.ID,
		Text:     "hello!",
		After:    base.Add(-time.Minute),
		Before:   base.Add(time.Minute),
	})
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func testCandidateScope(t *testing.T, s core.Store) {
	ctx := context.Background()
	bot, thread, msg := seed(t, s)

	_, err := s.RecordCompletion(ctx, bot.ID, "hello!", msg.ID)
	require.NoError(t, err)

	otherBot, err := s.GetOrCreateBot(ctx, "otherbot", "demo")
	require.NoError(t, err)
	otherThread, err := s.GetOrCreateThread(ctx, "demo", "elsewhere")
	require.NoError(t, err)

	query := core.CandidateQuery{
		BotID:    bot.ID,
		ThreadID: thread.ID,
		Text:     "hello!",
		After:    base.Add(-time.Minute),
		Before:   base.Add(time.Minute),
	}

	_, err = s.FindCandidate(ctx, query)
	require.NoError(t, err)

	wrongText := query
	wrongText.Text = "hello"
	_, err = s.FindCandidate(ctx, wrongText)
	assert.ErrorIs(t, err, core.ErrNotFound)

	wrongBot := query
	wrongBot.BotID = otherBot.ID
	_, err = s.FindCandidate(ctx, wrongBot)
	assert.ErrorIs(t, err, core.ErrNotFound)

	wrongThread := query
	wrongThread.ThreadID = otherThread.ID
	_, err = s.FindCandidate(ctx, wrongThread)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testCompletionForMessage(t *testing.T, s core.Store) {
	ctx := context.Background()
	bot, _, msg := seed(t, s)

	_, err := s.CompletionForMessage(ctx, bot.ID, msg.ID)
	require.ErrorIs(t, err, core.ErrNotFound)

	_, err = s.RecordCompletion(ctx, bot.ID, "first try", msg.ID)
	require.NoError(t, err)
	retry, err := s.RecordCompletion(ctx, bot.ID, "second try", msg.ID)
	require.NoError(t, err)

	got, err := s.CompletionForMessage(ctx, bot.ID, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, retry.ID, got.ID)
	assert.Equal(t, "second try", got.Text)
}

func seed(t *testing.T, s core.Store) (core.Bot, core.Thread, core.Message) {
	t.Helper()
	ctx := context.Background()

	bot, err := s.GetOrCreateBot(ctx, "edubot", "demo")
	require.NoError(t, err)
	thread, err := s.GetOrCreateThread(ctx, "demo", "room1")
	require.NoError(t, err)
	msg, _, err := s.IngestMessage(ctx, thread.ID, core.IncomingMessage{Username: "alice", Body: "hi bot", SentAt: base})
	require.NoError(t, err)
	return bot, thread, msg
}
