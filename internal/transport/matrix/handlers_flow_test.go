package matrix

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sandevgo/edubot/internal/config"
	"github.com/sandevgo/edubot/internal/core"
	"github.com/sandevgo/edubot/internal/service/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

const (
	selfID = id.UserID("@edubot:example.org")
	roomID = id.RoomID("!room:example.org")
)

type fakeEngine struct {
	reply   string
	turnErr error
	summary string

	turns      []engine.TurnRequest
	remembered []core.IncomingMessage
	summaries  []engine.SummaryRequest
	feedback   []core.Feedback
}

func (f *fakeEngine) HandleTurn(_ context.Context, req engine.TurnRequest) (string, error) {
	f.turns = append(f.turns, req)
	return f.reply, f.turnErr
}

func (f *fakeEngine) HandleFeedback(_ context.Context, _ core.BotIdentity, fb core.Feedback) (bool, error) {
	f.feedback = append(f.feedback, fb)
	return true, nil
}

func (f *fakeEngine) Remember(_ context.Context, _ core.BotIdentity, _ string, msgs []core.IncomingMessage) (int, error) {
	f.remembered = append(f.remembered, msgs...)
	return len(msgs), nil
}

func (f *fakeEngine) SummariseURL(_ context.Context, req engine.SummaryRequest) (string, error) {
	f.summaries = append(f.summaries, req)
	if f.summary == "" {
		return "", core.ErrNoContent
	}
	return f.summary, nil
}

func (f *fakeEngine) SaveImageDescription(context.Context, engine.ImageRequest) (string, error) {
	return "", core.ErrNotConfigured
}

// homeserver answers the few client API calls the text handler makes.
type homeserver struct {
	members int

	mu   sync.Mutex
	sent []string
}

func (h *homeserver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/joined_members"):
		joined := map[string]any{}
		for i := 0; i < h.members; i++ {
			joined["@user"+string(rune('a'+i))+":example.org"] = map[string]any{}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"joined": joined})
	case strings.Contains(r.URL.Path, "/typing/"):
		_, _ = w.Write([]byte(`{}`))
	case strings.Contains(r.URL.Path, "/send/"):
		var content struct {
			Body string `json:"body"`
		}
		_ = json.NewDecoder(r.Body).Decode(&content)
		h.mu.Lock()
		h.sent = append(h.sent, content.Body)
		h.mu.Unlock()
		_, _ = w.Write([]byte(`{"event_id":"$sent"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errcode":"M_NOT_FOUND","error":"not found"}`))
	}
}

func (h *homeserver) messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.sent...)
}

func newTestClient(t *testing.T, members int) (*Client, *fakeEngine, *homeserver) {
	t.Helper()
	hs := &homeserver{members: members}
	srv := httptest.NewServer(hs)
	t.Cleanup(srv.Close)

	eng := &fakeEngine{}
	c, err := NewClient(&config.MatrixConfig{
		Homeserver:  srv.URL,
		UserID:      selfID.String(),
		AccessToken: "syt_test",
	}, eng, nil, "Be patient.")
	require.NoError(t, err)
	return c, eng, hs
}

func textEvent(body string) (*event.Event, *event.MessageEventContent) {
	evt := &event.Event{
		ID:        "$incoming",
		Sender:    "@alice:example.org",
		RoomID:    roomID,
		Timestamp: 1704067200000,
	}
	return evt, &event.MessageEventContent{MsgType: event.MsgText, Body: body}
}

func TestHandleText_RemembersUnaddressed(t *testing.T) {
	c, eng, hs := newTestClient(t, 5)

	evt, msg := textEvent("anyone up for lunch?")
	c.handleText(context.Background(), evt, msg)

	require.Len(t, eng.remembered, 1)
	assert.Equal(t, core.IncomingMessage{
		Username: "alice",
		Body:     "anyone up for lunch?",
		SentAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}, eng.remembered[0])
	assert.Empty(t, eng.turns)
	assert.Empty(t, hs.messages())
}

func TestHandleText_AnswersWhenAddressed(t *testing.T) {
	tests := []struct {
		name    string
		members int
		body    string
	}{
		{"mentioned in group", 5, "edubot, what is a mole?"},
		{"direct room", 2, "what is a mole?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, eng, hs := newTestClient(t, tt.members)
			eng.reply = "A unit of amount."

			evt, msg := textEvent(tt.body)
			c.handleText(context.Background(), evt, msg)

			require.Len(t, eng.turns, 1)
			req := eng.turns[0]
			assert.Equal(t, core.BotIdentity{Username: "edubot", Platform: "matrix"}, req.Bot)
			assert.Equal(t, roomID.String(), req.Thread)
			assert.Equal(t, "Be patient.", req.PersonaOverride)
			require.Len(t, req.Messages, 1)
			assert.Equal(t, tt.body, req.Messages[0].Body)

			assert.Empty(t, eng.remembered)
			assert.Equal(t, []string{"A unit of amount."}, hs.messages())
		})
	}
}

func TestHandleText_TurnErrors(t *testing.T) {
	c, eng, hs := newTestClient(t, 2)

	eng.turnErr = &core.ProviderError{Err: errors.New("quota")}
	evt, msg := textEvent("hello")
	c.handleText(context.Background(), evt, msg)
	require.Len(t, hs.messages(), 1)
	assert.Contains(t, hs.messages()[0], "language model")

	eng.turnErr = core.ErrNothingToAnswer
	c.handleText(context.Background(), evt, msg)
	assert.Len(t, hs.messages(), 1, "quiet errors post nothing")
}

func TestHandleText_SummarisesLoneLink(t *testing.T) {
	c, eng, hs := newTestClient(t, 5)
	eng.summary = "Photosynthesis explained."

	evt, msg := textEvent("https://example.com/article")
	c.handleText(context.Background(), evt, msg)

	require.Len(t, eng.summaries, 1)
	assert.Equal(t, "https://example.com/article", eng.summaries[0].URL)
	assert.Equal(t, "https://example.com/article", eng.summaries[0].Trigger.Body)
	assert.Empty(t, eng.turns)
	assert.Empty(t, eng.remembered)
	assert.Equal(t, []string{"Photosynthesis explained."}, hs.messages())

	eng.summary = ""
	c.handleText(context.Background(), evt, msg)
	assert.Len(t, hs.messages(), 1, "pages without content are not answered")
}

func botPost(sender id.UserID, content string) *event.Event {
	return &event.Event{
		ID:        "$post",
		Sender:    sender,
		Type:      event.EventMessage,
		RoomID:    roomID,
		Timestamp: 1704067205000,
		Content:   event.Content{VeryRaw: json.RawMessage(content)},
	}
}

func TestReactionFeedback(t *testing.T) {
	const hello = `{"msgtype":"m.text","body":"hello!"}`

	t.Run("thumbs up on own post", func(t *testing.T) {
		fb, ok := reactionFeedback(selfID, roomID, "👍", botPost(selfID, hello))
		require.True(t, ok)
		assert.Equal(t, core.Feedback{
			Thread:     roomID.String(),
			QuotedText: "hello!",
			Reaction:   "👍",
			SentAt:     time.Date(2024, 1, 1, 0, 0, 5, 0, time.UTC),
			Delta:      1,
		}, fb)
	})

	t.Run("thumbs down", func(t *testing.T) {
		fb, ok := reactionFeedback(selfID, roomID, "👎", botPost(selfID, hello))
		require.True(t, ok)
		assert.Equal(t, -1, fb.Delta)
	})

	tests := []struct {
		name   string
		key    string
		target *event.Event
	}{
		{"unscored reaction", "🎉", botPost(selfID, hello)},
		{"someone else's post", "👍", botPost("@alice:example.org", hello)},
		{"post without body", "👍", botPost(selfID, `{"msgtype":"m.text"}`)},
		{"missing target", "👍", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := reactionFeedback(selfID, roomID, tt.key, tt.target)
			assert.False(t, ok)
		})
	}
}
