package matrix

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sandevgo/edubot/internal/core"
	"github.com/sandevgo/edubot/internal/service/engine"
	"github.com/sandevgo/edubot/internal/service/feedback"
	"github.com/sandevgo/edubot/internal/transport"
	"github.com/sandevgo/edubot/pkg/conv"
	"github.com/sandevgo/edubot/pkg/log"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// directRoomSize is the member count at which every message is answered.
const directRoomSize = 2

func (c *Client) handleMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == c.self || c.stale(evt) {
		return
	}

	msg := evt.Content.AsMessage()
	if msg == nil {
		return
	}

	logger := log.FromCtx(ctx).With().Str("room", evt.RoomID.String()).Str("event_id", evt.ID.String()).Logger()
	ctx = logger.WithContext(ctx)

	switch msg.MsgType {
	case event.MsgText:
		c.handleText(ctx, evt, msg)
	case event.MsgImage:
		c.handleImage(ctx, evt, msg)
	}
}

func (c *Client) handleText(ctx context.Context, evt *event.Event, msg *event.MessageEventContent) {
	logger := log.FromCtx(ctx)
	thread := evt.RoomID.String()
	incoming := core.IncomingMessage{
		Username: localpart(evt.Sender),
		Body:     msg.Body,
		SentAt:   eventTime(evt),
	}

	if link, ok := transport.LoneURL(msg.Body); ok {
		summary, err := c.engine.SummariseURL(ctx, engine.SummaryRequest{
			Bot:     c.identity,
			Thread:  thread,
			URL:     link,
			Trigger: incoming,
		})
		if err != nil {
			logger.Debug().Err(err).Str("url", link).Msg("url not summarised")
			return
		}
		if err := c.send(ctx, evt.RoomID, summary); err != nil {
			logger.Error().Err(err).Msg("failed to send summary")
		}
		return
	}

	if !c.addressed(ctx, evt.RoomID, msg.Body) {
		if _, err := c.engine.Remember(ctx, c.identity, thread, []core.IncomingMessage{incoming}); err != nil {
			logger.Error().Err(err).Msg("failed to store matrix message")
		}
		return
	}

	c.typing(ctx, evt.RoomID, true)
	defer c.typing(ctx, evt.RoomID, false)

	reply, err := c.engine.HandleTurn(ctx, engine.TurnRequest{
		Bot:             c.identity,
		Thread:          thread,
		Messages:        []core.IncomingMessage{incoming},
		PersonaOverride: c.persona,
	})
	if err != nil {
		logger.Error().Err(err).Msg("turn failed")
		text, ok := transport.UserFacingError(err)
		if !ok {
			return
		}
		reply = text
	}

	if err := c.send(ctx, evt.RoomID, reply); err != nil {
		logger.Error().Err(err).Msg("failed to send reply")
	}
}

func (c *Client) handleImage(ctx context.Context, evt *event.Event, msg *event.MessageEventContent) {
	logger := log.FromCtx(ctx)

	if msg.Info != nil && msg.Info.Size > engine.MaxImageBytes {
		logger.Info().Int("size", msg.Info.Size).Msg("skipped image because it was too large")
		return
	}
	if msg.URL == "" {
		// Encrypted media is not supported.
		return
	}
	uri, err := msg.URL.Parse()
	if err != nil {
		logger.Debug().Err(err).Msg("invalid image url")
		return
	}

	data, err := c.client.DownloadBytes(ctx, uri)
	if err != nil {
		logger.Error().Err(err).Msg("failed to download matrix image")
		return
	}

	mimeType := ""
	if msg.Info != nil {
		mimeType = msg.Info.MimeType
	}
	_, err = c.engine.SaveImageDescription(ctx, engine.ImageRequest{
		Bot:      c.identity,
		Thread:   evt.RoomID.String(),
		Username: localpart(evt.Sender),
		SentAt:   eventTime(evt),
		Image:    data,
		MimeType: mimeType,
	})
	if err != nil && !errors.Is(err, core.ErrNotConfigured) {
		logger.Error().Err(err).Msg("failed to describe matrix image")
	}
}

// handleReaction scores the bot post a reaction points at. The post's body
// and timestamp locate the completion.
func (c *Client) handleReaction(ctx context.Context, evt *event.Event) {
	if evt.Sender == c.self || c.stale(evt) {
		return
	}
	logger := log.FromCtx(ctx)

	reaction := evt.Content.AsReaction()
	if reaction == nil || reaction.RelatesTo.EventID == "" || feedback.ReactionDelta(reaction.RelatesTo.Key) == 0 {
		return
	}

	target, err := c.client.GetEvent(ctx, evt.RoomID, reaction.RelatesTo.EventID)
	if err != nil {
		logger.Debug().Err(err).Str("event_id", reaction.RelatesTo.EventID.String()).Msg("reacted event not found")
		return
	}

	fb, ok := reactionFeedback(c.self, evt.RoomID, reaction.RelatesTo.Key, target)
	if !ok {
		return
	}
	if _, err := c.engine.HandleFeedback(ctx, c.identity, fb); err != nil {
		logger.Error().Err(err).Msg("failed to apply feedback")
	}
}

// reactionFeedback builds the feedback for a reaction key on target. It
// reports false for reactions without a score and for posts not sent by self.
func reactionFeedback(self id.UserID, room id.RoomID, key string, target *event.Event) (core.Feedback, bool) {
	delta := feedback.ReactionDelta(key)
	if delta == 0 || target == nil || target.Sender != self {
		return core.Feedback{}, false
	}
	if err := target.Content.ParseRaw(target.Type); err != nil && !errors.Is(err, event.ErrContentAlreadyParsed) {
		return core.Feedback{}, false
	}
	quoted := target.Content.AsMessage()
	if quoted == nil || quoted.Body == "" {
		return core.Feedback{}, false
	}

	return core.Feedback{
		Thread:     room.String(),
		QuotedText: quoted.Body,
		Reaction:   key,
		SentAt:     eventTime(target),
		Delta:      delta,
	}, true
}

// addressed mirrors the usual chat etiquette: answer in one-to-one rooms and
// when mentioned by name.
func (c *Client) addressed(ctx context.Context, roomID id.RoomID, body string) bool {
	if mentions(body, c.identity.Username) {
		return true
	}

	members, err := c.client.JoinedMembers(ctx, roomID)
	if err != nil {
		log.FromCtx(ctx).Debug().Err(err).Msg("failed to count room members")
		return false
	}
	return len(members.Joined) <= directRoomSize
}

func (c *Client) stale(evt *event.Event) bool {
	return eventTime(evt).Before(c.startedAt)
}

func mentions(body, username string) bool {
	return username != "" && strings.Contains(strings.ToLower(body), strings.ToLower(username))
}

// localpart turns "@alice:example.org" into "alice".
func localpart(user id.UserID) string {
	s := strings.TrimPrefix(user.String(), "@")
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return s
}

func eventTime(evt *event.Event) time.Time {
	return time.UnixMilli(evt.Timestamp).UTC()
}

func renderHTML(md string) string {
	return strings.TrimSpace(conv.MarkdownToMatrixHTML([]byte(md)))
}
