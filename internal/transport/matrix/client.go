package matrix

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/edubot/internal/config"
	"github.com/sandevgo/edubot/internal/core"
	"github.com/sandevgo/edubot/internal/transport"
	"github.com/sandevgo/edubot/pkg/log"
	"github.com/sandevgo/edubot/pkg/retry"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

const (
	syncBackoffMin = 2 * time.Second
	syncBackoffMax = 5 * time.Minute
	typingTimeout  = 30 * time.Second
)

type Client struct {
	client   *mautrix.Client
	cfg      *config.MatrixConfig
	engine   transport.Engine
	retrier  *retry.Retrier
	identity core.BotIdentity
	persona  string
	self     id.UserID
	rooms    *roomQueues
	// Events older than this come from the initial sync and are not answered.
	startedAt time.Time
}

func NewClient(
	cfg *config.MatrixConfig,
	eng transport.Engine,
	state StateStore,
	persona string,
) (*Client, error) {
	self := id.UserID(cfg.UserID)
	client, err := mautrix.NewClient(cfg.Homeserver, self, cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create matrix client: %w", err)
	}
	if state != nil {
		client.Store = newSyncStore(state)
	}

	c := &Client{
		client:   client,
		cfg:      cfg,
		engine:   eng,
		retrier:  retry.NewRetrier(retry.NewSendConfig()),
		identity: core.BotIdentity{Username: localpart(self), Platform: transport.PlatformMatrix},
		persona:  persona,
		self:     self,
		rooms:    newRoomQueues(),
	}

	// The syncer calls listeners inline; handling moves to per-room queues so
	// one room's provider call does not hold up the others.
	syncer := client.Syncer.(*mautrix.DefaultSyncer)
	syncer.OnEventType(event.EventMessage, c.queued(c.handleMessage))
	syncer.OnEventType(event.EventReaction, c.queued(c.handleReaction))

	return c, nil
}

// Start joins the configured rooms and syncs until ctx is cancelled,
// reconnecting with exponential backoff.
func (c *Client) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	c.client.Log = logger.With().Str("component", "mautrix").Logger()
	c.startedAt = time.Now()

	for _, room := range c.cfg.Rooms {
		if err := c.joinRoom(ctx, id.RoomID(room)); err != nil {
			return fmt.Errorf("failed to join room %s: %w", room, err)
		}
	}

	logger.Info().Str("user_id", c.self.String()).Int("rooms", len(c.cfg.Rooms)).Msg("starting matrix client")

	backoff := syncBackoffMin
	for {
		err := c.client.SyncWithContext(ctx)
		if ctx.Err() != nil || err == nil {
			return nil
		}

		logger.Error().Err(err).Dur("backoff", backoff).Msg("matrix sync stopped; reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > syncBackoffMax {
			backoff = syncBackoffMax
		}
	}
}

func (c *Client) Shutdown(ctx context.Context) error {
	c.client.StopSync()
	if err := c.rooms.Close(ctx); err != nil {
		return fmt.Errorf("matrix handlers still running: %w", err)
	}
	return nil
}

func (c *Client) queued(handle func(context.Context, *event.Event)) func(context.Context, *event.Event) {
	return func(ctx context.Context, evt *event.Event) {
		if !c.rooms.Submit(evt.RoomID, func() { handle(ctx, evt) }) {
			log.FromCtx(ctx).Debug().Str("event_id", evt.ID.String()).Msg("dropped event after shutdown")
		}
	}
}

func (c *Client) joinRoom(ctx context.Context, roomID id.RoomID) error {
	_, err := c.client.JoinRoomByID(ctx, roomID)
	if err != nil {
		// Homeservers answer M_FORBIDDEN when the bot is already a member.
		if errors.Is(err, mautrix.MForbidden) {
			log.FromCtx(ctx).Warn().Str("room", roomID.String()).Msg("join forbidden, continuing")
			return nil
		}
		return err
	}
	return nil
}

// send posts md as both plain body and rendered HTML. The plain body is what
// reactions are matched against later.
func (c *Client) send(ctx context.Context, roomID id.RoomID, md string) error {
	content := event.MessageEventContent{
		MsgType:       event.MsgText,
		Body:          md,
		Format:        event.FormatHTML,
		FormattedBody: renderHTML(md),
	}

	err := c.retrier.Do(ctx, func() error {
		_, err := c.client.SendMessageEvent(ctx, roomID, event.EventMessage, &content)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (c *Client) typing(ctx context.Context, roomID id.RoomID, on bool) {
	if _, err := c.client.UserTyping(ctx, roomID, on, typingTimeout); err != nil {
		log.FromCtx(ctx).Debug().Err(err).Msg("failed to set typing")
	}
}
