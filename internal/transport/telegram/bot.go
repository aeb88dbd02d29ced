package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sandevgo/edubot/internal/config"
	"github.com/sandevgo/edubot/internal/core"
	"github.com/sandevgo/edubot/internal/service/engine"
	"github.com/sandevgo/edubot/internal/transport"
	"github.com/sandevgo/edubot/pkg/log"
	tele "gopkg.in/telebot.v3"
)

const baseContextKey = "base_context"

type Bot struct {
	bot      *tele.Bot
	engine   transport.Engine
	sender   *sender
	identity core.BotIdentity
	persona  string
}

func NewBot(
	ctx context.Context,
	cfg *config.TelegramConfig,
	eng transport.Engine,
	persona string,
) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	username := cfg.Username
	if username == "" && b.Me != nil {
		username = b.Me.Username
	}

	bot := &Bot{
		bot:      b,
		engine:   eng,
		sender:   newSender(b),
		identity: core.BotIdentity{Username: username, Platform: transport.PlatformTelegram},
		persona:  persona,
	}

	// Use context from Signal with logger
	b.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			c.Set(baseContextKey, ctx)
			return next(c)
		}
	})

	b.Handle(tele.OnText, bot.handleMessage)
	b.Handle(tele.OnPhoto, bot.handlePhoto)

	return bot, nil
}

func (b *Bot) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Str("username", b.identity.Username).Msg("starting telegram bot")
	b.bot.Start()
	return nil
}

func (b *Bot) Shutdown(ctx context.Context) error {
	b.bot.Stop()
	return nil
}

func (b *Bot) handleMessage(c tele.Context) error {
	ctx := c.Get(baseContextKey).(context.Context)
	logger := log.FromCtx(ctx)

	msg := c.Message()
	thread := threadName(c.Chat())
	incoming := core.IncomingMessage{
		Username: senderName(c.Sender()),
		Body:     msg.Text,
		SentAt:   msg.Time().UTC(),
	}

	if link, ok := transport.LoneURL(msg.Text); ok {
		summary, err := b.engine.SummariseURL(ctx, engine.SummaryRequest{
			Bot:     b.identity,
			Thread:  thread,
			URL:     link,
			Trigger: incoming,
		})
		if err != nil {
			logger.Debug().Err(err).Str("url", link).Msg("url not summarised")
			return nil
		}
		return b.sender.sendMarkdown(ctx, c.Chat(), summary, true)
	}

	if !b.addressed(c) {
		// Still stored so later turns see the conversation.
		if _, err := b.engine.Remember(ctx, b.identity, thread, []core.IncomingMessage{incoming}); err != nil {
			logger.Error().Err(err).Msg("failed to store telegram message")
		}
		return nil
	}

	_ = c.Notify(tele.Typing)

	reply, err := b.engine.HandleTurn(ctx, engine.TurnRequest{
		Bot:             b.identity,
		Thread:          thread,
		Messages:        []core.IncomingMessage{incoming},
		PersonaOverride: b.persona,
	})
	if err != nil {
		logger.Error().Err(err).Str("thread", thread).Msg("turn failed")
		if text, ok := transport.UserFacingError(err); ok {
			return b.sender.sendMarkdown(ctx, c.Chat(), text, false)
		}
		return nil
	}

	return b.sender.sendMarkdown(ctx, c.Chat(), reply, false)
}

func (b *Bot) handlePhoto(c tele.Context) error {
	ctx := c.Get(baseContextKey).(context.Context)
	logger := log.FromCtx(ctx)

	msg := c.Message()
	if msg.Photo == nil {
		return nil
	}
	if int64(msg.Photo.FileSize) > engine.MaxImageBytes {
		logger.Info().Int64("size", int64(msg.Photo.FileSize)).Msg("skipped image because it was too large")
		return nil
	}

	rc, err := b.bot.File(&msg.Photo.File)
	if err != nil {
		logger.Error().Err(err).Msg("failed to download telegram photo")
		return nil
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, engine.MaxImageBytes+1))
	if err != nil {
		logger.Error().Err(err).Msg("failed to read telegram photo")
		return nil
	}

	_, err = b.engine.SaveImageDescription(ctx, engine.ImageRequest{
		Bot:      b.identity,
		Thread:   threadName(c.Chat()),
		Username: senderName(c.Sender()),
		SentAt:   msg.Time().UTC(),
		Image:    data,
		MimeType: "image/jpeg",
	})
	if err != nil && !errors.Is(err, core.ErrNotConfigured) {
		logger.Error().Err(err).Msg("failed to describe telegram photo")
	}
	return nil
}

// addressed reports whether the bot should answer: private chats, mentions
// and replies to the bot's own posts.
func (b *Bot) addressed(c tele.Context) bool {
	if c.Chat().Type == tele.ChatPrivate {
		return true
	}

	msg := c.Message()
	if b.identity.Username != "" &&
		strings.Contains(strings.ToLower(msg.Text), "@"+strings.ToLower(b.identity.Username)) {
		return true
	}
	if msg.ReplyTo != nil && msg.ReplyTo.Sender != nil && b.bot.Me != nil {
		return msg.ReplyTo.Sender.ID == b.bot.Me.ID
	}
	return false
}

func threadName(chat *tele.Chat) string {
	return strconv.FormatInt(chat.ID, 10)
}

func senderName(u *tele.User) string {
	if u == nil {
		return "unknown"
	}
	if u.Username != "" {
		return u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
