package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/edubot/internal/core"
	"github.com/sandevgo/edubot/pkg/log"
)

const (
	MaxImageBytes = 50 << 20

	imagePrefix = "*An image of "
)

type ImageRequest struct {
	Bot      core.BotIdentity
	Thread   string
	Username string
	SentAt   time.Time
	Image    []byte
	MimeType string
}

// SaveImageDescription captions the image and stores the caption as a message
// from the sender, so later turns can refer to it.
func (e *Engine) SaveImageDescription(ctx context.Context, req ImageRequest) (string, error) {
	if len(req.Image) > MaxImageBytes {
		return "", fmt.Errorf("%d bytes: %w", len(req.Image), core.ErrImageTooLarge)
	}
	if e.describer == nil {
		return "", fmt.Errorf("image describer: %w", core.ErrNotConfigured)
	}

	caption, err := e.describer.DescribeImage(ctx, req.Image, req.MimeType)
	if err != nil {
		return "", &core.ProviderError{Err: err}
	}
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return "", &core.ProviderError{Err: core.ErrEmptyCompletion}
	}

	thread, err := e.store.GetOrCreateThread(ctx, req.Bot.Platform, req.Thread)
	if err != nil {
		return "", fmt.Errorf("failed to resolve thread: %w", err)
	}

	msg, _, err := e.store.IngestMessage(ctx, thread.ID, core.IncomingMessage{
		Username: req.Username,
		Body:     imagePrefix + caption,
		SentAt:   req.SentAt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to store image description: %w", err)
	}

	log.FromCtx(ctx).Info().Int64("message_id", msg.ID).Str("user", req.Username).Msg("image described")
	return caption, nil
}
