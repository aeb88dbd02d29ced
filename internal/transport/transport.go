package transport

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/sandevgo/edubot/internal/core"
	"github.com/sandevgo/edubot/internal/service/engine"
)

const (
	PlatformTelegram = "telegram"
	PlatformMatrix   = "matrix"
	PlatformCLI      = "cli"
)

// Engine is what a chat transport needs from the conversation engine.
type Engine interface {
	HandleTurn(ctx context.Context, req engine.TurnRequest) (string, error)
	HandleFeedback(ctx context.Context, bot core.BotIdentity, fb core.Feedback) (bool, error)
	Remember(ctx context.Context, bot core.BotIdentity, thread string, msgs []core.IncomingMessage) (int, error)
	SummariseURL(ctx context.Context, req engine.SummaryRequest) (string, error)
	SaveImageDescription(ctx context.Context, req engine.ImageRequest) (string, error)
}

var _ Engine = (*engine.Engine)(nil)

// LoneURL reports whether text is nothing but a single http(s) link.
func LoneURL(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" || strings.ContainsAny(text, " \t\n") {
		return "", false
	}
	u, err := url.ParseRequestURI(text)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return text, true
}

// UserFacingError turns an engine failure into text that is safe to post back
// to a chat. Quiet failures return false.
func UserFacingError(err error) (string, bool) {
	var providerErr *core.ProviderError
	switch {
	case errors.Is(err, core.ErrNothingToAnswer), errors.Is(err, core.ErrNoContent):
		return "", false
	case errors.Is(err, core.ErrImageTooLarge):
		return "That image is too large for me to look at.", true
	case errors.As(err, &providerErr):
		return "Sorry, I couldn't get an answer from the language model. Please try again.", true
	default:
		return "Sorry, something went wrong on my side.", true
	}
}
