package engine

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sandevgo/edubot/internal/core"
	"github.com/sandevgo/edubot/pkg/log"
)

const (
	WebSummaryPrompt = "Your input is scraped text from a website. Your job is to summarise the text and post it to a chatroom.\n" +
		"Long-form text includes pages such as news articles and blog posts.\n" +
		"If the page doesn't contain long-form text return the phrase 'NO CONTENT' and nothing else.\n" +
		"If the page mentions any variation of 'requiring javascript', or 'enable javascript' you should also return 'NO CONTENT' and nothing else.\n" +
		"If the page DOES contain long-form text return a brief 2 sentence summary of the text content. " +
		"This summary will then be sent to users.\n"

	noContentMarker = "NO CONTENT"
	truncateStep    = 100
)

type SummaryRequest struct {
	Bot    core.BotIdentity
	Thread string
	URL    string
	// Trigger is the message that carried the link; the summary replies to it.
	Trigger core.IncomingMessage
}

// SummariseURL fetches the page, asks the provider for a short summary and
// records it as a completion of the trigger message. ErrNoContent is returned
// when the page has nothing worth summarising.
func (e *Engine) SummariseURL(ctx context.Context, req SummaryRequest) (string, error) {
	logger := log.FromCtx(ctx)

	if e.fetcher == nil {
		return "", fmt.Errorf("page fetcher: %w", core.ErrNotConfigured)
	}

	text, err := e.fetcher.FetchText(ctx, req.URL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", req.URL, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", core.ErrNoContent
	}

	text = e.fitPrompt(text)

	chat := []core.ChatMessage{
		{Role: core.RoleSystem, Content: WebSummaryPrompt},
		{Role: core.RoleUser, Content: text},
	}
	reply, err := e.provider.Complete(ctx, chat, e.cfg.CompletionTokens)
	if err != nil {
		return "", &core.ProviderError{Err: err}
	}

	if strings.Contains(strings.ToUpper(reply), noContentMarker) {
		logger.Debug().Str("url", req.URL).Msg("page has no summarisable content")
		return "", core.ErrNoContent
	}
	summary := strings.TrimSpace(reply)
	if summary == "" {
		return "", &core.ProviderError{Err: core.ErrEmptyCompletion}
	}

	thread, err := e.store.GetOrCreateThread(ctx, req.Bot.Platform, req.Thread)
	if err != nil {
		return "", fmt.Errorf("failed to resolve thread: %w", err)
	}
	bot, err := e.store.GetOrCreateBot(ctx, req.Bot.Username, req.Bot.Platform)
	if err != nil {
		return "", fmt.Errorf("failed to resolve bot: %w", err)
	}
	trigger, _, err := e.store.IngestMessage(ctx, thread.ID, req.Trigger)
	if err != nil {
		return "", fmt.Errorf("failed to ingest message: %w", err)
	}
	if _, err := e.store.RecordCompletion(ctx, bot.ID, summary, trigger.ID); err != nil {
		return "", fmt.Errorf("failed to record summary: %w", err)
	}

	logger.Info().Str("url", req.URL).Int64("reply_to", trigger.ID).Msg("url summarised")
	return summary, nil
}

// fitPrompt drops text from the end, truncateStep bytes at a time, until the
// estimate fits the prompt budget. Cuts never split a rune.
func (e *Engine) fitPrompt(text string) string {
	for len(text) > 0 && e.cfg.Estimator.Estimate(text) > e.cfg.PromptTokens {
		cut := len(text) - truncateStep
		if cut < 0 {
			cut = 0
		}
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	return text
}
