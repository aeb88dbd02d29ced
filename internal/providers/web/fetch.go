package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/inbucket/html2text"
	"github.com/sandevgo/edubot/internal/core"
	"github.com/sandevgo/edubot/pkg/retry"
)

const (
	maxResponseSize     = 1 << 20 // 1MB limit
	defaultFetchTimeout = 15 * time.Second
)

// Fetcher downloads a page and flattens it to plain text.
type Fetcher struct {
	client  *http.Client
	retrier *retry.Retrier
}

func NewFetcherWithTimeout(timeout time.Duration, retryCfg *retry.Config) *Fetcher {
	if retryCfg == nil {
		retryCfg = retry.NewDefaultConfig()
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		retrier: retry.NewRetrier(retryCfg),
	}
}

func NewFetcher() *Fetcher {
	return NewFetcherWithTimeout(defaultFetchTimeout, nil)
}

var _ core.PageFetcher = (*Fetcher)(nil)

// FetchText retries network failures and 5xx answers. Client errors are final.
func (f *Fetcher) FetchText(ctx context.Context, url string) (string, error) {
	var text string
	err := f.retrier.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("User-Agent", core.EdubotUserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to fetch url: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
			if resp.StatusCode < 500 {
				return retry.Permanent(err)
			}
			return err
		}

		limitedReader := io.LimitReader(resp.Body, maxResponseSize)

		if !isHTML(resp.Header.Get("Content-Type")) {
			raw, err := io.ReadAll(limitedReader)
			if err != nil {
				return fmt.Errorf("failed to read body: %w", err)
			}
			text = string(raw)
			return nil
		}

		text, err = html2text.FromReader(limitedReader, html2text.Options{
			OmitLinks: true,
			TextOnly:  true,
		})
		if err != nil {
			return fmt.Errorf("failed to read body: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(text), nil
}

func isHTML(contentType string) bool {
	return contentType == "" || strings.Contains(contentType, "html")
}
