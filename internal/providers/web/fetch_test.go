package web

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sandevgo/edubot/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() *retry.Config {
	return &retry.Config{
		MaxRetries:    2,
		InitialDelay:  time.Millisecond,
		MaxDelay:      time.Millisecond,
		BackoffFactor: 1.0,
	}
}

func TestFetcher_FetchText(t *testing.T) {
	tests := []struct {
		name            string
		handler         http.HandlerFunc
		useShortTimeout bool
		wantErr         bool
		wantContains    string
		wantMissing     string
		wantErrMsg      string
	}{
		{
			name: "html is flattened to text",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				fmt.Fprint(w, `<html><body><h1>Daily News</h1><p>Hello <a href="https://example.com">World</a></p></body></html>`)
			},
			wantContains: "Daily News",
			wantMissing:  "https://example.com",
		},
		{
			name: "plain text passes through",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				fmt.Fprint(w, "  just text  ")
			},
			wantContains: "just text",
		},
		{
			name: "404 error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			wantErr:    true,
			wantErrMsg: "HTTP 404",
		},
		{
			name: "500 error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantErr:    true,
			wantErrMsg: "HTTP 500",
		},
		{
			name: "large response gets truncated",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/plain")
				fmt.Fprint(w, strings.Repeat("a", maxResponseSize+100))
			},
			wantContains: strings.Repeat("a", maxResponseSize),
		},
		{
			name: "timeout handling",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(500 * time.Millisecond)
			},
			useShortTimeout: true,
			wantErr:         true,
			wantErrMsg:      "failed to fetch url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			timeout := defaultFetchTimeout
			if tt.useShortTimeout {
				timeout = 100 * time.Millisecond
			}
			fetcher := NewFetcherWithTimeout(timeout, fastRetry())

			result, err := fetcher.FetchText(context.Background(), server.URL)

			if tt.wantErr {
				require.Error(t, err)
				if tt.wantErrMsg != "" {
					assert.Contains(t, err.Error(), tt.wantErrMsg)
				}
				return
			}
			require.NoError(t, err)
			assert.Contains(t, result, tt.wantContains)
			if tt.wantMissing != "" {
				assert.NotContains(t, result, tt.wantMissing)
			}
			assert.Len(t, result, len(strings.TrimSpace(result)))
		})
	}
}

func TestFetcher_RetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "Success after retries")
	}))
	defer server.Close()

	fetcher := NewFetcherWithTimeout(defaultFetchTimeout, fastRetry())
	result, err := fetcher.FetchText(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Equal(t, "Success after retries", result)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestFetcher_ClientErrorIsNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	fetcher := NewFetcherWithTimeout(defaultFetchTimeout, fastRetry())
	_, err := fetcher.FetchText(context.Background(), server.URL)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 403")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestFetcher_UserAgent(t *testing.T) {
	var receivedUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := NewFetcherWithTimeout(defaultFetchTimeout, fastRetry()).FetchText(context.Background(), server.URL)

	require.NoError(t, err)
	assert.Contains(t, receivedUA, "EduBot")
}
