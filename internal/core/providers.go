package core

import "context"

// CompletionProvider generates the next reply for a context. budgetHint is the
// maximum number of tokens the reply may use.
type CompletionProvider interface {
	Complete(ctx context.Context, history []ChatMessage, budgetHint int) (string, error)
}

type ImageDescriber interface {
	DescribeImage(ctx context.Context, image []byte, mimeType string) (string, error)
}

// PageFetcher returns the readable text of a web page.
type PageFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

type Estimator interface {
	Estimate(text string) int
}
