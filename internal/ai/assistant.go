package ai

import (
	"context"
	"errors"
)

// ErrRateLimited marks failures caused by provider throttling. Callers may
// retry these; any other call error is fatal for the operation.
var ErrRateLimited = errors.New("rate limited by ai provider")

// Completer issues a single chat-style completion: a system instruction plus
// one user turn, bounded by maxTokens.
type Completer interface {
	Complete(ctx context.Context, system, user string, maxTokens int32) (string, error)
}

// Embedder turns text into a fixed-dimension vector. Implementations degrade
// to a zero vector of that dimension when the provider stays rate-limited.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Assistant bundles both model operations the pipeline needs.
type Assistant interface {
	Completer
	Embedder
}
