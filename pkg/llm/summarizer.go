// Package llm defines the external summarizer port the scheduler and
// merger call through. Concrete providers (OpenAI, Ollama, ...) live
// outside this module; this package only carries the contract and a mock
// implementation for tests.
package llm

import "context"

// Summarizer is the external summarizer port. Summarize must respect ctx
// cancellation: a cancelled batch's in-flight call should return promptly
// with ctx.Err() once the context is done.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
	IsHealthy(ctx context.Context) bool
}
