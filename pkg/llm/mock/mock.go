// Package mock provides a deterministic, in-process llm.Summarizer for
// tests and local development, standing in for external providers.
package mock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Summarizer is a configurable mock of llm.Summarizer. By default it
// returns a fixed-prefix summary of the input; Responses and Errors let
// tests script per-call behavior (e.g. "fail once, then succeed" for retry
// tests).
type Summarizer struct {
	mu        sync.Mutex
	calls     int64
	healthy   atomic.Bool
	Responses map[int]string // call index (0-based) -> forced response
	Errors    map[int]error  // call index (0-based) -> forced error
	Delay     func(callIndex int) error
}

// New returns a healthy mock summarizer.
func New() *Summarizer {
	m := &Summarizer{
		Responses: make(map[int]string),
		Errors:    make(map[int]error),
	}
	m.healthy.Store(true)
	return m
}

// Calls reports how many times Summarize has been invoked.
func (m *Summarizer) Calls() int64 {
	return atomic.LoadInt64(&m.calls)
}

// SetHealthy controls the result of IsHealthy.
func (m *Summarizer) SetHealthy(healthy bool) {
	m.healthy.Store(healthy)
}

// Summarize returns a scripted response/error for this call index if one
// was registered, otherwise a deterministic default summary.
func (m *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	idx := int(atomic.AddInt64(&m.calls, 1)) - 1

	if m.Delay != nil {
		if err := m.Delay(idx); err != nil {
			return "", err
		}
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	m.mu.Lock()
	err, hasErr := m.Errors[idx]
	resp, hasResp := m.Responses[idx]
	m.mu.Unlock()

	if hasErr {
		return "", err
	}
	if hasResp {
		return resp, nil
	}

	if len(text) > 40 {
		text = text[:40] + "..."
	}
	return fmt.Sprintf("summary(%s)", text), nil
}

// IsHealthy reports the mock's configured health state.
func (m *Summarizer) IsHealthy(ctx context.Context) bool {
	return m.healthy.Load()
}
