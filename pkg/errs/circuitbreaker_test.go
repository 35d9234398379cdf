package errs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entropycollective/batchsum/pkg/llm/mock"
)

func failingSummarizer(n int, err error) *mock.Summarizer {
	m := mock.New()
	for i := 0; i < n; i++ {
		m.Errors[i] = err
	}
	return m
}

func TestGuardTripsAfterConsecutiveTransientFailures(t *testing.T) {
	inner := failingSummarizer(10, errors.New("dial tcp: connection refused"))
	g := Guard(inner, BreakerConfig{TripThreshold: 2, Cooldown: time.Minute})

	_, err := g.Summarize(context.Background(), "a")
	require.Error(t, err)
	_, err = g.Summarize(context.Background(), "b")
	require.Error(t, err)

	_, err = g.Summarize(context.Background(), "c")
	assert.ErrorIs(t, err, ErrSummarizerUnavailable)
	assert.Equal(t, int64(2), g.Stats().TotalFailures, "rejected calls never reach the provider")
	assert.False(t, g.IsHealthy(context.Background()))
}

func TestGuardIgnoresNonTransientFailures(t *testing.T) {
	inner := failingSummarizer(10, errors.New("validation: segment content required"))
	g := Guard(inner, BreakerConfig{TripThreshold: 2, Cooldown: time.Minute})

	for i := 0; i < 5; i++ {
		_, err := g.Summarize(context.Background(), "x")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrSummarizerUnavailable)
	}
	assert.False(t, g.Stats().Tripped)
}

func TestGuardRecoversAfterCooldownProbe(t *testing.T) {
	inner := failingSummarizer(2, errors.New("service unavailable"))
	g := Guard(inner, BreakerConfig{TripThreshold: 2, Cooldown: 10 * time.Millisecond})

	_, _ = g.Summarize(context.Background(), "a")
	_, _ = g.Summarize(context.Background(), "b")
	require.True(t, g.Stats().Tripped)

	time.Sleep(20 * time.Millisecond)

	summary, err := g.Summarize(context.Background(), "probe")
	require.NoError(t, err)
	assert.NotEmpty(t, summary)
	assert.False(t, g.Stats().Tripped)
	assert.True(t, g.IsHealthy(context.Background()))
}

func TestGuardOnTripCallbackFires(t *testing.T) {
	inner := failingSummarizer(10, errors.New("connection reset"))
	g := Guard(inner, BreakerConfig{TripThreshold: 1, Cooldown: time.Minute})

	tripped := make(chan bool, 1)
	g.OnTrip(func(t bool) { tripped <- t })

	_, _ = g.Summarize(context.Background(), "a")

	select {
	case v := <-tripped:
		assert.True(t, v)
	case <-time.After(time.Second):
		t.Fatal("OnTrip callback never fired")
	}
}

func TestGuardSuccessResetsConsecutiveCount(t *testing.T) {
	inner := mock.New()
	inner.Errors[0] = errors.New("gateway timeout")
	inner.Errors[2] = errors.New("gateway timeout")
	g := Guard(inner, BreakerConfig{TripThreshold: 2, Cooldown: time.Minute})

	_, err := g.Summarize(context.Background(), "a")
	require.Error(t, err)
	_, err = g.Summarize(context.Background(), "b")
	require.NoError(t, err)
	_, err = g.Summarize(context.Background(), "c")
	require.Error(t, err)

	assert.False(t, g.Stats().Tripped)
	assert.Equal(t, 1, g.Stats().ConsecutiveFailures)
}
