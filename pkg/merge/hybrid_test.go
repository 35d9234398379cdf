package merge

import (
	"context"
	"testing"

	"github.com/entropycollective/batchsum/pkg/llm/mock"
	"github.com/entropycollective/batchsum/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestHybridWithNilSummarizerReturnsRuleBased(t *testing.T) {
	out, method, err := Hybrid(context.Background(), types.StrategyBalanced, sampleTasks(), nil, nil, 0, 0.9)
	assert.NoError(t, err)
	assert.Equal(t, types.MethodRuleBased, method)
	assert.NotEmpty(t, out)
}

func TestHybridRefinesWhenOverLength(t *testing.T) {
	m := mock.New()
	m.Responses[0] = "A refined, shorter merged summary."
	tasks := sampleTasks()
	out, method, err := Hybrid(context.Background(), types.StrategyDetailed, tasks, nil, m, 10, 0.0)
	assert.NoError(t, err)
	assert.Equal(t, types.MethodHybrid, method)
	// LLMAssisted trims the 34-byte response to targetLength 10: "A refined,"
	// has no sentence stop, so a "." is appended.
	assert.Equal(t, "A refined,.", out)
}

func TestHybridDegradesGracefullyOnSummarizerError(t *testing.T) {
	m := mock.New()
	m.Errors[0] = assert.AnError
	out, method, err := Hybrid(context.Background(), types.StrategyDetailed, sampleTasks(), nil, m, 5, 0.0)
	assert.NoError(t, err)
	assert.Equal(t, types.MethodRuleBased, method)
	assert.NotEmpty(t, out)
}

func TestHybridSkipsRefineWhenQualityAndLengthAreFine(t *testing.T) {
	m := mock.New()
	out, method, err := Hybrid(context.Background(), types.StrategyConcise, sampleTasks(), nil, m, 0, 0.0)
	assert.NoError(t, err)
	assert.Equal(t, types.MethodRuleBased, method)
	assert.NotEmpty(t, out)
	assert.Equal(t, int64(0), m.Calls())
}
