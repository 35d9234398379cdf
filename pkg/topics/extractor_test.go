package topics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeywordsRanksByFrequency(t *testing.T) {
	ex, err := NewExtractor()
	require.NoError(t, err)

	keywords := ex.Keywords("the cache stores blocks, the cache evicts blocks, blocks are content addressed", 3)
	require.NotEmpty(t, keywords)
	require.Contains(t, keywords[:2], "block")
}

func TestTopicFallsBackToGeneral(t *testing.T) {
	ex, err := NewExtractor()
	require.NoError(t, err)

	topic := ex.Topic([]string{"apples and oranges", "completely unrelated sentence"})
	require.Equal(t, "general", topic)
}

func TestDiversityBounded(t *testing.T) {
	ex, err := NewExtractor()
	require.NoError(t, err)

	d := ex.Diversity([]string{"networking protocols", "storage engines", "networking latency"})
	require.GreaterOrEqual(t, d, 0.0)
	require.LessOrEqual(t, d, 1.0)
}

func TestNormalizeWhitespace(t *testing.T) {
	require.Equal(t, "a b c", NormalizeWhitespace("a   b\n\tc"))
}
