// Package similarity provides the scoring primitives the merger uses for
// deduplication and source tracking: Jaccard token overlap, cosine
// term-frequency similarity, normalized edit distance, and a weighted
// blend of the three. All scores are in [0,1].
package similarity

import (
	"math"
	"strings"
)

// Weights is the blend used by Combined: Jaccard 0.4 + Cosine 0.4 +
// EditDistance 0.2. Exposed as a var (not a constant) so
// callers needing a different blend can override it explicitly rather than
// the blend being silently hardcoded.
var Weights = struct {
	Jaccard     float64
	Cosine      float64
	EditDistance float64
}{Jaccard: 0.4, Cosine: 0.4, EditDistance: 0.2}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// Jaccard returns |A∩B| / |A∪B| over the whitespace-tokenized words of a
// and b. Two empty strings are defined as identical (score 1).
func Jaccard(a, b string) float64 {
	setA := tokenSet(tokenize(a))
	setB := tokenSet(tokenize(b))
	if len(setA) == 0 && len(setB) == 0 {
		return 1
	}
	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Cosine returns the cosine similarity of the term-frequency vectors of a
// and b.
func Cosine(a, b string) float64 {
	freqA := termFrequency(tokenize(a))
	freqB := termFrequency(tokenize(b))
	if len(freqA) == 0 && len(freqB) == 0 {
		return 1
	}

	var dot, magA, magB float64
	for term, countA := range freqA {
		dot += countA * freqB[term]
		magA += countA * countA
	}
	for _, countB := range freqB {
		magB += countB * countB
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

func termFrequency(tokens []string) map[string]float64 {
	freq := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		freq[t]++
	}
	return freq
}

// EditDistance returns a normalized Levenshtein similarity in [0,1]: 1 for
// identical strings, decreasing toward 0 as edits required grow relative to
// the longer string's length.
func EditDistance(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	m, n := len(ra), len(rb)
	if m == 0 {
		return n
	}
	if n == 0 {
		return m
	}

	prev := make([]int, n+1)
	curr := make([]int, n+1)
	for j := 0; j <= n; j++ {
		prev[j] = j
	}

	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[n]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

// Combined blends Jaccard, Cosine, and EditDistance by Weights. This is the
// "semantic similarity" measure the merger uses; no embedding model is
// consulted.
func Combined(a, b string) float64 {
	return Weights.Jaccard*Jaccard(a, b) +
		Weights.Cosine*Cosine(a, b) +
		Weights.EditDistance*EditDistance(a, b)
}
