// Package topics extracts keywords and topic labels from segment summaries,
// used by the merger's Structured rule-based pipeline (group summaries by
// topic, emit section headings).
package topics

import (
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2/analysis"
	_ "github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/registry"
)

// Extractor tokenizes and stems text with bleve's English analyzer
// (lowercasing, stop-word removal, Porter stemming) and ranks the surviving
// terms by frequency.
type Extractor struct {
	analyzer analysis.Analyzer
}

// NewExtractor builds an Extractor around bleve's registered "en"
// English analyzer, resolved the same way bleve's own index mappings
// resolve analyzers: through a registry.Cache.
func NewExtractor() (*Extractor, error) {
	cache := registry.NewCache()
	analyzer, err := cache.AnalyzerNamed("en")
	if err != nil {
		return nil, err
	}
	return &Extractor{analyzer: analyzer}, nil
}

// Keywords returns up to topN stemmed terms ranked by frequency, highest
// first. Ties break by first-seen order for determinism.
func (e *Extractor) Keywords(text string, topN int) []string {
	freq := make(map[string]int)
	order := make([]string, 0)

	tokens := e.analyzer.Analyze([]byte(text))
	for _, tok := range tokens {
		term := string(tok.Term)
		if term == "" {
			continue
		}
		if _, seen := freq[term]; !seen {
			order = append(order, term)
		}
		freq[term]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return freq[order[i]] > freq[order[j]]
	})

	if topN > 0 && len(order) > topN {
		order = order[:topN]
	}
	return order
}

// Topic labels a group of summaries with its single most frequent shared
// keyword, or "general" if no keyword appears in more than one summary.
func (e *Extractor) Topic(summaries []string) string {
	freq := make(map[string]int)
	for _, s := range summaries {
		seen := make(map[string]bool)
		for _, k := range e.Keywords(s, 10) {
			if !seen[k] {
				freq[k]++
				seen[k] = true
			}
		}
	}

	best, bestCount := "", 1
	for term, count := range freq {
		if count > bestCount || (count == bestCount && term < best) {
			best, bestCount = term, count
		}
	}
	if best == "" {
		return "general"
	}
	return best
}

// Diversity estimates topic diversity across a set of summaries as the
// fraction of distinct top keywords relative to the number of summaries,
// clamped to [0,1]. Used by the merger's strategy selector as a content
// characteristic.
func (e *Extractor) Diversity(summaries []string) float64 {
	if len(summaries) == 0 {
		return 0
	}
	distinct := make(map[string]bool)
	for _, s := range summaries {
		kws := e.Keywords(s, 1)
		if len(kws) > 0 {
			distinct[kws[0]] = true
		}
	}
	diversity := float64(len(distinct)) / float64(len(summaries))
	if diversity > 1 {
		diversity = 1
	}
	return diversity
}

// NormalizeWhitespace collapses runs of whitespace, used post-merge.
func NormalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
