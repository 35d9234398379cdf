package merge

import (
	"sync"

	"github.com/entropycollective/batchsum/pkg/types"
)

// strategyStats accumulates the observed outcomes of one strategy's prior
// usage, feeding the selector's learned-table input.
type strategyStats struct {
	uses             int
	totalQuality     float64
	totalSatisfaction float64
}

func (s strategyStats) avgQuality() float64 {
	if s.uses == 0 {
		return 0.5
	}
	return s.totalQuality / float64(s.uses)
}

func (s strategyStats) avgSatisfaction() float64 {
	if s.uses == 0 {
		return 0.5
	}
	return s.totalSatisfaction / float64(s.uses)
}

// LearningTable tracks average quality/satisfaction per strategy across
// merges performed by this process. Record is called only from the Merger
// after a completed merge. A plain RWMutex guards the table: lookups share
// the read lock and wait only while a Record holds the write lock.
type LearningTable struct {
	mu    sync.RWMutex
	stats map[types.MergeStrategy]*strategyStats
}

// NewLearningTable returns an empty table; every strategy starts at a
// neutral 0.5 prior until Record has observed at least one use.
func NewLearningTable() *LearningTable {
	return &LearningTable{stats: make(map[types.MergeStrategy]*strategyStats)}
}

// Record folds one merge's observed quality/satisfaction into the running
// average for its strategy.
func (t *LearningTable) Record(strategy types.MergeStrategy, quality, satisfaction float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.stats[strategy]
	if !ok {
		s = &strategyStats{}
		t.stats[strategy] = s
	}
	s.uses++
	s.totalQuality += quality
	s.totalSatisfaction += satisfaction
}

// Lookup returns the current average quality/satisfaction for a strategy,
// defaulting to a neutral 0.5/0.5 prior if it has never been recorded.
func (t *LearningTable) Lookup(strategy types.MergeStrategy) (avgQuality, avgSatisfaction float64) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.stats[strategy]
	if !ok {
		return 0.5, 0.5
	}
	return s.avgQuality(), s.avgSatisfaction()
}
