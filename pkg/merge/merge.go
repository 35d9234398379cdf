// Package merge assembles per-segment summaries into one final summary:
// selecting a strategy, deduplicating near-identical content, producing the
// merged text via rule-based, LLM-assisted, or hybrid pipelines, optimizing
// its length, and tracking which input summaries each paragraph came from.
package merge

import (
	"context"
	"fmt"
	"sort"

	"github.com/entropycollective/batchsum/pkg/config"
	"github.com/entropycollective/batchsum/pkg/llm"
	"github.com/entropycollective/batchsum/pkg/topics"
	"github.com/entropycollective/batchsum/pkg/types"
)

// Merger wires the merge subsystem's components together: strategy
// selection, deduplication, the three assembly pipelines, length
// optimization, and source tracking.
type Merger struct {
	cfg        config.MergingConfig
	summarizer llm.Summarizer
	extractor  *topics.Extractor
	learned    *LearningTable
}

// New builds a Merger. summarizer may be nil, in which case every merge
// falls back to the rule-based pipelines. extractor may be nil to skip
// topic-aware strategy selection and structured grouping.
func New(cfg config.MergingConfig, summarizer llm.Summarizer, extractor *topics.Extractor) *Merger {
	return &Merger{
		cfg:        cfg,
		summarizer: summarizer,
		extractor:  extractor,
		learned:    NewLearningTable(),
	}
}

// RecordOutcome feeds a user's satisfaction rating for a completed merge
// back into the learned-strategy table that informs future selections.
func (m *Merger) RecordOutcome(strategy types.MergeStrategy, quality, satisfaction float64) {
	m.learned.Record(strategy, quality, satisfaction)
}

// Merge runs the full pipeline over job.Inputs and returns a populated
// MergeResult. job.Strategy is honored, with the rule-based method, unless
// job.Parameters["autoSelectStrategy"] is true; then Merge selects the
// strategy and method automatically from content characteristics, user
// preferences, and the learned-strategy table.
func (m *Merger) Merge(ctx context.Context, job *types.MergeJob) (*types.MergeResult, error) {
	sorted := sortedCompleted(job.Inputs)
	if len(sorted) == 0 {
		return nil, fmt.Errorf("merge: job %s has no completed segments to merge", job.ID)
	}

	prefs := preferencesFromParameters(job.Parameters)
	content := AnalyzeContent(sorted, m.extractor)

	strategy := job.Strategy
	method := types.MethodRuleBased
	if auto, ok := job.Parameters["autoSelectStrategy"].(bool); ok && auto {
		rec := SelectStrategy(content, prefs, m.learned)
		strategy = rec.Strategy
		method = rec.Method
	}

	inputSummaries := summariesOf(sorted)
	dedupParams := DedupParamsFromConfig(m.cfg.DuplicateDetection)
	dedup := Deduplicate(inputSummaries, dedupParams, m.extractor)

	dedupedTasks := tasksForSummaries(sorted, dedup.DeduplicatedSummaries)

	targetLength := m.cfg.LengthControl.DefaultTarget
	var finalSummary string
	var err error

	switch method {
	case types.MethodHybrid:
		finalSummary, method, err = Hybrid(ctx, strategy, dedupedTasks, m.extractor, m.summarizer, targetLength, m.cfg.MinimumQualityThreshold)
	case types.MethodLLMAssisted:
		finalSummary, err = LLMAssisted(ctx, strategy, dedupedTasks, m.summarizer, targetLength)
		if err != nil {
			finalSummary = RuleBased(strategy, dedupedTasks, m.extractor, targetLength)
			method = types.MethodRuleBased
			err = nil
		}
	default:
		finalSummary = RuleBased(strategy, dedupedTasks, m.extractor, targetLength)
		method = types.MethodRuleBased
	}
	if err != nil {
		return nil, fmt.Errorf("merge: job %s: %w", job.ID, err)
	}

	optimized, optMetrics := Optimize(ctx, finalSummary, m.cfg.LengthControl, m.cfg.MinimumQualityThreshold, m.summarizer)

	trackParams := SourceTrackingParams{
		SimilarityThreshold:       m.cfg.DuplicateDetection.SimilarityThreshold,
		MaxReferencesPerParagraph: m.cfg.MaxReferencesPerParagraph,
	}
	mappings := TrackSources(optimized, inputSummaries, trackParams)
	validation := ValidateSourceMappings(mappings, inputSummaries, trackParams)

	quality := computeQualityMetrics(optMetrics, validation, content)

	inputChars := 0
	for _, s := range inputSummaries {
		inputChars += len(s)
	}

	result := &types.MergeResult{
		FinalSummary:    optimized,
		SourceMappings:  mappings,
		QualityMetrics:  quality,
		AppliedStrategy: strategy,
		AppliedMethod:   method,
		Statistics: types.MergeStatistics{
			InputCount:       len(inputSummaries),
			InputCharacters:  inputChars,
			OutputCharacters: len(optimized),
			DuplicatesRemoved: dedup.DuplicatesRemoved,
		},
	}

	job.Status = types.MergeJobCompleted
	job.Result = result
	return result, nil
}

func sortedCompleted(tasks []*types.SegmentTask) []*types.SegmentTask {
	out := make([]*types.SegmentTask, 0, len(tasks))
	for _, t := range tasks {
		if t.Status == types.TaskCompleted && t.Summary != "" {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SegmentIndex < out[j].SegmentIndex })
	return out
}

// tasksForSummaries re-associates deduplicated summary text with its
// originating SegmentTask, preserving segmentIndex order, so downstream
// pipelines keep access to each task's title and index.
func tasksForSummaries(sorted []*types.SegmentTask, summaries []string) []*types.SegmentTask {
	bySummary := make(map[string]*types.SegmentTask, len(sorted))
	for _, t := range sorted {
		bySummary[t.Summary] = t
	}
	out := make([]*types.SegmentTask, 0, len(summaries))
	seen := make(map[string]bool, len(summaries))
	for _, s := range summaries {
		if seen[s] {
			continue
		}
		seen[s] = true
		if t, ok := bySummary[s]; ok {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SegmentIndex < out[j].SegmentIndex })
	return out
}

func preferencesFromParameters(params map[string]any) UserPreferences {
	prefs := DefaultUserPreferences()
	if v, ok := params["preferences"].(UserPreferences); ok {
		return v
	}
	if v, ok := params["duplicateTolerance"].(float64); ok {
		prefs.DuplicateTolerance = v
	}
	return prefs
}

// computeQualityMetrics blends the optimization pass's scores with the
// source-tracking validation's quality score and the input's content
// overlap into the final MergeResult.QualityMetrics.
func computeQualityMetrics(opt types.OptimizationQualityMetrics, validation ValidationResult, content ContentCharacteristics) types.QualityMetrics {
	completeness := clamp01(1 - content.ContentOverlap*0.2)
	overall := clamp01(0.3*opt.OverallScore + 0.3*validation.QualityScore + 0.2*opt.Coherence + 0.2*completeness)
	return types.QualityMetrics{
		Coherence:    opt.Coherence,
		Completeness: completeness,
		Conciseness:  opt.LengthAccuracy,
		Accuracy:     validation.QualityScore,
		Overall:      overall,
	}
}
