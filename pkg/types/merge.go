package types

import "github.com/google/uuid"

// MergeStrategy is the style of final-summary assembly.
type MergeStrategy int

const (
	StrategyConcise MergeStrategy = iota
	StrategyDetailed
	StrategyStructured
	StrategyBalanced
	StrategyCustom
)

func (s MergeStrategy) String() string {
	switch s {
	case StrategyDetailed:
		return "Detailed"
	case StrategyStructured:
		return "Structured"
	case StrategyBalanced:
		return "Balanced"
	case StrategyCustom:
		return "Custom"
	default:
		return "Concise"
	}
}

// MergeMethod is the engine used to produce a merge result.
type MergeMethod int

const (
	MethodRuleBased MergeMethod = iota
	MethodStatistical
	MethodLLMAssisted
	MethodHybrid
)

func (m MergeMethod) String() string {
	switch m {
	case MethodStatistical:
		return "Statistical"
	case MethodLLMAssisted:
		return "LLMAssisted"
	case MethodHybrid:
		return "Hybrid"
	default:
		return "RuleBased"
	}
}

// MergeJobStatus is the lifecycle state of a MergeJob.
type MergeJobStatus int

const (
	MergeJobPending MergeJobStatus = iota
	MergeJobRunning
	MergeJobCompleted
	MergeJobFailed
)

func (s MergeJobStatus) String() string {
	switch s {
	case MergeJobRunning:
		return "Running"
	case MergeJobCompleted:
		return "Completed"
	case MergeJobFailed:
		return "Failed"
	default:
		return "Pending"
	}
}

// ReferenceType bands how strongly a paragraph reflects a source summary.
type ReferenceType int

const (
	ReferenceInferred ReferenceType = iota
	ReferenceSummary
	ReferenceParaphrase
	ReferenceDirect
)

func (r ReferenceType) String() string {
	switch r {
	case ReferenceSummary:
		return "Summary"
	case ReferenceParaphrase:
		return "Paraphrase"
	case ReferenceDirect:
		return "Direct"
	default:
		return "Inferred"
	}
}

// ReferenceTypeFromSimilarity bands a similarity score into a ReferenceType
// per the fixed thresholds: >0.9 Direct, >0.7 Paraphrase, >0.5 Summary, else
// Inferred.
func ReferenceTypeFromSimilarity(similarity float64) ReferenceType {
	switch {
	case similarity > 0.9:
		return ReferenceDirect
	case similarity > 0.7:
		return ReferenceParaphrase
	case similarity > 0.5:
		return ReferenceSummary
	default:
		return ReferenceInferred
	}
}

// ParagraphSourceMapping links one paragraph of a final summary back to the
// source segment summaries it was drawn from.
type ParagraphSourceMapping struct {
	ParagraphIndex int
	SourceIndices  []int
	Similarities   []float64
	ReferenceTypes []ReferenceType
}

// QualityMetrics scores a merge result along several independent axes, each
// normalized to [0,1].
type QualityMetrics struct {
	Coherence    float64
	Completeness float64
	Conciseness  float64
	Accuracy     float64
	Overall      float64
}

// OptimizationQualityMetrics scores a length-optimization pass.
type OptimizationQualityMetrics struct {
	ContentRetention float64
	Fluency          float64
	Coherence        float64
	LengthAccuracy   float64
	OverallScore     float64
}

// MergeStatistics carries simple counters about a merge's inputs and output.
type MergeStatistics struct {
	InputCount      int
	InputCharacters int
	OutputCharacters int
	DuplicatesRemoved int
}

// MergeResult is the output of a completed MergeJob.
type MergeResult struct {
	FinalSummary   string
	SourceMappings []ParagraphSourceMapping
	QualityMetrics QualityMetrics
	Statistics     MergeStatistics
	AppliedStrategy MergeStrategy
	AppliedMethod   MergeMethod
}

// MergeJob is a request to assemble per-segment summaries into one final
// summary under a chosen strategy.
type MergeJob struct {
	ID         uuid.UUID
	Inputs     []*SegmentTask
	Strategy   MergeStrategy
	Parameters map[string]any
	Status     MergeJobStatus
	Result     *MergeResult
}

// NewMergeJob builds a Pending job over the given completed tasks.
func NewMergeJob(inputs []*SegmentTask, strategy MergeStrategy, parameters map[string]any) *MergeJob {
	if parameters == nil {
		parameters = make(map[string]any)
	}
	return &MergeJob{
		ID:         uuid.New(),
		Inputs:     inputs,
		Strategy:   strategy,
		Parameters: parameters,
		Status:     MergeJobPending,
	}
}

// StrategyEvaluation is one candidate strategy's scoring from the selector.
type StrategyEvaluation struct {
	Strategy         MergeStrategy
	Suitability      float64
	EstimatedQuality float64
	Efficiency       float64
}

// StrategyRecommendation is the selector's chosen strategy plus its
// alternatives, for callers that want to override or inspect reasoning.
type StrategyRecommendation struct {
	Strategy    MergeStrategy
	Method      MergeMethod
	Parameters  map[string]any
	Confidence  float64
	Reasons     []string
	Alternatives []StrategyEvaluation
}

// DuplicateGroup is a cluster of summaries judged near-duplicates of a
// single representative.
type DuplicateGroup struct {
	RepresentativeIndex int
	MemberIndices       []int
}

// DeduplicationResult is the output of a deduplication pass.
type DeduplicationResult struct {
	OriginalCount          int
	FinalCount             int
	DuplicatesRemoved      int
	DuplicateGroups        []DuplicateGroup
	DeduplicatedSummaries  []string
}
