package errs

import "github.com/entropycollective/batchsum/pkg/types"

// SelectStrategy implements the (category, severity) -> strategy matrix.
// Severity buckets into Info/Warning, Error, and Critical/Fatal
// columns. Transient categories resolve to Retry here; the scheduler
// exhausts the retry budget first, and Fallback is reached only once
// retries are spent, via RetriesExhausted below.
func SelectStrategy(category types.ErrorCategory, severity types.Severity) types.Strategy {
	col := severityColumn(severity)
	row, ok := matrix[category]
	if !ok {
		return types.StrategyEscalate
	}
	return row[col]
}

// RetriesExhausted resolves the strategy once a Network/Service error's
// retry budget is spent: their Retry verdict degrades to Fallback at that
// point instead of failing outright.
func RetriesExhausted(category types.ErrorCategory, severity types.Severity) types.Strategy {
	strategy := SelectStrategy(category, severity)
	if strategy == types.StrategyRetry && (category == types.CategoryNetwork || category == types.CategoryService || category == types.CategoryTimeout) {
		return types.StrategyFallback
	}
	return strategy
}

type severityCol int

const (
	colInfoWarning severityCol = iota
	colError
	colCriticalFatal
)

func severityColumn(s types.Severity) severityCol {
	switch s {
	case types.SeverityInfo, types.SeverityWarning:
		return colInfoWarning
	case types.SeverityError:
		return colError
	default:
		return colCriticalFatal
	}
}

var matrix = map[types.ErrorCategory][3]types.Strategy{
	types.CategoryValidation:     {types.StrategyUserGuidance, types.StrategyUserGuidance, types.StrategyEscalate},
	types.CategoryAuthentication: {types.StrategyEscalate, types.StrategyEscalate, types.StrategyImmediateStop},
	types.CategoryAuthorization:  {types.StrategyUserGuidance, types.StrategyEscalate, types.StrategyImmediateStop},
	types.CategoryNetwork:        {types.StrategyRetry, types.StrategyRetry, types.StrategyEscalate},
	types.CategoryService:        {types.StrategyRetry, types.StrategyRetry, types.StrategyEscalate},
	types.CategoryTimeout:        {types.StrategyRetry, types.StrategyRetry, types.StrategyEscalate},
	types.CategoryProcessing:     {types.StrategyLogAndIgnore, types.StrategyRecovery, types.StrategyImmediateStop},
	types.CategoryStorage:        {types.StrategyEscalate, types.StrategyEscalate, types.StrategyImmediateStop},
	types.CategorySystem:         {types.StrategyLogAndIgnore, types.StrategyRecovery, types.StrategyImmediateStop},
}

// RetryBudget returns (maxRetries, baseDelayMs) for a severity:
// Info 5/500, Warning 3/1000, Error 2/2000, Critical 1/1000 (no backoff
// growth beyond the base delay — callers should treat Critical's backoff
// as constant, not exponential).
func RetryBudget(severity types.Severity) (maxRetries int, baseDelayMs int) {
	switch severity {
	case types.SeverityInfo:
		return 5, 500
	case types.SeverityWarning:
		return 3, 1000
	case types.SeverityError:
		return 2, 2000
	default:
		return 1, 1000
	}
}

// BackoffDelayMs computes baseDelay * 2^attempt capped at 30s.
// Critical/Fatal severities use a flat delay (no exponential growth) per
// RetryBudget's single-attempt allowance.
func BackoffDelayMs(severity types.Severity, attempt int) int {
	_, base := RetryBudget(severity)
	if severity == types.SeverityCritical || severity == types.SeverityFatal {
		return base
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= 30000 {
			return 30000
		}
	}
	return delay
}
