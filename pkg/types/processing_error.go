package types

import "github.com/google/uuid"

// ErrorCategory classifies the domain of a failure.
type ErrorCategory int

const (
	CategoryValidation ErrorCategory = iota
	CategoryAuthentication
	CategoryAuthorization
	CategoryNetwork
	CategoryService
	CategoryProcessing
	CategoryStorage
	CategorySystem
	CategoryConfiguration
	CategoryTimeout
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryAuthentication:
		return "Authentication"
	case CategoryAuthorization:
		return "Authorization"
	case CategoryNetwork:
		return "Network"
	case CategoryService:
		return "Service"
	case CategoryProcessing:
		return "Processing"
	case CategoryStorage:
		return "Storage"
	case CategorySystem:
		return "System"
	case CategoryConfiguration:
		return "Configuration"
	case CategoryTimeout:
		return "Timeout"
	default:
		return "Validation"
	}
}

// Severity is the graded impact of a failure, used both for strategy
// selection and for retry budget lookup.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "Warning"
	case SeverityError:
		return "Error"
	case SeverityCritical:
		return "Critical"
	case SeverityFatal:
		return "Fatal"
	default:
		return "Info"
	}
}

// AtMost reports whether s is no worse than other.
func (s Severity) AtMost(other Severity) bool {
	return s <= other
}

// Strategy is the handling pattern chosen for a classified error.
type Strategy int

const (
	StrategyRetry Strategy = iota
	StrategyFallback
	StrategyRecovery
	StrategyUserGuidance
	StrategyEscalate
	StrategyLogAndIgnore
	StrategyImmediateStop
)

func (s Strategy) String() string {
	switch s {
	case StrategyFallback:
		return "Fallback"
	case StrategyRecovery:
		return "Recovery"
	case StrategyUserGuidance:
		return "UserGuidance"
	case StrategyEscalate:
		return "Escalate"
	case StrategyLogAndIgnore:
		return "LogAndIgnore"
	case StrategyImmediateStop:
		return "ImmediateStop"
	default:
		return "Retry"
	}
}

// ProcessingError is a classified failure carrying enough context for the
// strategy dispatcher, the notifier, and a human-facing message.
type ProcessingError struct {
	ID               uuid.UUID
	BatchID          *uuid.UUID
	Category         ErrorCategory
	Severity         Severity
	Message          string
	UserMessage      string
	Suggestions      []string
	Context          map[string]any
	IsRecoverable    bool
	RetryAttempts    int
	MaxRetryAttempts int
	Strategy         Strategy
}

// NewProcessingError builds an error record with a fresh ID.
func NewProcessingError(category ErrorCategory, severity Severity, message string) *ProcessingError {
	return &ProcessingError{
		ID:       uuid.New(),
		Category: category,
		Severity: severity,
		Message:  message,
		Context:  make(map[string]any),
	}
}
