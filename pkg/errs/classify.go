// Package errs classifies failures into a category/severity/recoverability
// taxonomy, selects a handling Strategy from the (category, severity)
// matrix, and executes each strategy's contract.
package errs

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/entropycollective/batchsum/pkg/types"
)

// Classified wraps an underlying error with its assigned category,
// severity, and recoverability.
type Classified struct {
	Err       error
	Category  types.ErrorCategory
	Severity  types.Severity
	Recoverable bool
	Component string
}

func (c *Classified) Error() string {
	return c.Category.String() + ": " + c.Err.Error()
}

func (c *Classified) Unwrap() error {
	return c.Err
}

// IsRetryable reports whether the classifier considers this error worth a
// scheduler retry: Network and Service categories, plus Timeout (which is
// a Network-or-Service condition raised by a per-call deadline).
func (c *Classified) IsRetryable() bool {
	switch c.Category {
	case types.CategoryNetwork, types.CategoryService, types.CategoryTimeout:
		return c.Recoverable
	default:
		return false
	}
}

func contains(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), needle)
}

func isTimeoutError(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return contains(err.Error(), "timeout") || contains(err.Error(), "deadline exceeded") || errors.Is(err, context.DeadlineExceeded)
}

func isNetworkError(err error) bool {
	msg := err.Error()
	return contains(msg, "connection refused") ||
		contains(msg, "connection reset") ||
		contains(msg, "no such host") ||
		contains(msg, "network is unreachable") ||
		contains(msg, "broken pipe")
}

func isServiceError(err error) bool {
	msg := err.Error()
	return contains(msg, "service unavailable") ||
		contains(msg, "bad gateway") ||
		contains(msg, "gateway timeout") ||
		contains(msg, "rate limit") ||
		contains(msg, "too many requests")
}

func isAuthenticationError(err error) bool {
	msg := err.Error()
	return contains(msg, "unauthorized") || contains(msg, "authentication") || contains(msg, "invalid credentials")
}

func isAuthorizationError(err error) bool {
	msg := err.Error()
	return contains(msg, "forbidden") || contains(msg, "permission denied") || contains(msg, "not authorized")
}

func isStorageError(err error) bool {
	msg := err.Error()
	return contains(msg, "no space left") || contains(msg, "disk") || contains(msg, "storage") || contains(msg, "i/o error")
}

func isValidationError(err error) bool {
	msg := err.Error()
	return contains(msg, "invalid") || contains(msg, "validation") || contains(msg, "required field") || contains(msg, "out of range")
}

func isConfigurationError(err error) bool {
	msg := err.Error()
	return contains(msg, "configuration") || contains(msg, "missing config") || contains(msg, "misconfigured")
}

// Classify maps a raw error to a category/severity/recoverability triple
// via context deadline sentinels and string-pattern matching on the
// message. component is recorded for diagnostics only.
func Classify(err error, component string) *Classified {
	if err == nil {
		return nil
	}

	category := types.CategorySystem
	severity := types.SeverityError
	recoverable := false

	switch {
	case isTimeoutError(err):
		category, severity, recoverable = types.CategoryTimeout, types.SeverityWarning, true
	case isNetworkError(err):
		category, severity, recoverable = types.CategoryNetwork, types.SeverityWarning, true
	case isServiceError(err):
		category, severity, recoverable = types.CategoryService, types.SeverityWarning, true
	case isAuthenticationError(err):
		category, severity, recoverable = types.CategoryAuthentication, types.SeverityError, false
	case isAuthorizationError(err):
		category, severity, recoverable = types.CategoryAuthorization, types.SeverityError, false
	case isStorageError(err):
		category, severity, recoverable = types.CategoryStorage, types.SeverityError, false
	case isValidationError(err):
		category, severity, recoverable = types.CategoryValidation, types.SeverityWarning, false
	case isConfigurationError(err):
		category, severity, recoverable = types.CategoryConfiguration, types.SeverityCritical, false
	default:
		category, severity, recoverable = types.CategoryProcessing, types.SeverityError, false
	}

	return &Classified{
		Err:         err,
		Category:    category,
		Severity:    severity,
		Recoverable: recoverable,
		Component:   component,
	}
}

// ToProcessingError builds the user-facing ProcessingError record from a
// Classified error, assigning a Strategy from the dispatch matrix and a
// plain-language UserMessage/Suggestions pair. batchID may be nil for
// errors not scoped to a batch.
func ToProcessingError(c *Classified, batchID *uuid.UUID) *types.ProcessingError {
	pe := types.NewProcessingError(c.Category, c.Severity, c.Err.Error())
	pe.BatchID = batchID
	pe.IsRecoverable = c.Recoverable
	pe.Strategy = SelectStrategy(c.Category, c.Severity)
	pe.UserMessage, pe.Suggestions = userFacing(c.Category)
	if c.Component != "" {
		pe.Context["component"] = c.Component
	}
	return pe
}

func userFacing(category types.ErrorCategory) (string, []string) {
	switch category {
	case types.CategoryValidation:
		return "Some of the submitted data wasn't valid.", []string{"Check the segment list is non-empty", "Verify concurrency is between 1 and 10"}
	case types.CategoryAuthentication:
		return "We couldn't verify your credentials.", []string{"Sign in again", "Contact support if this persists"}
	case types.CategoryAuthorization:
		return "You don't have permission to do that.", []string{"Confirm you own this batch"}
	case types.CategoryNetwork, types.CategoryTimeout:
		return "A temporary connection problem occurred; we're retrying automatically.", []string{"No action needed yet"}
	case types.CategoryService:
		return "The summarization service is temporarily unavailable.", []string{"We'll retry automatically", "Try again later if this persists"}
	case types.CategoryStorage:
		return "We couldn't save your results.", []string{"Contact support"}
	case types.CategoryConfiguration:
		return "The system is misconfigured.", []string{"Contact an administrator"}
	default:
		return "Something went wrong while processing your batch.", []string{"Please wait for administrator review"}
	}
}
