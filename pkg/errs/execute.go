package errs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/entropycollective/batchsum/pkg/types"
)

// Outcome is the uniform return contract for every strategy execution.
type Outcome struct {
	Success             bool
	Message             string
	RequiresFurtherAction bool
	NextAction          string
	Data                map[string]any
}

// FallbackOption is one candidate the Fallback strategy can choose among.
// Execute should perform the fallback and return an error only if the
// fallback itself fails.
type FallbackOption struct {
	Name        string
	Priority    int
	Reliability float64
	Cost        float64
	Execute     func(ctx context.Context) error
}

// Fallback selects the best option by (priority desc, reliability desc,
// cost asc) and executes it, recording the outcome.
func Fallback(ctx context.Context, options []FallbackOption) Outcome {
	if len(options) == 0 {
		return Outcome{Success: false, Message: "no fallback options available"}
	}
	sorted := append([]FallbackOption(nil), options...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Reliability != b.Reliability {
			return a.Reliability > b.Reliability
		}
		return a.Cost < b.Cost
	})

	chosen := sorted[0]
	if err := chosen.Execute(ctx); err != nil {
		return Outcome{
			Success: false,
			Message: fmt.Sprintf("fallback %q failed: %v", chosen.Name, err),
		}
	}
	return Outcome{
		Success: true,
		Message: fmt.Sprintf("fell back to %q", chosen.Name),
		Data:    map[string]any{"option": chosen.Name},
	}
}

// RecoveryStep is one step of a Recovery plan. Execution aborts on the
// first step that returns an error.
type RecoveryStep struct {
	Name    string
	Execute func(ctx context.Context) error
}

// Recovery runs a plan sequentially, aborting at the first failing step.
func Recovery(ctx context.Context, plan []RecoveryStep) Outcome {
	for i, step := range plan {
		if err := step.Execute(ctx); err != nil {
			return Outcome{
				Success:               false,
				Message:               fmt.Sprintf("recovery step %q failed: %v", step.Name, err),
				RequiresFurtherAction: true,
				NextAction:            "manual intervention required",
				Data:                  map[string]any{"failedStep": i, "stepName": step.Name},
			}
		}
	}
	return Outcome{Success: true, Message: "recovery plan completed"}
}

// Guide is the structured remediation advice UserGuidance produces.
type Guide struct {
	Steps               []string
	Tips                []string
	Precautions         []string
	EstimatedResolution time.Duration
	Difficulty          string
	RequiredPermissions []string
}

// UserGuidance synthesizes a Guide tailored to the error's category.
func UserGuidance(category types.ErrorCategory) (Outcome, Guide) {
	var g Guide
	switch category {
	case types.CategoryValidation:
		g = Guide{
			Steps:               []string{"Review the submitted segments", "Ensure concurrencyLimit is between 1 and 10"},
			Tips:                []string{"Empty segment lists are always rejected"},
			Difficulty:          "easy",
			EstimatedResolution: time.Minute,
		}
	case types.CategoryAuthorization:
		g = Guide{
			Steps:               []string{"Confirm you are the batch owner", "Request access if this is shared work"},
			Difficulty:          "easy",
			EstimatedResolution: 5 * time.Minute,
			RequiredPermissions: []string{"batch:owner"},
		}
	default:
		g = Guide{
			Steps:               []string{"Wait for the automatic retry to complete", "Contact support if the batch stays failed"},
			Difficulty:          "easy",
			EstimatedResolution: 10 * time.Minute,
		}
	}
	return Outcome{Success: true, Message: "guidance prepared", Data: map[string]any{"guide": g}}, g
}

// EscalationLevel is assigned from severity when Escalate builds its report.
type EscalationLevel int

const (
	EscalationLow EscalationLevel = iota
	EscalationMedium
	EscalationHigh
	EscalationUrgent
)

func escalationLevelFromSeverity(s types.Severity) EscalationLevel {
	switch s {
	case types.SeverityInfo, types.SeverityWarning:
		return EscalationLow
	case types.SeverityError:
		return EscalationMedium
	case types.SeverityCritical:
		return EscalationHigh
	default:
		return EscalationUrgent
	}
}

// EscalationReport is what Escalate hands to administrators.
type EscalationReport struct {
	Level         EscalationLevel
	Impact        string
	Urgency       string
	RelatedErrors []string
	Diagnostics   map[string]any
}

// EscalateHooks lets the caller (typically pkg/pipeline) wire Escalate's
// side effects — saving partial results and pausing the batch — without
// this package depending on the scheduler or partial-result handler
// directly.
type EscalateHooks struct {
	SavePartialResults func(ctx context.Context) error
	PauseBatch         func(ctx context.Context) error
	NotifyAdmins       func(report EscalationReport) error
}

// Escalate composes a report, assigns a level, saves partial results,
// pauses the batch, and notifies administrators.
func Escalate(ctx context.Context, c *Classified, relatedErrors []string, hooks EscalateHooks) (Outcome, EscalationReport) {
	report := EscalationReport{
		Level:         escalationLevelFromSeverity(c.Severity),
		Impact:        fmt.Sprintf("%s error in %s", c.Category, c.Component),
		Urgency:       c.Severity.String(),
		RelatedErrors: relatedErrors,
		Diagnostics:   map[string]any{"error": c.Err.Error()},
	}

	if hooks.SavePartialResults != nil {
		if err := hooks.SavePartialResults(ctx); err != nil {
			report.Diagnostics["savePartialResultsError"] = err.Error()
		}
	}
	if hooks.PauseBatch != nil {
		if err := hooks.PauseBatch(ctx); err != nil {
			report.Diagnostics["pauseBatchError"] = err.Error()
		}
	}
	if hooks.NotifyAdmins != nil {
		if err := hooks.NotifyAdmins(report); err != nil {
			return Outcome{Success: false, Message: fmt.Sprintf("escalation notify failed: %v", err)}, report
		}
	}
	return Outcome{Success: true, Message: "escalated", RequiresFurtherAction: true, NextAction: "administrator review"}, report
}

// LogAndIgnoreFunc is the logging sink LogAndIgnore writes to.
type LogAndIgnoreFunc func(severity types.Severity, category types.ErrorCategory, message string)

// LogAndIgnore handles an error by logging it alone, without disturbing
// batch state. It is only permitted when severity <= Warning, the category
// is not security-sensitive (Authentication/Authorization), and frequency
// is below the caller's threshold.
func LogAndIgnore(c *Classified, recentCount int, frequencyThreshold int, log LogAndIgnoreFunc) Outcome {
	if !c.Severity.AtMost(types.SeverityWarning) {
		return Outcome{Success: false, Message: "severity too high for LogAndIgnore"}
	}
	if c.Category == types.CategoryAuthentication || c.Category == types.CategoryAuthorization {
		return Outcome{Success: false, Message: "security-sensitive category cannot be ignored"}
	}
	if recentCount > frequencyThreshold {
		return Outcome{Success: false, Message: "error frequency too high to ignore"}
	}
	if log != nil {
		log(c.Severity, c.Category, c.Err.Error())
	}
	return Outcome{Success: true, Message: "logged and ignored"}
}

// StopType classifies the kind of emergency ImmediateStop is responding to.
type StopType int

const (
	StopGeneralCritical StopType = iota
	StopSecurityEmergency
	StopSystemFailure
	StopDataIntegrityRisk
	StopConfigurationCritical
)

func stopTypeFor(category types.ErrorCategory) StopType {
	switch category {
	case types.CategoryAuthentication, types.CategoryAuthorization:
		return StopSecurityEmergency
	case types.CategorySystem:
		return StopSystemFailure
	case types.CategoryStorage:
		return StopDataIntegrityRisk
	case types.CategoryConfiguration:
		return StopConfigurationCritical
	default:
		return StopGeneralCritical
	}
}

// ImmediateStopHooks wires the emergency-stop side effects, mirroring
// EscalateHooks.
type ImmediateStopHooks struct {
	EmergencySaveState func(ctx context.Context) error
	SetUnsafeCheckpoint func()
	BroadcastEmergency func(stopType StopType) error
	ReleaseResources   func(ctx context.Context) error
}

// ImmediateStop executes the full emergency-stop protocol, falling back to
// a minimal stop (unsafe checkpoint + emergency notification) if any full
// step fails — the protocol must always leave the system in a safe-to-abandon
// state even when it can't complete every step.
func ImmediateStop(ctx context.Context, c *Classified, hooks ImmediateStopHooks) Outcome {
	stopType := stopTypeFor(c.Category)
	var failures []string

	if hooks.EmergencySaveState != nil {
		if err := hooks.EmergencySaveState(ctx); err != nil {
			failures = append(failures, "emergency save: "+err.Error())
		}
	}
	if hooks.SetUnsafeCheckpoint != nil {
		hooks.SetUnsafeCheckpoint()
	}
	if hooks.ReleaseResources != nil {
		if err := hooks.ReleaseResources(ctx); err != nil {
			failures = append(failures, "release resources: "+err.Error())
		}
	}
	if hooks.BroadcastEmergency != nil {
		if err := hooks.BroadcastEmergency(stopType); err != nil {
			failures = append(failures, "broadcast: "+err.Error())
		}
	}

	if len(failures) == 0 {
		return Outcome{Success: true, Message: "immediate stop completed", Data: map[string]any{"stopType": int(stopType)}}
	}
	return Outcome{
		Success:               false,
		Message:               "immediate stop degraded to minimal fallback",
		RequiresFurtherAction: true,
		NextAction:            "manual cleanup required",
		Data:                  map[string]any{"stopType": int(stopType), "failures": failures},
	}
}
