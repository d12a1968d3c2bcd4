package agent

import ai "github.com/spetersoncode/dylan"

// TerminationReason indicates why a turn stopped.
type TerminationReason string

const (
	// TerminationComplete indicates the model answered without tool calls.
	TerminationComplete TerminationReason = "complete"

	// TerminationMaxSteps indicates the step limit was reached while the
	// model still requested tools.
	TerminationMaxSteps TerminationReason = "max_steps"

	// TerminationError indicates the model gateway failed.
	TerminationError TerminationReason = "error"

	// TerminationCancelled indicates the caller's context ended the turn.
	TerminationCancelled TerminationReason = "cancelled"
)

// Result is the outcome of a non-streaming turn.
type Result struct {
	SessionID string

	// Content is the concatenation of every token of the turn.
	Content string

	// Final is the content of the last model step.
	Final string

	Termination TerminationReason

	// Steps is the number of model steps taken.
	Steps int

	// Usage aggregates token usage across all steps.
	Usage ai.Usage
}

// MaxStepsReached reports whether the turn was forced to stop.
func (r *Result) MaxStepsReached() bool {
	return r.Termination == TerminationMaxSteps
}
