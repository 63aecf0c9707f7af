package engine

import (
	"context"
	"time"

	"github.com/ledgerline-ai/bulwark/internal/guardrail"
	"github.com/ledgerline-ai/bulwark/internal/judge"
	"go.uber.org/zap"
)

// Outcome is the audit-level classification of one guardrail's
// evaluation: exactly one of skip, success, or error.
type Outcome int

const (
	OutcomeSkip Outcome = iota + 1
	OutcomeSuccess
	OutcomeError
)

// String returns the lowercase outcome name (stored in audit entries).
func (o Outcome) String() string {
	switch o {
	case OutcomeSkip:
		return "skip"
	case OutcomeSuccess:
		return "success"
	case OutcomeError:
		return "error"
	default:
		return "unspecified"
	}
}

// State is the terminal state of the per-guardrail evaluation state
// machine: NotEvaluated → {Skipped|Triggered}; Triggered →
// {CheckError|Compliant|Violated}; Violated → ActionApplied.
type State int

const (
	StateSkipped State = iota + 1
	StateCheckError
	StateCompliant
	StateActionApplied
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateSkipped:
		return "skipped"
	case StateCheckError:
		return "check_error"
	case StateCompliant:
		return "compliant"
	case StateActionApplied:
		return "action_applied"
	default:
		return "not_evaluated"
	}
}

// EvaluationResult is the immutable per-guardrail outcome of one
// evaluation, produced fresh each call.
type EvaluationResult struct {
	GuardrailID string
	Outcome     Outcome
	State       State

	Triggered bool
	Violated  bool // meaningful only when Triggered

	// Action is set when a violation led to an action being applied.
	Action *ActionOutcome

	// Err is the contained evaluation error (Outcome == OutcomeError).
	Err *EvalError

	// RecordDetails lists per-record observations from the check.
	RecordDetails []RecordDetail

	// Summary is a short description of what the check found.
	Summary string

	// Elapsed is how long this guardrail's evaluation took.
	Elapsed time.Duration
}

// CountsExecution reports whether this result increments the
// guardrail's execution counter: every evaluation whose trigger
// matched, whether it succeeded or errored.
func (r *EvaluationResult) CountsExecution() bool {
	return r.Outcome != OutcomeSkip
}

// CountsApplied reports whether this result increments the applied
// counter: a violation was found and the action ran.
func (r *EvaluationResult) CountsApplied() bool {
	return r.Violated && r.Action != nil
}

// BatchResult is the aggregate outcome of evaluating one event against
// an ordered set of guardrails.
type BatchResult struct {
	// Results holds one entry per evaluated guardrail, in input order.
	// On caller cancellation it holds only the already-computed
	// prefix.
	Results []*EvaluationResult

	// Event is the final payload after all filter actions composed in
	// guardrail order. It is the caller's input when nothing filtered.
	Event *Event

	// Interrupted is true when any guardrail's action signalled
	// interrupt_agent. The loop still runs to completion; the caller
	// decides what to halt.
	Interrupted bool
}

// Orchestrator runs trigger → check → action per guardrail,
// sequentially and in order, containing per-guardrail errors so one
// bad rule never aborts the batch.
type Orchestrator struct {
	judge  judge.Client
	logger *zap.Logger
	now    func() time.Time
}

// NewOrchestrator creates an orchestrator. j may be nil when no judge
// is configured; llm_judge checks then evaluate to an error outcome
// rather than silently passing.
func NewOrchestrator(j judge.Client, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{judge: j, logger: logger, now: time.Now}
}

// Evaluate runs every guardrail against the event. Each
// filter_records output becomes the next guardrail's input event.
// Caller cancellation aborts the remaining iterations and returns the
// partial results; no guardrail is evaluated twice.
func (o *Orchestrator) Evaluate(ctx context.Context, ev *Event, defs []*guardrail.Definition) *BatchResult {
	batch := &BatchResult{
		Results: make([]*EvaluationResult, 0, len(defs)),
		Event:   ev,
	}
	memo := newJudgeMemo()

	for _, def := range defs {
		if ctx.Err() != nil {
			o.logger.Warn("evaluation cancelled, returning partial results",
				zap.Int("evaluated", len(batch.Results)),
				zap.Int("total", len(defs)),
			)
			break
		}

		result := o.evaluateOne(ctx, batch, def, memo)
		batch.Results = append(batch.Results, result)

		if result.Err != nil {
			o.logger.Warn("guardrail evaluation error",
				zap.String("guardrail_id", def.ID),
				zap.String("kind", result.Err.Kind.String()),
				zap.Error(result.Err),
			)
		}
	}

	return batch
}

// evaluateOne runs the per-guardrail state machine. The batch's event
// is advanced in place when a filter action produces a new payload.
func (o *Orchestrator) evaluateOne(ctx context.Context, batch *BatchResult, def *guardrail.Definition, memo *judgeMemo) (result *EvaluationResult) {
	start := time.Now()
	result = &EvaluationResult{GuardrailID: def.ID}
	defer func() { result.Elapsed = time.Since(start) }()

	// Trigger phase. A non-matching trigger (or an inactive rule the
	// caller passed anyway) is a skip: no check, no action, no
	// execution-counter increment.
	if !def.IsActive {
		result.Outcome = OutcomeSkip
		result.State = StateSkipped
		result.Summary = "guardrail inactive"
		return result
	}

	matched, err := def.Trigger.Matches(batch.Event.ToolName)
	if err != nil {
		// Invalid trigger config counts as an executed evaluation — it
		// surfaced only because the rule was asked to run.
		result.Outcome = OutcomeError
		result.State = StateCheckError
		result.Err = wrapEvalError(err)
		return result
	}
	if !matched {
		result.Outcome = OutcomeSkip
		result.State = StateSkipped
		result.Summary = "trigger did not match"
		return result
	}
	result.Triggered = true

	// Check phase.
	check, err := o.runCheck(ctx, batch.Event, def.Check, memo)
	if err != nil {
		result.Outcome = OutcomeError
		result.State = StateCheckError
		result.Err = wrapEvalError(err)
		return result
	}
	result.RecordDetails = check.Details
	result.Summary = check.Summary

	if !check.Violated {
		result.Outcome = OutcomeSuccess
		result.State = StateCompliant
		return result
	}
	result.Violated = true

	// Action phase. Later guardrails observe this guardrail's
	// filtering.
	next, outcome, err := applyAction(batch.Event, def.Action, check.ViolatingRecords)
	if err != nil {
		result.Outcome = OutcomeError
		result.State = StateCheckError
		result.Err = wrapEvalError(err)
		return result
	}

	batch.Event = next
	if outcome.Interrupt {
		batch.Interrupted = true
	}

	result.Action = outcome
	result.Outcome = OutcomeSuccess
	result.State = StateActionApplied
	return result
}
