package engine

import (
	"context"

	"github.com/ledgerline-ai/bulwark/internal/guardrail"
)

// RecordDetail is one per-record observation made while running a
// check: which record, which field, and why it was noted. Flagged
// records appear here alongside observability-only notes (e.g.
// unparsable dates).
type RecordDetail struct {
	Index  int    `json:"index"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

// checkResult is the outcome of one check run over one event.
type checkResult struct {
	Violated bool

	// ViolatingRecords are indices into the event's record collection,
	// ascending, for the action executor to operate on.
	ViolatingRecords []int

	// Details lists per-record observations, flagged or not.
	Details []RecordDetail

	// Summary is a short human-readable description for audit entries.
	Summary string
}

// runCheck dispatches on the closed check vocabulary. Unknown types
// are unreachable for definitions that passed config decoding, but are
// still reported as condition errors rather than ignored.
func (o *Orchestrator) runCheck(ctx context.Context, ev *Event, cfg *guardrail.CheckConfig, memo *judgeMemo) (*checkResult, error) {
	switch cfg.Type {
	case guardrail.CheckMissingValuesAny:
		return checkMissingValuesAny(ev, cfg.SignificantFields)
	case guardrail.CheckMissingValuesColumn:
		return checkMissingValuesColumn(ev, cfg.TargetColumn)
	case guardrail.CheckOldDateRecords:
		return checkOldDateRecords(ev, cfg.TargetColumn, cfg.DateThresholdDays, o.now())
	case guardrail.CheckLLMJudge:
		return o.checkLLMJudge(ctx, ev, cfg.Criterion, memo)
	default:
		return nil, conditionError("unknown check type %q", cfg.Type)
	}
}
