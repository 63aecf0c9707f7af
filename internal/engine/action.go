package engine

import (
	"github.com/ledgerline-ai/bulwark/internal/fieldpath"
	"github.com/ledgerline-ai/bulwark/internal/guardrail"
)

// ActionOutcome reports what the action executor did for one violated
// guardrail.
type ActionOutcome struct {
	Type guardrail.ActionType

	// RecordsRemoved counts records filtered out (filter_records only).
	RecordsRemoved int

	// Interrupt signals the caller to halt downstream agent execution.
	// The engine performs no process control itself.
	Interrupt bool

	// NoOp is set when a filter action had nothing to remove.
	NoOp bool
}

// applyAction executes the configured action against the event and the
// violating-record indices the check produced. The input event is
// never mutated; filter_records returns a fresh, filtered event, every
// other path returns the input unchanged.
func applyAction(ev *Event, action *guardrail.ActionConfig, violating []int) (*Event, *ActionOutcome, error) {
	switch action.Type {
	case guardrail.ActionInterruptAgent:
		return ev, &ActionOutcome{Type: action.Type, Interrupt: true}, nil

	case guardrail.ActionFilterRecords:
		if len(violating) == 0 {
			// Defensive: a violation without identified records (e.g.
			// an event-level judge verdict) filters nothing.
			return ev, &ActionOutcome{Type: action.Type, NoOp: true}, nil
		}
		filtered, removed, err := filterRecords(ev, violating)
		if err != nil {
			return ev, nil, err
		}
		return filtered, &ActionOutcome{Type: action.Type, RecordsRemoved: removed}, nil

	default:
		return ev, nil, actionError("unknown action type %q", action.Type)
	}
}

// filterRecords deep-copies the event and removes the violating
// indices from its record collection. Everything else in the payload
// is preserved as-is.
func filterRecords(ev *Event, violating []int) (*Event, int, error) {
	records, ok := ev.Records()
	if !ok {
		return nil, 0, actionError("event has no records collection at %q", ev.recordsPath())
	}

	drop := make(map[int]bool, len(violating))
	for _, idx := range violating {
		if idx < 0 || idx >= len(records) {
			return nil, 0, actionError("violating record index %d out of range (len %d)", idx, len(records))
		}
		drop[idx] = true
	}

	out := ev.clone()
	kept := make([]any, 0, len(records)-len(drop))
	outRecords, _ := out.Records()
	for i, rec := range outRecords {
		if !drop[i] {
			kept = append(kept, rec)
		}
	}

	if err := replaceRecords(out, kept); err != nil {
		return nil, 0, err
	}
	return out, len(records) - len(kept), nil
}

// replaceRecords swaps the record collection inside the (already
// cloned) event for the given slice.
func replaceRecords(ev *Event, records []any) error {
	path := ev.recordsPath()
	segs, err := fieldpath.Parse(path)
	if err != nil {
		return actionError("invalid records path %q: %v", path, err)
	}

	parentSegs, last := segs[:len(segs)-1], segs[len(segs)-1]
	parent := ev.Payload
	if len(parentSegs) > 0 {
		parent, err = fieldpath.ResolveSegments(ev.Payload, path, parentSegs)
		if err != nil {
			return actionError("resolving records path %q: %v", path, err)
		}
	}

	if last.IsIndex {
		arr, ok := parent.([]any)
		if !ok || last.Index >= len(arr) {
			return actionError("records path %q does not address an array slot", path)
		}
		arr[last.Index] = records
		return nil
	}

	obj, ok := parent.(map[string]any)
	if !ok {
		return actionError("records path %q parent is not an object", path)
	}
	obj[last.Key] = records
	return nil
}
