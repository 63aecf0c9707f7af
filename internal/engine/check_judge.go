package engine

import (
	"context"
	"encoding/json"

	"github.com/ledgerline-ai/bulwark/internal/judge"
)

// judgeMemo caches judge verdicts within a single evaluation batch,
// keyed by (criterion, serialized payload). Filtering actions change
// the payload between guardrails, so the payload is part of the key.
type judgeMemo struct {
	verdicts map[string]*judge.Verdict
}

func newJudgeMemo() *judgeMemo {
	return &judgeMemo{verdicts: make(map[string]*judge.Verdict)}
}

// checkLLMJudge delegates the semantic judgment to the external judge.
// A judge failure is a first-class evaluation error for this guardrail
// only — it is never treated as "no violation".
func (o *Orchestrator) checkLLMJudge(ctx context.Context, ev *Event, criterion string, memo *judgeMemo) (*checkResult, error) {
	if o.judge == nil {
		return nil, judgeError(errJudgeNotConfigured)
	}

	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, conditionError("serializing payload for judge: %v", err)
	}

	key := criterion + "\x00" + string(payload)
	verdict, hit := memo.verdicts[key]
	if !hit {
		verdict, err = o.judge.Judge(ctx, string(payload), criterion)
		if err != nil {
			return nil, judgeError(err)
		}
		memo.verdicts[key] = verdict
	}

	res := &checkResult{
		Violated: verdict.Violated,
		Summary:  verdict.Rationale,
	}
	if res.Summary == "" {
		if verdict.Violated {
			res.Summary = "judge found a violation"
		} else {
			res.Summary = "judge found no violation"
		}
	}
	// The judge rules on the event as a whole; it does not identify
	// individual records, so a filter action over its verdict is a
	// reported no-op.
	return res, nil
}
