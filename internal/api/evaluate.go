package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerline-ai/bulwark/internal/audit"
	"github.com/ledgerline-ai/bulwark/internal/engine"
	"github.com/ledgerline-ai/bulwark/internal/guardrail"
	"go.uber.org/zap"
)

// handleEvaluate implements POST /v1/guardrails/evaluate.
// Auth middleware has already validated the Bearer token and injected
// the project. The handler owns the engine's boundary duties: load the
// project's active guardrails, run the batch, persist counter deltas,
// and emit one audit entry per evaluated guardrail.
func (d *Dependencies) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req EvaluateRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Payload == nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "payload is required"})
		return
	}

	proj := projectFromContext(r.Context())
	if proj == nil {
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "missing project context"})
		return
	}

	defs, err := d.loadDefinitions(r.Context(), proj.ID)
	if err != nil {
		d.Logger.Error("loading guardrails failed",
			zap.String("project_id", proj.ID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "failed to load guardrails"})
		return
	}

	ev := &engine.Event{
		ToolName:    req.ToolName,
		Payload:     any(req.Payload),
		RecordsPath: req.RecordsPath,
	}

	batch := d.Engine.Evaluate(r.Context(), ev, defs)

	requestID := uuid.New().String()
	if req.TraceID != "" {
		requestID = req.TraceID + "/" + requestID
	}

	// Persist counter deltas. A failed increment degrades stats, not
	// the evaluation — log and keep going.
	for _, res := range batch.Results {
		if !res.CountsExecution() {
			continue
		}
		if err := d.Store.IncrementCounters(r.Context(), res.GuardrailID, res.CountsApplied()); err != nil {
			d.Logger.Error("counter increment failed",
				zap.String("guardrail_id", res.GuardrailID),
				zap.Error(err),
			)
		}
	}

	// One audit entry per evaluated guardrail, skips included.
	for _, res := range batch.Results {
		d.Writer.Write(auditEntry(proj.ID, requestID, batch, res))
	}

	writeJSON(w, http.StatusOK, buildEvaluateResponse(requestID, batch, start))
}

// loadDefinitions serves guardrail definitions through the
// stale-while-revalidate cache, falling back to a synchronous load on
// a cold miss.
func (d *Dependencies) loadDefinitions(ctx context.Context, projectID string) ([]*guardrail.Definition, error) {
	defs, hit, needsRefresh := d.Defs.Get(projectID)
	if hit && needsRefresh {
		go d.refreshDefinitions(projectID)
	}
	if hit {
		return defs, nil
	}

	defs, err := d.Store.LoadActive(ctx, projectID)
	if err != nil {
		return nil, err
	}
	d.Defs.Set(projectID, defs)
	return defs, nil
}

// refreshDefinitions reloads a project's definitions in the background.
func (d *Dependencies) refreshDefinitions(projectID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	defs, err := d.Store.LoadActive(ctx, projectID)
	if err != nil {
		d.Logger.Warn("background guardrail refresh failed",
			zap.String("project_id", projectID),
			zap.Error(err),
		)
		return
	}
	d.Defs.Set(projectID, defs)
}

// auditEntry converts one evaluation result into its audit record.
func auditEntry(projectID, requestID string, batch *engine.BatchResult, res *engine.EvaluationResult) *audit.Entry {
	entry := &audit.Entry{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		AuditType:   audit.TypeGuardrailExecution,
		Timestamp:   time.Now().UTC(),
		RequestID:   requestID,
		GuardrailID: res.GuardrailID,
		Result:      res.Outcome.String(),
		Triggered:   res.Triggered,
		Violated:    res.Violated,
		Interrupted: batch.Interrupted,
		Details:     res.Summary,
		LatencyMs:   float32(res.Elapsed) / float32(time.Millisecond),
	}
	if res.Action != nil {
		entry.ActionType = string(res.Action.Type)
		entry.RecordsRemoved = uint32(res.Action.RecordsRemoved)
	}
	if res.Err != nil {
		entry.ErrorKind = res.Err.Kind.String()
		entry.Details = res.Err.Error()
	}
	return entry
}

func buildEvaluateResponse(requestID string, batch *engine.BatchResult, start time.Time) *EvaluateResponse {
	results := make([]GuardrailResultResp, 0, len(batch.Results))
	for _, res := range batch.Results {
		rr := GuardrailResultResp{
			GuardrailID: res.GuardrailID,
			Outcome:     res.Outcome.String(),
			State:       res.State.String(),
			Triggered:   res.Triggered,
			Violated:    res.Violated,
			Summary:     res.Summary,
		}
		if res.Action != nil {
			rr.Action = &ActionResp{
				Type:           string(res.Action.Type),
				RecordsRemoved: res.Action.RecordsRemoved,
				Interrupt:      res.Action.Interrupt,
				NoOp:           res.Action.NoOp,
			}
		}
		if res.Err != nil {
			msg := res.Err.Error()
			kind := res.Err.Kind.String()
			rr.Error = &msg
			rr.ErrorKind = &kind
		}
		for _, det := range res.RecordDetails {
			rr.Details = append(rr.Details, RecordDetailResp(det))
		}
		results = append(results, rr)
	}

	payload, _ := batch.Event.Payload.(map[string]any)
	return &EvaluateResponse{
		RequestID:   requestID,
		Interrupted: batch.Interrupted,
		Payload:     payload,
		Results:     results,
		LatencyMs:   float64(time.Since(start)) / float64(time.Millisecond),
	}
}
