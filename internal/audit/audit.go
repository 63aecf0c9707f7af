// Package audit persists one immutable record per guardrail evaluated
// per event, for compliance and debugging.
package audit

import (
	"time"

	"go.uber.org/zap"
)

// TypeGuardrailExecution is the audit type for engine evaluations.
const TypeGuardrailExecution = "guardrail_execution"

// Entry is one guardrail's evaluation outcome for one event.
// Write-once; the engine never reads audit entries back.
type Entry struct {
	ID        string
	ProjectID string
	AuditType string // TypeGuardrailExecution
	Timestamp time.Time

	RequestID   string
	GuardrailID string

	// Result is "success", "error", or "skip".
	Result string

	Triggered   bool
	Violated    bool
	Interrupted bool

	ActionType     string
	RecordsRemoved uint32

	// ErrorKind names the evaluation-error variant for error results.
	ErrorKind string

	// Details is a short human-readable execution summary.
	Details string

	LatencyMs float32
}

// Writer is the audit sink boundary. Write must NEVER block the
// caller — evaluation latency cannot depend on audit persistence.
type Writer interface {
	Write(entry *Entry)
	Close()
}

// LogWriter is a fallback Writer for local development. It logs
// entries as structured JSON to stdout via zap.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs entries to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(entry *Entry) {
	w.logger.Info("audit_entry",
		zap.String("id", entry.ID),
		zap.String("project_id", entry.ProjectID),
		zap.String("audit_type", entry.AuditType),
		zap.String("request_id", entry.RequestID),
		zap.String("guardrail_id", entry.GuardrailID),
		zap.String("result", entry.Result),
		zap.Bool("triggered", entry.Triggered),
		zap.Bool("violated", entry.Violated),
		zap.Bool("interrupted", entry.Interrupted),
		zap.String("action_type", entry.ActionType),
		zap.Uint32("records_removed", entry.RecordsRemoved),
		zap.String("error_kind", entry.ErrorKind),
		zap.String("details", entry.Details),
		zap.Float32("latency_ms", entry.LatencyMs),
	)
}

func (w *LogWriter) Close() {}
