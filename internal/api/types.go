package api

// --- POST /v1/guardrails/evaluate request/response ---

// EvaluateRequest is the JSON body for POST /v1/guardrails/evaluate.
type EvaluateRequest struct {
	// ToolName identifies the invoked tool; empty for trace payloads.
	ToolName string `json:"tool_name,omitempty"`

	// Payload is the recorded tool call or trace under test.
	Payload map[string]any `json:"payload"`

	// RecordsPath overrides where the record collection lives inside
	// Payload (default "records").
	RecordsPath string `json:"records_path,omitempty"`

	// TraceID is an optional client-side correlation ID echoed into
	// audit entries' request context.
	TraceID string `json:"trace_id,omitempty"`
}

// ActionResp describes the action taken for one violated guardrail.
type ActionResp struct {
	Type           string `json:"type"`
	RecordsRemoved int    `json:"records_removed"`
	Interrupt      bool   `json:"interrupt"`
	NoOp           bool   `json:"no_op"`
}

// RecordDetailResp is one per-record observation from a check.
type RecordDetailResp struct {
	Index  int    `json:"index"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

// GuardrailResultResp is one guardrail's evaluation outcome.
type GuardrailResultResp struct {
	GuardrailID string             `json:"guardrail_id"`
	Outcome     string             `json:"outcome"` // skip | success | error
	State       string             `json:"state"`
	Triggered   bool               `json:"triggered"`
	Violated    bool               `json:"violated"`
	Action      *ActionResp        `json:"action,omitempty"`
	Error       *string            `json:"error,omitempty"`
	ErrorKind   *string            `json:"error_kind,omitempty"`
	Details     []RecordDetailResp `json:"details,omitempty"`
	Summary     string             `json:"summary,omitempty"`
}

// EvaluateResponse is the JSON reply for POST /v1/guardrails/evaluate.
type EvaluateResponse struct {
	RequestID   string                `json:"request_id"`
	Interrupted bool                  `json:"interrupted"`
	Payload     map[string]any        `json:"payload"`
	Results     []GuardrailResultResp `json:"results"`
	LatencyMs   float64               `json:"latency_ms"`
}

// ErrorResp is the generic error body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
