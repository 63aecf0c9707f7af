package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ledgerline-ai/bulwark/internal/audit"
	"github.com/ledgerline-ai/bulwark/internal/engine"
	"github.com/ledgerline-ai/bulwark/internal/guardrail"
	"github.com/ledgerline-ai/bulwark/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type fakeStore struct {
	mu         sync.Mutex
	defs       []*guardrail.Definition
	project    *store.Project
	increments map[string]bool // guardrailID -> applied flag of last increment
	loadCalls  int
}

func (f *fakeStore) LoadActive(ctx context.Context, projectID string) ([]*guardrail.Definition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadCalls++
	return f.defs, nil
}

func (f *fakeStore) IncrementCounters(ctx context.Context, guardrailID string, applied bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.increments == nil {
		f.increments = make(map[string]bool)
	}
	f.increments[guardrailID] = applied
	return nil
}

func (f *fakeStore) LookupProjectByPrefix(ctx context.Context, prefix string) (*store.Project, error) {
	if f.project == nil || f.project.APIKeyPrefix != prefix {
		return nil, nil
	}
	return f.project, nil
}

type captureWriter struct {
	mu      sync.Mutex
	entries []*audit.Entry
}

func (c *captureWriter) Write(entry *audit.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureWriter) Close() {}

func testDeps(fs *fakeStore, cw *captureWriter) *Dependencies {
	return &Dependencies{
		Store:    fs,
		Defs:     store.NewDefinitionCache(time.Minute),
		Engine:   engine.NewOrchestrator(nil, zap.NewNop()),
		Writer:   cw,
		Logger:   zap.NewNop(),
		CacheTTL: time.Minute,
	}
}

func evaluateVia(t *testing.T, deps *Dependencies, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/guardrails/evaluate", strings.NewReader(body))
	req = req.WithContext(context.WithValue(req.Context(), projectCtxKey, &authProject{ID: "proj-1", Name: "test"}))
	rr := httptest.NewRecorder()
	deps.handleEvaluate(rr, req)
	return rr
}

func TestHandleEvaluate_ViolationFilteredAndAudited(t *testing.T) {
	fs := &fakeStore{defs: []*guardrail.Definition{
		{
			ID: "g1", ProjectID: "proj-1", Name: "require user_id", IsActive: true,
			Trigger: &guardrail.TriggerCondition{Type: guardrail.TriggerSpecificTool, ToolName: "db_query"},
			Check:   &guardrail.CheckConfig{Type: guardrail.CheckMissingValuesColumn, TargetColumn: "user_id"},
			Action:  &guardrail.ActionConfig{Type: guardrail.ActionFilterRecords},
		},
		{
			ID: "g2", ProjectID: "proj-1", Name: "never email tools", IsActive: true,
			Trigger: &guardrail.TriggerCondition{Type: guardrail.TriggerToolRegex, Pattern: "^email_"},
			Check:   &guardrail.CheckConfig{Type: guardrail.CheckMissingValuesAny},
			Action:  &guardrail.ActionConfig{Type: guardrail.ActionInterruptAgent},
		},
	}}
	cw := &captureWriter{}
	deps := testDeps(fs, cw)

	rr := evaluateVia(t, deps, `{
		"tool_name": "db_query",
		"payload": {"records": [{"user_id": 1}, {"name": "no id"}]}
	}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp EvaluateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	if resp.Interrupted {
		t.Error("unexpected interrupt")
	}
	if len(resp.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(resp.Results))
	}
	if r := resp.Results[0]; r.Outcome != "success" || !r.Violated || r.Action == nil || r.Action.RecordsRemoved != 1 {
		t.Errorf("g1 result unexpected: %+v", r)
	}
	if r := resp.Results[1]; r.Outcome != "skip" || r.Triggered {
		t.Errorf("g2 result unexpected: %+v", r)
	}

	// The returned payload is the filtered one.
	records := resp.Payload["records"].([]any)
	if len(records) != 1 {
		t.Errorf("payload records = %d, want 1", len(records))
	}

	// Counter deltas: g1 executed+applied, g2 skipped entirely.
	if applied, ok := fs.increments["g1"]; !ok || !applied {
		t.Errorf("g1 increments = %v, want applied=true", fs.increments)
	}
	if _, ok := fs.increments["g2"]; ok {
		t.Error("skipped guardrail must not be incremented")
	}

	// One audit entry per evaluated guardrail, skips included.
	if len(cw.entries) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(cw.entries))
	}
	if e := cw.entries[0]; e.AuditType != audit.TypeGuardrailExecution || e.Result != "success" || e.GuardrailID != "g1" {
		t.Errorf("first audit entry unexpected: %+v", e)
	}
	if e := cw.entries[1]; e.Result != "skip" {
		t.Errorf("second audit entry result = %q, want skip", e.Result)
	}
}

func TestHandleEvaluate_ErrorOutcomeAudited(t *testing.T) {
	fs := &fakeStore{defs: []*guardrail.Definition{
		{
			ID: "bad", ProjectID: "proj-1", IsActive: true,
			Trigger: &guardrail.TriggerCondition{Type: guardrail.TriggerToolRegex, Pattern: "(unclosed"},
			Check:   &guardrail.CheckConfig{Type: guardrail.CheckMissingValuesAny},
			Action:  &guardrail.ActionConfig{Type: guardrail.ActionFilterRecords},
		},
	}}
	cw := &captureWriter{}
	deps := testDeps(fs, cw)

	rr := evaluateVia(t, deps, `{"tool_name":"db_query","payload":{"records":[]}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var resp EvaluateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if r := resp.Results[0]; r.Outcome != "error" || r.ErrorKind == nil {
		t.Errorf("result = %+v, want error outcome with kind", r)
	}

	// Errored evaluations still count an execution, never an apply.
	if applied, ok := fs.increments["bad"]; !ok || applied {
		t.Errorf("increments = %v, want executed without applied", fs.increments)
	}
	if e := cw.entries[0]; e.Result != "error" || e.ErrorKind == "" {
		t.Errorf("audit entry = %+v, want error result with kind", e)
	}
}

func TestHandleEvaluate_BadRequests(t *testing.T) {
	deps := testDeps(&fakeStore{}, &captureWriter{})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{{`},
		{"missing payload", `{"tool_name":"db_query"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := evaluateVia(t, deps, tt.body); rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestHandleEvaluate_DefinitionCacheServesSecondRequest(t *testing.T) {
	fs := &fakeStore{}
	deps := testDeps(fs, &captureWriter{})

	for i := 0; i < 2; i++ {
		if rr := evaluateVia(t, deps, `{"payload":{"records":[]}}`); rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
	}
	if fs.loadCalls != 1 {
		t.Errorf("LoadActive calls = %d, want 1 (second request served from cache)", fs.loadCalls)
	}
}

func TestAuthMiddleware(t *testing.T) {
	key := "bwk_0123456789abcdef"
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashing key: %v", err)
	}

	fs := &fakeStore{project: &store.Project{
		ID:           "proj-1",
		Name:         "test",
		APIKeyHash:   string(hash),
		APIKeyPrefix: key[:8],
	}}
	deps := testDeps(fs, &captureWriter{})
	handler := NewRouter(deps)

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"valid key", "Bearer " + key, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"wrong prefix", "Bearer tsk_0123456789abcdef", http.StatusUnauthorized},
		{"wrong key same prefix", "Bearer bwk_0123xxxxxxxxxxxx", http.StatusUnauthorized},
		{"too short", "Bearer bwk_", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/guardrails/evaluate",
				strings.NewReader(`{"payload":{"records":[]}}`))
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rr.Code, tt.wantStatus, rr.Body.String())
			}
		})
	}
}

func TestHealthz(t *testing.T) {
	deps := testDeps(&fakeStore{}, &captureWriter{})
	handler := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}
