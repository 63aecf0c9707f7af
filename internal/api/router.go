package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ledgerline-ai/bulwark/internal/audit"
	"github.com/ledgerline-ai/bulwark/internal/engine"
	"github.com/ledgerline-ai/bulwark/internal/guardrail"
	"github.com/ledgerline-ai/bulwark/internal/store"
	"go.uber.org/zap"
)

// Store is the slice of the persistence layer the evaluation edge
// uses. *store.Store satisfies it; tests substitute fakes.
type Store interface {
	LoadActive(ctx context.Context, projectID string) ([]*guardrail.Definition, error)
	IncrementCounters(ctx context.Context, guardrailID string, applied bool) error
	LookupProjectByPrefix(ctx context.Context, prefix string) (*store.Project, error)
}

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Store    Store
	Defs     *store.DefinitionCache
	Engine   *engine.Orchestrator
	Writer   audit.Writer
	Logger   *zap.Logger
	CacheTTL time.Duration
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Evaluation endpoint (auth required via Bearer bwk_ token)
	mux.HandleFunc("POST /v1/guardrails/evaluate", deps.authMiddleware(deps.handleEvaluate))

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return corsMiddleware(requestLogging(mux, deps.Logger))
}
