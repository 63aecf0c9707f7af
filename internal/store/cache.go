package store

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ledgerline-ai/bulwark/internal/guardrail"
)

// DefinitionCache is a TTL-based in-memory cache for per-project
// guardrail definition lists. sync.Map keeps reads lock-free on the
// hot path.
//
// Stale-while-revalidate: an expired entry is still served immediately
// while one goroutine refreshes it in the background, so no evaluation
// request blocks on a definitions query after the first cold start.
// Cached definitions also keep their compiled trigger regexes warm
// across requests.
type DefinitionCache struct {
	store sync.Map // map[string]*defCacheEntry keyed by project ID
	ttl   time.Duration
}

type defCacheEntry struct {
	defs       []*guardrail.Definition
	expiresAt  time.Time
	refreshing atomic.Bool
}

// NewDefinitionCache creates a cache with the given TTL.
func NewDefinitionCache(ttl time.Duration) *DefinitionCache {
	return &DefinitionCache{ttl: ttl}
}

// Get looks up a project's definitions.
//
// Returns:
//   - Fresh hit:  (defs, hit=true,  needsRefresh=false)
//   - Stale hit:  (defs, hit=true,  needsRefresh=true)
//   - Miss:       (nil,  hit=false, needsRefresh=false)
//
// When needsRefresh is true the caller should reload in a background
// goroutine; the refreshing flag guarantees only one goroutine does so
// per project.
func (c *DefinitionCache) Get(projectID string) (defs []*guardrail.Definition, hit, needsRefresh bool) {
	v, ok := c.store.Load(projectID)
	if !ok {
		return nil, false, false
	}

	entry := v.(*defCacheEntry)
	if time.Now().Before(entry.expiresAt) {
		return entry.defs, true, false
	}

	needsRefresh = entry.refreshing.CompareAndSwap(false, true)
	return entry.defs, true, needsRefresh
}

// Set stores a project's definition list with the configured TTL.
func (c *DefinitionCache) Set(projectID string, defs []*guardrail.Definition) {
	c.store.Store(projectID, &defCacheEntry{
		defs:      defs,
		expiresAt: time.Now().Add(c.ttl),
	})
}

// Invalidate removes a project's cached definitions.
func (c *DefinitionCache) Invalidate(projectID string) {
	c.store.Delete(projectID)
}
