// Package judge calls an external LLM to answer whether an event
// payload violates a natural-language criterion.
package judge

import "context"

// Verdict is the judge's answer for one (payload, criterion) pair.
type Verdict struct {
	Violated  bool
	Rationale string
}

// Client is the abstract judge boundary. Implementations are external
// network collaborators: they must respect ctx deadlines and surface
// every failure as an error — a judge error is never downgraded to a
// "no violation" verdict.
type Client interface {
	Judge(ctx context.Context, payload, criterion string) (*Verdict, error)
}
