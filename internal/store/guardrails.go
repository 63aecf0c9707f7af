package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ledgerline-ai/bulwark/internal/guardrail"
)

// guardrailRow mirrors one row of the guardrails table with its three
// JSONB config columns still raw.
type guardrailRow struct {
	ID             string
	ProjectID      string
	Name           string
	Description    sql.NullString
	IsActive       bool
	Trigger        []byte
	Check          []byte
	Action         []byte
	ExecutionCount int64
	AppliedCount   int64
}

// LoadActive returns a project's active guardrails in evaluation order
// (position, then creation time). A row with a malformed config column
// fails the whole load — a silently dropped rule would look like a
// passing one.
func (s *Store) LoadActive(ctx context.Context, projectID string) ([]*guardrail.Definition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, name, description, is_active,
		       trigger_condition, check_config, action,
		       execution_count, applied_count
		FROM guardrails
		WHERE project_id = $1 AND is_active
		ORDER BY position, created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("LoadActive: %w", err)
	}
	defer rows.Close()

	var defs []*guardrail.Definition
	for rows.Next() {
		var r guardrailRow
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Name, &r.Description, &r.IsActive,
			&r.Trigger, &r.Check, &r.Action, &r.ExecutionCount, &r.AppliedCount); err != nil {
			return nil, fmt.Errorf("LoadActive: %w", err)
		}

		trigger, check, action, err := guardrail.DecodeParts(r.Trigger, r.Check, r.Action)
		if err != nil {
			return nil, fmt.Errorf("LoadActive: guardrail %s: %w", r.ID, err)
		}

		defs = append(defs, &guardrail.Definition{
			ID:             r.ID,
			ProjectID:      r.ProjectID,
			Name:           r.Name,
			Description:    r.Description.String,
			IsActive:       r.IsActive,
			Trigger:        trigger,
			Check:          check,
			Action:         action,
			ExecutionCount: r.ExecutionCount,
			AppliedCount:   r.AppliedCount,
		})
	}
	return defs, rows.Err()
}

// IncrementCounters bumps a guardrail's lifetime stats after one
// evaluation. The increment happens inside the UPDATE so concurrent
// evaluations of the same rule never lose an update; there is no
// read-modify-write pair anywhere.
func (s *Store) IncrementCounters(ctx context.Context, guardrailID string, applied bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE guardrails SET
			execution_count = execution_count + 1,
			applied_count   = applied_count + CASE WHEN $2 THEN 1 ELSE 0 END,
			updated_at      = now()
		WHERE id = $1`, guardrailID, applied)
	if err != nil {
		return fmt.Errorf("IncrementCounters: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("IncrementCounters: guardrail %s not found", guardrailID)
	}
	return nil
}
