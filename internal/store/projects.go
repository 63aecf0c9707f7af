package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Project is the slice of the projects table the evaluation edge
// needs: identity plus the API-key hash for bearer verification.
// Project management itself lives in the control-plane service.
type Project struct {
	ID           string
	Name         string
	APIKeyHash   string
	APIKeyPrefix string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LookupProjectByPrefix finds a project by API key prefix (first 8
// chars). Auth narrows candidates by prefix before the bcrypt verify.
// Returns nil when no project matches.
func (s *Store) LookupProjectByPrefix(ctx context.Context, prefix string) (*Project, error) {
	var p Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, api_key_hash, api_key_prefix, created_at, updated_at
		FROM projects WHERE api_key_prefix = $1`, prefix,
	).Scan(&p.ID, &p.Name, &p.APIKeyHash, &p.APIKeyPrefix, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LookupProjectByPrefix: %w", err)
	}
	return &p, nil
}
