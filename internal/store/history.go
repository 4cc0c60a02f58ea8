package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/flotilla/internal/rollout"
	"github.com/roach88/flotilla/internal/state"
)

// DeploymentRecord is one row of deployment history.
type DeploymentRecord struct {
	Token      string
	Stack      string
	Service    string
	Revision   int
	ImageRef   string
	Outcome    string
	Generation state.Generation
	CreatedAt  time.Time
}

// RecordDeployment appends one deployment attempt to the history.
// Duplicate tokens are silently ignored, so a retried persistence of the
// same deployment is idempotent.
func (s *Store) RecordDeployment(ctx context.Context, rec DeploymentRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deployments
		(token, stack, service, revision, image_ref, outcome, generation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`,
		rec.Token,
		rec.Stack,
		rec.Service,
		rec.Revision,
		rec.ImageRef,
		rec.Outcome,
		int64(rec.Generation),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record deployment: %w", err)
	}
	return nil
}

// ListDeployments returns the deployment history for a service, newest
// first. A zero limit returns everything.
func (s *Store) ListDeployments(ctx context.Context, service string, limit int) ([]DeploymentRecord, error) {
	query := `
		SELECT token, stack, service, revision, image_ref, outcome, generation, created_at
		FROM deployments WHERE service = ?
		ORDER BY created_at DESC, token DESC
	`
	args := []any{service}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	var out []DeploymentRecord
	for rows.Next() {
		var rec DeploymentRecord
		var gen int64
		var created string
		if err := rows.Scan(&rec.Token, &rec.Stack, &rec.Service, &rec.Revision,
			&rec.ImageRef, &rec.Outcome, &gen, &created); err != nil {
			return nil, fmt.Errorf("list deployments: %w", err)
		}
		rec.Generation = state.Generation(gen)
		rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("list deployments: parse created_at %q: %w", created, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	return out, nil
}

// SaveServiceState upserts the current deployment of a service.
func (s *Store) SaveServiceState(ctx context.Context, dep rollout.Deployment) error {
	data, err := json.Marshal(dep)
	if err != nil {
		return fmt.Errorf("save service state: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO service_state (service, state) VALUES (?, ?)
		ON CONFLICT(service) DO UPDATE SET state = excluded.state
	`, dep.Service.Name, string(data))
	if err != nil {
		return fmt.Errorf("save service state: %w", err)
	}
	return nil
}

// LoadServiceState returns the current deployment of a service, if one
// has been saved.
func (s *Store) LoadServiceState(ctx context.Context, service string) (rollout.Deployment, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT state FROM service_state WHERE service = ?`, service).Scan(&data)
	if err == sql.ErrNoRows {
		return rollout.Deployment{}, false, nil
	}
	if err != nil {
		return rollout.Deployment{}, false, fmt.Errorf("load service state: %w", err)
	}
	var dep rollout.Deployment
	if err := json.Unmarshal([]byte(data), &dep); err != nil {
		return rollout.Deployment{}, false, fmt.Errorf("load service state: %w", err)
	}
	return dep, true, nil
}
