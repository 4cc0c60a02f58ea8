package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/flotilla/internal/model"
	"github.com/roach88/flotilla/internal/state"
)

// SaveSnapshot persists a live snapshot and the apply order it was
// reconciled in, atomically replacing any prior rows for the same
// generation. Attribute mappings are stored as canonical JSON.
func (s *Store) SaveSnapshot(ctx context.Context, live state.Live, order []model.Key, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	defer tx.Rollback()

	gen := int64(live.Generation)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (generation, created_at) VALUES (?, ?)
		ON CONFLICT(generation) DO UPDATE SET created_at = excluded.created_at
	`, gen, at.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM live_resources WHERE generation = ?`, gen); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM apply_order WHERE generation = ?`, gen); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	for _, k := range live.Keys() {
		attrs, _ := live.Get(k)
		data, err := model.MarshalCanonicalAttrs(attrs)
		if err != nil {
			return fmt.Errorf("save snapshot: marshal %s: %w", k, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO live_resources (generation, resource_type, resource_name, attrs)
			VALUES (?, ?, ?, ?)
		`, gen, k.Type, k.Name, string(data)); err != nil {
			return fmt.Errorf("save snapshot: %s: %w", k, err)
		}
	}

	for i, k := range order {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO apply_order (generation, position, resource_type, resource_name)
			VALUES (?, ?, ?, ?)
		`, gen, i, k.Type, k.Name); err != nil {
			return fmt.Errorf("save snapshot: apply order %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LoadLatestSnapshot returns the live snapshot and recorded apply order
// of the highest persisted generation. A fresh database yields an empty
// snapshot at generation zero and a nil order.
func (s *Store) LoadLatestSnapshot(ctx context.Context) (state.Live, []model.Key, error) {
	// MAX over an empty table yields a single NULL row.
	var gen sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(generation) FROM snapshots`).Scan(&gen); err != nil {
		return state.Live{}, nil, fmt.Errorf("load snapshot: %w", err)
	}
	if !gen.Valid {
		return state.NewLive(), nil, nil
	}
	return s.LoadSnapshot(ctx, state.Generation(gen.Int64))
}

// LoadSnapshot returns the live snapshot and apply order for one
// generation.
func (s *Store) LoadSnapshot(ctx context.Context, gen state.Generation) (state.Live, []model.Key, error) {
	live := state.NewLive()
	live.Generation = gen

	rows, err := s.db.QueryContext(ctx, `
		SELECT resource_type, resource_name, attrs
		FROM live_resources WHERE generation = ?
	`, int64(gen))
	if err != nil {
		return state.Live{}, nil, fmt.Errorf("load snapshot: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var typ, name, data string
		if err := rows.Scan(&typ, &name, &data); err != nil {
			return state.Live{}, nil, fmt.Errorf("load snapshot: %w", err)
		}
		attrs, err := model.DecodeAttrs([]byte(data))
		if err != nil {
			return state.Live{}, nil, fmt.Errorf("load snapshot: decode %s.%s: %w", typ, name, err)
		}
		live.Put(model.Key{Type: typ, Name: name}, attrs)
	}
	if err := rows.Err(); err != nil {
		return state.Live{}, nil, fmt.Errorf("load snapshot: %w", err)
	}

	order, err := s.loadApplyOrder(ctx, gen)
	if err != nil {
		return state.Live{}, nil, err
	}
	return live, order, nil
}

func (s *Store) loadApplyOrder(ctx context.Context, gen state.Generation) ([]model.Key, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT resource_type, resource_name
		FROM apply_order WHERE generation = ? ORDER BY position
	`, int64(gen))
	if err != nil {
		return nil, fmt.Errorf("load apply order: %w", err)
	}
	defer rows.Close()

	var order []model.Key
	for rows.Next() {
		var typ, name string
		if err := rows.Scan(&typ, &name); err != nil {
			return nil, fmt.Errorf("load apply order: %w", err)
		}
		order = append(order, model.Key{Type: typ, Name: name})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load apply order: %w", err)
	}
	return order, nil
}
