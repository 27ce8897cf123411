package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// LoadEntry represents a row in import_runs: one entity load within a run.
type LoadEntry struct {
	ID           uuid.UUID
	Entity       string
	Status       string
	StartedAt    time.Time
	FinishedAt   *time.Time
	RowsUpserted int64
	RowsSkipped  int
	Error        string
}

// StartLoad records the beginning of an entity load and returns its id.
func (s *Store) StartLoad(ctx context.Context, entity string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO import_runs (id, entity, status, started_at)
		 VALUES ($1, $2, 'running', now())`,
		id, entity,
	)
	if err != nil {
		return uuid.Nil, eris.Wrapf(err, "store: start load for %s", entity)
	}
	return id, nil
}

// CompleteLoad marks an entity load as finished with its row counts.
func (s *Store) CompleteLoad(ctx context.Context, id uuid.UUID, upserted int64, skipped int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE import_runs
		 SET status = 'complete', finished_at = now(), rows_upserted = $1, rows_skipped = $2
		 WHERE id = $3`,
		upserted, skipped, id,
	)
	if err != nil {
		return eris.Wrapf(err, "store: complete load %s", id)
	}
	return nil
}

// FailLoad marks an entity load as failed with an error message.
func (s *Store) FailLoad(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE import_runs
		 SET status = 'failed', finished_at = now(), error = $1
		 WHERE id = $2`,
		errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "store: fail load %s", id)
	}
	return nil
}

// RecentLoads returns the most recent entity loads, newest first.
func (s *Store) RecentLoads(ctx context.Context, limit int) ([]LoadEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, entity, status, started_at, finished_at,
		        COALESCE(rows_upserted, 0), COALESCE(rows_skipped, 0), COALESCE(error, '')
		 FROM import_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: list recent loads")
	}
	defer rows.Close()

	var out []LoadEntry
	for rows.Next() {
		var e LoadEntry
		if err := rows.Scan(&e.ID, &e.Entity, &e.Status, &e.StartedAt, &e.FinishedAt,
			&e.RowsUpserted, &e.RowsSkipped, &e.Error); err != nil {
			return nil, eris.Wrap(err, "store: scan load entry")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate load entries")
	}
	return out, nil
}
