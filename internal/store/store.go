// Package store persists the reconciled entities into Postgres: batched
// upserts with row-level recovery, counter reconciliation, embedding
// backfill and the import-run log.
package store

import (
	"context"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/silviosotelo/medical-ocr-service/internal/db"
)

// Store wraps a Postgres connection pool with the pipeline's persistence
// operations.
type Store struct {
	pool db.Pool
}

// New creates a Store over an existing pool (or a pgxmock pool in tests).
func New(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pgx pool, verifies connectivity and returns a Store.
func Connect(ctx context.Context, dsn string) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, eris.Wrap(err, "store: create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, eris.Wrap(err, "store: ping database")
	}
	return New(pool), pool, nil
}

// BatchResult summarizes one entity's persistence outcome.
type BatchResult struct {
	Upserted   int64 // rows inserted or updated
	FailedRows int   // rows dropped after row-level recovery also failed
}

// upsertBatches writes rows in fixed-size batches, committing each batch so
// partial progress survives a later failure. A failed batch is rolled back
// and retried row-by-row in individual transactions; rows that still fail
// are counted and skipped. Cancellation is honored between batches only.
func (s *Store) upsertBatches(ctx context.Context, cfg db.UpsertConfig, rows [][]any, batchSize int) (BatchResult, error) {
	log := zap.L().With(zap.String("component", "store"), zap.String("table", cfg.Table))

	if batchSize <= 0 {
		batchSize = 1000
	}

	var res BatchResult
	for lo := 0; lo < len(rows); lo += batchSize {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrapf(err, "store: %s: cancelled after %d rows", cfg.Table, res.Upserted)
		}

		hi := lo + batchSize
		if hi > len(rows) {
			hi = len(rows)
		}
		batch := rows[lo:hi]

		n, err := db.BulkUpsert(ctx, s.pool, cfg, batch)
		if err == nil {
			res.Upserted += n
			log.Debug("batch committed", zap.Int("rows", len(batch)), zap.Int64("total", res.Upserted))
			continue
		}

		log.Warn("batch upsert failed, retrying row by row",
			zap.Int("rows", len(batch)), zap.Error(err))

		for _, row := range batch {
			if rowErr := db.UpsertRow(ctx, s.pool, cfg, row); rowErr != nil {
				res.FailedRows++
				log.Warn("row skipped", zap.Error(rowErr))
				continue
			}
			res.Upserted++
		}
	}

	return res, nil
}

// vectorParam renders an embedding as a pgvector literal, or nil so the
// column stays NULL and a previously stored vector survives the merge.
func vectorParam(vec []float32) any {
	if vec == nil {
		return nil
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
