package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig defines the parameters for an upsert operation. The merge
// policy on conflict is data-driven so the same writer serves every table:
// regular columns are overwritten by the incoming value, CoalesceCols keep
// the stored value unless the incoming one is non-null, and TouchCol is
// always refreshed to now().
type UpsertConfig struct {
	Table        string   // target table (e.g., "prestadores")
	Columns      []string // all columns being inserted
	ConflictKeys []string // columns forming the unique constraint
	CoalesceCols []string // columns merged with COALESCE(EXCLUDED.col, stored)
	InsertOnly   []string // columns written on insert but left alone on conflict
	TouchCol     string   // timestamp column refreshed on conflict
}

// BulkUpsert performs a bulk upsert via a temp table and INSERT ... ON CONFLICT.
//  1. Creates a temp table with the same columns
//  2. COPYs rows into the temp table
//  3. Deletes older in-batch duplicates so ON CONFLICT cannot hit a row twice
//  4. INSERT INTO target SELECT ... FROM temp ON CONFLICT (keys) DO UPDATE SET ...
//
// The whole operation runs in one transaction; on error nothing is persisted.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := cfg.validate(); err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx)

	tempTable := fmt.Sprintf("_tmp_upsert_%s", strings.ReplaceAll(cfg.Table, ".", "_"))

	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{tempTable}.Sanitize(),
		sanitizeTable(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: create temp table for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: COPY into temp table for %s", cfg.Table)
	}

	// Keep only the last physical row per key within the batch.
	var dupConds []string
	for _, k := range cfg.ConflictKeys {
		kq := pgx.Identifier{k}.Sanitize()
		dupConds = append(dupConds, fmt.Sprintf("a.%s = b.%s", kq, kq))
	}
	dedupSQL := fmt.Sprintf(
		"DELETE FROM %s a USING %s b WHERE a.ctid < b.ctid AND %s",
		pgx.Identifier{tempTable}.Sanitize(),
		pgx.Identifier{tempTable}.Sanitize(),
		strings.Join(dupConds, " AND "),
	)
	if _, err := tx.Exec(ctx, dedupSQL); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: dedup temp table for %s", cfg.Table)
	}

	colList := quoteAndJoin(cfg.Columns)
	upsertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s",
		sanitizeTable(cfg.Table),
		colList,
		colList,
		pgx.Identifier{tempTable}.Sanitize(),
		quoteAndJoin(cfg.ConflictKeys),
		cfg.conflictSet(),
	)

	tag, err := tx.Exec(ctx, upsertSQL)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: INSERT ON CONFLICT for %s", cfg.Table)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}

	return tag.RowsAffected(), nil
}

// UpsertRow upserts a single row with the same merge policy as BulkUpsert,
// in its own implicit transaction. Used for row-level recovery after a batch
// upsert fails.
func UpsertRow(ctx context.Context, pool Pool, cfg UpsertConfig, row []any) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	if len(row) != len(cfg.Columns) {
		return eris.Errorf("db: upsert row: %d values for %d columns", len(row), len(cfg.Columns))
	}

	placeholders := make([]string, len(cfg.Columns))
	for i := range cfg.Columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		sanitizeTable(cfg.Table),
		quoteAndJoin(cfg.Columns),
		strings.Join(placeholders, ", "),
		quoteAndJoin(cfg.ConflictKeys),
		cfg.conflictSet(),
	)

	if _, err := pool.Exec(ctx, sql, row...); err != nil {
		return eris.Wrapf(err, "db: upsert row into %s", cfg.Table)
	}
	return nil
}

func (cfg UpsertConfig) validate() error {
	if len(cfg.Columns) == 0 {
		return eris.New("db: upsert: no columns specified")
	}
	if len(cfg.ConflictKeys) == 0 {
		return eris.New("db: upsert: no conflict keys specified")
	}
	return nil
}

// conflictSet builds the DO UPDATE SET clause from the merge policy.
func (cfg UpsertConfig) conflictSet() string {
	conflict := make(map[string]bool, len(cfg.ConflictKeys))
	for _, k := range cfg.ConflictKeys {
		conflict[k] = true
	}
	coalesce := make(map[string]bool, len(cfg.CoalesceCols))
	for _, c := range cfg.CoalesceCols {
		coalesce[c] = true
	}
	insertOnly := make(map[string]bool, len(cfg.InsertOnly))
	for _, c := range cfg.InsertOnly {
		insertOnly[c] = true
	}

	target := bareTable(cfg.Table)

	var setClauses []string
	for _, col := range cfg.Columns {
		if conflict[col] || insertOnly[col] || col == cfg.TouchCol {
			continue
		}
		cq := pgx.Identifier{col}.Sanitize()
		if coalesce[col] {
			setClauses = append(setClauses,
				fmt.Sprintf("%s = COALESCE(EXCLUDED.%s, %s.%s)", cq, cq, pgx.Identifier{target}.Sanitize(), cq))
		} else {
			setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", cq, cq))
		}
	}

	if cfg.TouchCol != "" {
		setClauses = append(setClauses, fmt.Sprintf("%s = now()", pgx.Identifier{cfg.TouchCol}.Sanitize()))
	}

	return strings.Join(setClauses, ", ")
}

// sanitizeTable handles schema-qualified table names like "public.prestadores".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// bareTable returns the unqualified table name, used to reference the
// existing row inside ON CONFLICT DO UPDATE.
func bareTable(table string) string {
	if i := strings.LastIndex(table, "."); i >= 0 {
		return table[i+1:]
	}
	return table
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
