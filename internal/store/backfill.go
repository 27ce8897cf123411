package store

import (
	"context"

	"github.com/rotisserie/eris"
)

// PendingEmbedding is a persisted row still waiting for its vector.
type PendingEmbedding struct {
	ID   int
	Text string
}

// PendingProviderEmbeddings returns providers whose name embedding is NULL,
// oldest ids first.
func (s *Store) PendingProviderEmbeddings(ctx context.Context) ([]PendingEmbedding, error) {
	return s.pendingEmbeddings(ctx, `
		SELECT id_prestador, nombre_fantasia
		FROM prestadores
		WHERE nombre_embedding IS NULL AND nombre_fantasia IS NOT NULL
		ORDER BY id_prestador`)
}

// PendingCatalogEmbeddings returns catalog items whose description embedding
// is NULL, oldest ids first.
func (s *Store) PendingCatalogEmbeddings(ctx context.Context) ([]PendingEmbedding, error) {
	return s.pendingEmbeddings(ctx, `
		SELECT id_nomenclador, descripcion
		FROM nomencladores
		WHERE descripcion_embedding IS NULL AND descripcion IS NOT NULL
		ORDER BY id_nomenclador`)
}

func (s *Store) pendingEmbeddings(ctx context.Context, sql string) ([]PendingEmbedding, error) {
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, eris.Wrap(err, "store: query pending embeddings")
	}
	defer rows.Close()

	var out []PendingEmbedding
	for rows.Next() {
		var p PendingEmbedding
		if err := rows.Scan(&p.ID, &p.Text); err != nil {
			return nil, eris.Wrap(err, "store: scan pending embedding")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate pending embeddings")
	}
	return out, nil
}

// SetProviderEmbeddings stores computed vectors for the given provider ids,
// touching nothing but the embedding and the modification timestamp. Nil
// vectors are skipped. Returns the number of rows updated.
func (s *Store) SetProviderEmbeddings(ctx context.Context, ids []int, vecs [][]float32) (int, error) {
	return s.setEmbeddings(ctx,
		`UPDATE prestadores SET nombre_embedding = $1, updated_at = now() WHERE id_prestador = $2`,
		ids, vecs)
}

// SetCatalogEmbeddings stores computed vectors for the given catalog item ids.
func (s *Store) SetCatalogEmbeddings(ctx context.Context, ids []int, vecs [][]float32) (int, error) {
	return s.setEmbeddings(ctx,
		`UPDATE nomencladores SET descripcion_embedding = $1, updated_at = now() WHERE id_nomenclador = $2`,
		ids, vecs)
}

func (s *Store) setEmbeddings(ctx context.Context, sql string, ids []int, vecs [][]float32) (int, error) {
	if len(ids) != len(vecs) {
		return 0, eris.Errorf("store: %d ids for %d vectors", len(ids), len(vecs))
	}

	updated := 0
	for i, id := range ids {
		if vecs[i] == nil {
			continue
		}
		if _, err := s.pool.Exec(ctx, sql, vectorParam(vecs[i]), id); err != nil {
			return updated, eris.Wrapf(err, "store: set embedding for id %d", id)
		}
		updated++
	}
	return updated, nil
}
