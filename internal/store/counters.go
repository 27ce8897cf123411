package store

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ReconcileCounters overwrites the stored agreement counters on providers
// and catalog items with the live count of referencing agreement rows. It is
// a pure aggregation, so it stays correct however many times agreements were
// loaded or how the run was partitioned.
func (s *Store) ReconcileCounters(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "store.counters"))

	tag, err := s.pool.Exec(ctx, `
		UPDATE nomencladores n
		SET cantidad_acuerdos = (
			SELECT COUNT(*)
			FROM acuerdos_prestador a
			WHERE a.id_nomenclador = n.id_nomenclador
		)`)
	if err != nil {
		return eris.Wrap(err, "store: reconcile catalog counters")
	}
	log.Info("catalog counters reconciled", zap.Int64("rows", tag.RowsAffected()))

	tag, err = s.pool.Exec(ctx, `
		UPDATE prestadores p
		SET cantidad_acuerdos = (
			SELECT COUNT(*)
			FROM acuerdos_prestador a
			WHERE a.prest_id_prestador = p.id_prestador
		)`)
	if err != nil {
		return eris.Wrap(err, "store: reconcile provider counters")
	}
	log.Info("provider counters reconciled", zap.Int64("rows", tag.RowsAffected()))

	return nil
}
