package store

import (
	"context"

	"github.com/rotisserie/eris"
)

// TableStats describes the row count and embedding coverage of one table.
type TableStats struct {
	Rows     int64
	Embedded int64
}

// Stats aggregates counts shown by the status command.
type Stats struct {
	Providers    TableStats
	CatalogItems TableStats
	Agreements   int64
}

// CollectStats returns row counts and embedding coverage for the core tables.
func (s *Store) CollectStats(ctx context.Context) (*Stats, error) {
	var st Stats

	err := s.pool.QueryRow(ctx,
		`SELECT count(*), count(nombre_embedding) FROM prestadores`,
	).Scan(&st.Providers.Rows, &st.Providers.Embedded)
	if err != nil {
		return nil, eris.Wrap(err, "store: count prestadores")
	}

	err = s.pool.QueryRow(ctx,
		`SELECT count(*), count(descripcion_embedding) FROM nomencladores`,
	).Scan(&st.CatalogItems.Rows, &st.CatalogItems.Embedded)
	if err != nil {
		return nil, eris.Wrap(err, "store: count nomencladores")
	}

	err = s.pool.QueryRow(ctx,
		`SELECT count(*) FROM acuerdos_prestador`,
	).Scan(&st.Agreements)
	if err != nil {
		return nil, eris.Wrap(err, "store: count acuerdos")
	}

	return &st, nil
}
