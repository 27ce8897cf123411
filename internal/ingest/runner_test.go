package ingest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/silviosotelo/medical-ocr-service/internal/config"
	"github.com/silviosotelo/medical-ocr-service/internal/embed"
	"github.com/silviosotelo/medical-ocr-service/internal/store"
)

func writeFeed(t *testing.T, name string, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Hoja1")
	require.NoError(t, err)
	for _, row := range rows {
		r := sheet.AddRow()
		for _, cell := range row {
			r.AddCell().SetString(cell)
		}
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, f.Save(path))
	return path
}

func newRunner(t *testing.T, cfg *config.Config, gen *embed.Generator) (*Runner, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewRunner(cfg, store.New(mock), gen), mock
}

func expectLoadStart(mock pgxmock.PgxPoolIface, entity string) {
	mock.ExpectExec("INSERT INTO import_runs").
		WithArgs(pgxmock.AnyArg(), entity).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
}

func expectLoadComplete(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec("UPDATE import_runs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
}

func expectBulkUpsert(mock pgxmock.PgxPoolIface, table string, cols []string, rows int64) {
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_" + table}, cols).
		WillReturnResult(rows)
	mock.ExpectExec("DELETE FROM").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("INSERT INTO").
		WillReturnResult(pgxmock.NewResult("INSERT", rows))
	mock.ExpectCommit()
}

func expectCounters(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec("UPDATE nomencladores").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectExec("UPDATE prestadores").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
}

var providerCols = []string{
	"id_prestador", "ruc", "nombre_fantasia", "raz_soc_nombre",
	"registro_profesional", "ranking", "nombre_embedding",
	"nombre_normalizado", "cantidad_acuerdos",
}

func TestRunProviderOnly(t *testing.T) {
	feed := writeFeed(t, "prestadores.xlsx", [][]string{
		{"ID_PRESTADOR", "NOMBRE_FANTASIA", "RUC"},
		{"1", "Clinica A", "80011111-1"},
		{"1", "Clinica B", "80022222-2"}, // same id, later row wins
		{"zzz", "Bad Row", ""},
	})
	cfg := &config.Config{
		Sources: config.SourcesConfig{Prestadores: feed},
		Load:    config.LoadConfig{WriteBatchSize: 100},
	}
	r, mock := newRunner(t, cfg, nil)

	expectLoadStart(mock, EntityProvider)
	expectBulkUpsert(mock, "prestadores", providerCols, 1)
	expectLoadComplete(mock)
	expectCounters(mock)

	results, err := r.Run(context.Background(), RunnerOptions{Only: EntityProvider, SkipEmbeddings: true})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, EntityProvider, results[0].Entity)
	assert.Equal(t, int64(1), results[0].Upserted)
	assert.Equal(t, 1, results[0].SkippedRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunCatalogSchemaErrorFailsEntity(t *testing.T) {
	// The feed is missing every accepted spelling of the description column.
	feed := writeFeed(t, "nomencladores.xlsx", [][]string{
		{"ID_NOMENCLADOR", "ESPECIALIDAD"},
		{"123456", "Cardiología"},
	})
	cfg := &config.Config{
		Sources: config.SourcesConfig{Nomencladores: []string{feed}},
		Load:    config.LoadConfig{WriteBatchSize: 100},
	}
	r, mock := newRunner(t, cfg, nil)

	expectLoadStart(mock, EntityCatalog)
	mock.ExpectExec("UPDATE import_runs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1)) // FailLoad
	expectCounters(mock)

	results, err := r.Run(context.Background(), RunnerOptions{Only: EntityCatalog, SkipEmbeddings: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog load failed")
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunAgreementMergedFeedsKeepFirst(t *testing.T) {
	// The same composite key appears in both feeds; the first feed's price
	// must be the one persisted, so only one row reaches the writer.
	feedA := writeFeed(t, "acuerdos_a.xlsx", [][]string{
		{"ID_NOMENCLADOR", "PREST_ID_PRESTADOR", "PLAN_ID_PLAN", "PRECIO"},
		{"55", "7", "2", "100"},
	})
	feedB := writeFeed(t, "acuerdos_b.xlsx", [][]string{
		{"ID_NOMENCLADOR", "ID_PRESTADOR", "ID_PLAN", "PRECIO"},
		{"55", "7", "2", "250"},
		{"56", "7", "2", "300"},
	})
	cfg := &config.Config{
		Sources: config.SourcesConfig{Acuerdos: []string{feedA, feedB}},
		Load:    config.LoadConfig{WriteBatchSize: 100},
	}
	r, mock := newRunner(t, cfg, nil)

	agreementCols := []string{
		"id_nomenclador", "prest_id_prestador", "plan_id_plan",
		"precio", "precio_normal", "precio_diferenciado", "precio_internado",
	}

	expectLoadStart(mock, EntityAgreement)
	expectBulkUpsert(mock, "acuerdos_prestador", agreementCols, 2)
	expectLoadComplete(mock)
	expectCounters(mock)

	results, err := r.Run(context.Background(), RunnerOptions{Only: EntityAgreement})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(2), results[0].Upserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMissingFeedFileFailsEntity(t *testing.T) {
	cfg := &config.Config{
		Sources: config.SourcesConfig{Prestadores: "/does/not/exist.xlsx"},
		Load:    config.LoadConfig{WriteBatchSize: 100},
	}
	r, mock := newRunner(t, cfg, nil)

	expectLoadStart(mock, EntityProvider)
	mock.ExpectExec("UPDATE import_runs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1)) // FailLoad
	expectCounters(mock)

	_, err := r.Run(context.Background(), RunnerOptions{Only: EntityProvider})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider load failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

type staticEmbedder struct {
	vec []float32
}

func (s staticEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}

func TestRunOnlyEmbeddingsBackfill(t *testing.T) {
	gen := embed.NewGenerator(staticEmbedder{vec: []float32{1, 2}}, embed.GeneratorOptions{
		BatchSize:  10,
		RatePerSec: 1000,
	})
	cfg := &config.Config{Load: config.LoadConfig{WriteBatchSize: 100}}
	r, mock := newRunner(t, cfg, gen)

	mock.ExpectQuery("SELECT id_prestador, nombre_fantasia").
		WillReturnRows(pgxmock.NewRows([]string{"id_prestador", "nombre_fantasia"}).
			AddRow(3, "Clinica Norte"))
	mock.ExpectExec("UPDATE prestadores SET nombre_embedding").
		WithArgs("[1,2]", 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	mock.ExpectQuery("SELECT id_nomenclador, descripcion").
		WillReturnRows(pgxmock.NewRows([]string{"id_nomenclador", "descripcion"}))

	results, err := r.Run(context.Background(), RunnerOptions{OnlyEmbeddings: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].Upserted)
	assert.Equal(t, int64(0), results[1].Upserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOnlyEmbeddingsRequiresGenerator(t *testing.T) {
	cfg := &config.Config{}
	r, _ := newRunner(t, cfg, nil)

	_, err := r.Run(context.Background(), RunnerOptions{OnlyEmbeddings: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding api key")
}
