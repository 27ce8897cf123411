package store

import (
	"context"

	"github.com/silviosotelo/medical-ocr-service/internal/db"
	"github.com/silviosotelo/medical-ocr-service/internal/model"
)

var providerUpsert = db.UpsertConfig{
	Table: "prestadores",
	Columns: []string{
		"id_prestador", "ruc", "nombre_fantasia", "raz_soc_nombre",
		"registro_profesional", "ranking", "nombre_embedding",
		"nombre_normalizado", "cantidad_acuerdos",
	},
	ConflictKeys: []string{"id_prestador"},
	CoalesceCols: []string{"nombre_embedding"},
	// The live count belongs to the counter reconciler; the feed value only
	// seeds freshly inserted rows.
	InsertOnly: []string{"cantidad_acuerdos"},
	TouchCol:   "updated_at",
}

var catalogUpsert = db.UpsertConfig{
	Table: "nomencladores",
	Columns: []string{
		"id_nomenclador", "especialidad", "descripcion", "id_nomenclador2",
		"id_servicio", "desc_nomenclador", "grupo", "subgrupo",
		"descripcion_embedding", "descripcion_normalizada",
	},
	ConflictKeys: []string{"id_nomenclador"},
	CoalesceCols: []string{"descripcion_embedding"},
	TouchCol:     "updated_at",
}

var agreementUpsert = db.UpsertConfig{
	Table: "acuerdos_prestador",
	Columns: []string{
		"id_nomenclador", "prest_id_prestador", "plan_id_plan",
		"precio", "precio_normal", "precio_diferenciado", "precio_internado",
	},
	ConflictKeys: []string{"prest_id_prestador", "id_nomenclador", "plan_id_plan"},
	TouchCol:     "updated_at",
}

// UpsertProviders persists providers in batches of batchSize.
func (s *Store) UpsertProviders(ctx context.Context, providers []model.Provider, batchSize int) (BatchResult, error) {
	rows := make([][]any, 0, len(providers))
	for _, p := range providers {
		rows = append(rows, []any{
			p.ID, p.RUC, p.Name, p.LegalName,
			p.RegistrationID, p.Ranking, vectorParam(p.NameEmbedding),
			p.NameNormalized, p.AgreementCount,
		})
	}
	return s.upsertBatches(ctx, providerUpsert, rows, batchSize)
}

// UpsertCatalogItems persists catalog items in batches of batchSize.
func (s *Store) UpsertCatalogItems(ctx context.Context, items []model.CatalogItem, batchSize int) (BatchResult, error) {
	rows := make([][]any, 0, len(items))
	for _, it := range items {
		rows = append(rows, []any{
			it.ID, it.Specialty, it.Description, it.AltItemID,
			it.ServiceID, it.AltDescription, it.Group, it.Subgroup,
			vectorParam(it.DescriptionEmbedding), it.DescriptionNormalized,
		})
	}
	return s.upsertBatches(ctx, catalogUpsert, rows, batchSize)
}

// UpsertAgreements persists agreements in batches of batchSize.
func (s *Store) UpsertAgreements(ctx context.Context, agreements []model.Agreement, batchSize int) (BatchResult, error) {
	rows := make([][]any, 0, len(agreements))
	for _, a := range agreements {
		rows = append(rows, []any{
			a.ItemID, a.ProviderID, a.PlanID,
			a.Price, a.PriceNormal, a.PriceDifferentiated, a.PriceInpatient,
		})
	}
	return s.upsertBatches(ctx, agreementUpsert, rows, batchSize)
}
