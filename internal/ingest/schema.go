package ingest

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/silviosotelo/medical-ocr-service/internal/fetcher"
)

// Field maps a canonical field name onto the source-column spellings that
// have appeared across schema revisions of the input workbooks. Matching is
// exact after trimming and case-normalization; no fuzzy matching.
type Field struct {
	Name     string
	Aliases  []string
	Required bool
}

// Schema is the canonical field set of one entity's source feed.
type Schema struct {
	Entity string
	Fields []Field
}

// Record holds one source row keyed by canonical field name. Missing
// optional columns are present with an empty value.
type Record map[string]string

// The column tables below are data, not code: adding a schema revision means
// adding a spelling, nothing else.

// ProviderSchema describes the prestadores feed.
var ProviderSchema = Schema{
	Entity: "provider",
	Fields: []Field{
		{Name: "id", Aliases: []string{"ID_PRESTADOR"}, Required: true},
		{Name: "name", Aliases: []string{"NOMBRE_FANTASIA"}, Required: true},
		{Name: "ruc", Aliases: []string{"RUC"}},
		{Name: "legal_name", Aliases: []string{"RAZ_SOC_NOMBRE", "RAZON_SOCIAL"}},
		{Name: "registration_id", Aliases: []string{"REGISTRO_PROFESIONAL"}},
		{Name: "ranking", Aliases: []string{"RANKING"}},
		{Name: "agreement_count", Aliases: []string{"CANTIDAD", "CANTIDAD_ACUERDOS"}},
	},
}

// CatalogSchema describes the nomencladores feeds.
var CatalogSchema = Schema{
	Entity: "catalog",
	Fields: []Field{
		{Name: "id", Aliases: []string{"ID_NOMENCLADOR"}, Required: true},
		{Name: "description", Aliases: []string{"NOMEN_DESCRIPCION_DET", "DESCRIPCION"}, Required: true},
		{Name: "specialty", Aliases: []string{"ESPECIALIDAD"}},
		{Name: "alt_item_id", Aliases: []string{"ID_NOMENCLADOR2"}},
		{Name: "service_id", Aliases: []string{"ID_SERVICIO"}},
		{Name: "alt_description", Aliases: []string{"DESC_NOMENCLADOR"}},
	},
}

// AgreementSchema describes the acuerdos feeds.
var AgreementSchema = Schema{
	Entity: "agreement",
	Fields: []Field{
		{Name: "item_id", Aliases: []string{"ID_NOMENCLADOR"}, Required: true},
		{Name: "provider_id", Aliases: []string{"PREST_ID_PRESTADOR", "ID_PRESTADOR"}, Required: true},
		{Name: "plan_id", Aliases: []string{"PLAN_ID_PLAN", "ID_PLAN"}, Required: true},
		{Name: "price", Aliases: []string{"PRECIO"}},
		{Name: "price_normal", Aliases: []string{"PRECIO_NORMAL"}},
		{Name: "price_differentiated", Aliases: []string{"PRECIO_DIFERENCIADO"}},
		{Name: "price_inpatient", Aliases: []string{"PRECIO_INTERNADO"}},
	},
}

// Reconcile maps the table's columns onto the schema's canonical fields. If a
// required field has no matching column the entity load must not proceed:
// the error is returned and zero records are produced.
func (s Schema) Reconcile(tbl *fetcher.Table) ([]Record, error) {
	colIdx := make(map[string]int, len(tbl.Header))
	for i, col := range tbl.Header {
		colIdx[normalizeColumn(col)] = i
	}

	fieldCol := make(map[string]int, len(s.Fields))
	for _, f := range s.Fields {
		idx, ok := matchColumn(colIdx, f.Aliases)
		if !ok {
			if f.Required {
				return nil, eris.Errorf("schema: %s: required column %s not found (accepted: %s)",
					s.Entity, f.Name, strings.Join(f.Aliases, ", "))
			}
			continue
		}
		fieldCol[f.Name] = idx
	}

	records := make([]Record, 0, len(tbl.Rows))
	for r := range tbl.Rows {
		rec := make(Record, len(s.Fields))
		for _, f := range s.Fields {
			if idx, ok := fieldCol[f.Name]; ok {
				rec[f.Name] = tbl.Cell(r, idx)
			} else {
				rec[f.Name] = ""
			}
		}
		records = append(records, rec)
	}

	return records, nil
}

func matchColumn(colIdx map[string]int, aliases []string) (int, bool) {
	for _, a := range aliases {
		if idx, ok := colIdx[normalizeColumn(a)]; ok {
			return idx, true
		}
	}
	return 0, false
}

func normalizeColumn(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
