package ingest

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/silviosotelo/medical-ocr-service/internal/model"
)

// parseInt parses a required integer key. Spreadsheet numeric cells often
// render as "123.0", so a float form is accepted and truncated.
func parseInt(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f), true
	}
	return 0, false
}

// parseIntPtr parses an optional integer column, nil when blank or malformed.
func parseIntPtr(s string) *int {
	if n, ok := parseInt(s); ok {
		return &n
	}
	return nil
}

// parseFloatPtr parses an optional numeric column, nil when blank or malformed.
func parseFloatPtr(s string) *float64 {
	if s == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return &f
	}
	return nil
}

// ParseProviders converts reconciled provider records into entities. Rows
// with an unparsable id or a blank display name are skipped and counted.
func ParseProviders(recs []Record) ([]model.Provider, int) {
	log := zap.L().With(zap.String("component", "ingest.providers"))

	out := make([]model.Provider, 0, len(recs))
	skipped := 0
	for i, rec := range recs {
		id, ok := parseInt(rec["id"])
		if !ok {
			skipped++
			log.Warn("row skipped: bad provider id", zap.Int("row", i), zap.String("value", rec["id"]))
			continue
		}
		name := Clean(rec["name"])
		if name == nil {
			skipped++
			log.Warn("row skipped: blank provider name", zap.Int("row", i), zap.Int("id", id))
			continue
		}

		count := 0
		if n, ok := parseInt(rec["agreement_count"]); ok {
			count = n
		}

		out = append(out, model.Provider{
			ID:             id,
			RUC:            Clean(rec["ruc"]),
			Name:           name,
			LegalName:      Clean(rec["legal_name"]),
			RegistrationID: Clean(rec["registration_id"]),
			Ranking:        parseFloatPtr(rec["ranking"]),
			NameNormalized: Normalize(rec["name"]),
			AgreementCount: count,
		})
	}
	return out, skipped
}

// ParseCatalogItems converts reconciled catalog records into entities. Rows
// with an unparsable id or a blank description are skipped and counted. The
// group and subgroup codes are derived from the id's decimal string form.
func ParseCatalogItems(recs []Record) ([]model.CatalogItem, int) {
	log := zap.L().With(zap.String("component", "ingest.catalog"))

	out := make([]model.CatalogItem, 0, len(recs))
	skipped := 0
	for i, rec := range recs {
		id, ok := parseInt(rec["id"])
		if !ok {
			skipped++
			log.Warn("row skipped: bad item id", zap.Int("row", i), zap.String("value", rec["id"]))
			continue
		}
		desc := Clean(rec["description"])
		if desc == nil {
			skipped++
			log.Warn("row skipped: blank description", zap.Int("row", i), zap.Int("id", id))
			continue
		}

		group, subgroup := model.GroupSubgroup(id)

		out = append(out, model.CatalogItem{
			ID:                    id,
			Specialty:             Clean(rec["specialty"]),
			Description:           desc,
			AltItemID:             parseIntPtr(rec["alt_item_id"]),
			ServiceID:             parseIntPtr(rec["service_id"]),
			AltDescription:        Clean(rec["alt_description"]),
			Group:                 group,
			Subgroup:              subgroup,
			DescriptionNormalized: Normalize(rec["description"]),
		})
	}
	return out, skipped
}

// ParseAgreements converts reconciled agreement records into entities. Rows
// missing any of the three key components are skipped and counted; the four
// price columns are independently nullable.
func ParseAgreements(recs []Record) ([]model.Agreement, int) {
	log := zap.L().With(zap.String("component", "ingest.agreements"))

	out := make([]model.Agreement, 0, len(recs))
	skipped := 0
	for i, rec := range recs {
		itemID, okItem := parseInt(rec["item_id"])
		providerID, okProv := parseInt(rec["provider_id"])
		planID, okPlan := parseInt(rec["plan_id"])
		if !okItem || !okProv || !okPlan {
			skipped++
			log.Warn("row skipped: incomplete agreement key",
				zap.Int("row", i),
				zap.String("item_id", rec["item_id"]),
				zap.String("provider_id", rec["provider_id"]),
				zap.String("plan_id", rec["plan_id"]))
			continue
		}

		out = append(out, model.Agreement{
			ItemID:              itemID,
			ProviderID:          providerID,
			PlanID:              planID,
			Price:               parseFloatPtr(rec["price"]),
			PriceNormal:         parseFloatPtr(rec["price_normal"]),
			PriceDifferentiated: parseFloatPtr(rec["price_differentiated"]),
			PriceInpatient:      parseFloatPtr(rec["price_inpatient"]),
		})
	}
	return out, skipped
}
