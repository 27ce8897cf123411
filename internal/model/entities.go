// Package model defines the persisted entities of the provider catalog.
package model

import "strconv"

// Provider is a medical-service provider ("prestador"), keyed by its
// business id from the source system.
type Provider struct {
	ID             int
	RUC            *string
	Name           *string // display name (nombre_fantasia)
	LegalName      *string
	RegistrationID *string
	Ranking        *float64
	NameNormalized *string
	NameEmbedding  []float32
	AgreementCount int
}

// CatalogItem is a service catalog entry ("nomenclador").
type CatalogItem struct {
	ID                    int
	Specialty             *string
	Description           *string
	AltItemID             *int // secondary nomenclador id
	ServiceID             *int
	AltDescription        *string
	Group                 *string
	Subgroup              *string
	DescriptionNormalized *string
	DescriptionEmbedding  []float32
	AgreementCount        int
}

// Agreement is a price agreement between a provider and a catalog item
// under a specific plan. The three ids form the composite business key.
type Agreement struct {
	ItemID              int
	ProviderID          int
	PlanID              int
	Price               *float64
	PriceNormal         *float64
	PriceDifferentiated *float64
	PriceInpatient      *float64
}

// Key returns the composite business key of the agreement.
func (a Agreement) Key() AgreementKey {
	return AgreementKey{ItemID: a.ItemID, ProviderID: a.ProviderID, PlanID: a.PlanID}
}

// AgreementKey identifies an agreement row.
type AgreementKey struct {
	ItemID     int
	ProviderID int
	PlanID     int
}

// GroupSubgroup derives the catalog group and subgroup codes from the string
// form of the item id: group is the first 2 characters, subgroup the first 4.
// Either is nil when the id is too short.
func GroupSubgroup(itemID int) (group, subgroup *string) {
	s := strconv.Itoa(itemID)
	if len(s) >= 2 {
		g := s[:2]
		group = &g
	}
	if len(s) >= 4 {
		sg := s[:4]
		subgroup = &sg
	}
	return group, subgroup
}
