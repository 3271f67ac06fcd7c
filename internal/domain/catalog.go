package domain

import (
	"strings"
	"time"
)

// UnknownProductName is the display name assigned to catalog rows that carry
// neither a product display name nor a string identifier.
const UnknownProductName = "UnknownProduct"

// CatalogRow is one normalized row of the vendor licensing catalog: a single
// (product, service plan) pairing as published in the reference CSV.
type CatalogRow struct {
	ProductDisplayName                string
	StringID                          string
	SKUGUID                           string
	ServicePlanID                     string
	ServicePlanName                   string
	ServicePlansIncludedFriendlyNames string
}

// ProductRef identifies one product that includes a given service plan. The
// field values are carried from the first catalog row that introduced the
// product under that plan.
type ProductRef struct {
	ProductDisplayName                string
	StringID                          string
	SKUGUID                           string
	ServicePlansIncludedFriendlyNames string
}

// ServicePlanEntry aggregates everything the catalog says about one service
// plan id: the names it has been published under and the products containing
// it, deduplicated case-insensitively by product display name.
type ServicePlanEntry struct {
	ServicePlanID    string
	ServicePlanNames []string
	Products         []ProductRef
	ProductCount     int
}

// IndexSummary describes the provenance and shape of a built index. TopPlans
// holds the highest-product-count entries in presentation order.
type IndexSummary struct {
	GeneratedAt   time.Time
	SourceFile    string
	TotalPlans    int
	RowsProcessed int
	RowsSkipped   int
	TopPlans      []PlanCount
}

// PlanCount pairs a service plan id with its product count for summary
// listings.
type PlanCount struct {
	ServicePlanID string
	PlanNames     []string
	ProductCount  int
}

// ServicePlanIndex is the reverse lookup from service plan id to the products
// that include the plan. Entries preserves the materialized presentation order
// (product count descending, then plan id ascending); lookups always go
// through the id-keyed map so that order never carries meaning.
type ServicePlanIndex struct {
	Summary IndexSummary
	Entries []ServicePlanEntry

	byID map[string]*ServicePlanEntry
}

// NewServicePlanIndex builds an index value around the given entries and
// summary, wiring the id lookup map.
func NewServicePlanIndex(summary IndexSummary, entries []ServicePlanEntry) *ServicePlanIndex {
	idx := &ServicePlanIndex{Summary: summary, Entries: entries}
	idx.reindex()
	return idx
}

// Lookup returns the entry for the given service plan id using a
// case-insensitive comparison. The boolean reports whether the id is known.
func (idx *ServicePlanIndex) Lookup(servicePlanID string) (*ServicePlanEntry, bool) {
	if idx == nil || idx.byID == nil {
		return nil, false
	}
	entry, ok := idx.byID[foldID(servicePlanID)]
	return entry, ok
}

// Len reports the number of service plan entries in the index.
func (idx *ServicePlanIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.Entries)
}

func (idx *ServicePlanIndex) reindex() {
	idx.byID = make(map[string]*ServicePlanEntry, len(idx.Entries))
	for i := range idx.Entries {
		idx.byID[foldID(idx.Entries[i].ServicePlanID)] = &idx.Entries[i]
	}
}

// Service plan ids are ASCII GUID strings, so a plain lowercase fold is
// sufficient for id keying.
func foldID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
