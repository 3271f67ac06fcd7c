package file

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/planscope/planscope/internal/domain"
	"github.com/planscope/planscope/internal/platform/fsx"
	"github.com/planscope/planscope/internal/repositories"
)

// IndexRepository persists the service plan index as a JSON artifact.
type IndexRepository struct {
	path string
}

// NewIndexRepository constructs a repository over the artifact at path.
func NewIndexRepository(path string) (*IndexRepository, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("index repository: path is required")
	}
	return &IndexRepository{path: path}, nil
}

// Save serialises the index through an atomic replace, so a failed write
// never leaves a partial artifact behind.
func (r *IndexRepository) Save(ctx context.Context, index *domain.ServicePlanIndex) error {
	if r == nil {
		return errors.New("index repository not initialised")
	}
	if index == nil {
		return errors.New("index repository: index is required")
	}

	doc := encodeIndexDocument(index)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return WrapError("serviceplan_index.save", err)
	}
	data = append(data, '\n')
	if err := fsx.WriteFileAtomic(r.path, data, 0o644); err != nil {
		return WrapError("serviceplan_index.save", err)
	}
	return nil
}

// Load reads and decodes the artifact. A missing file is reported as a
// not-found repository error; a corrupt artifact is a plain decode failure.
func (r *IndexRepository) Load(ctx context.Context) (*domain.ServicePlanIndex, error) {
	if r == nil {
		return nil, errors.New("index repository not initialised")
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, WrapError("serviceplan_index.load", err)
	}
	var doc indexDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, WrapError("serviceplan_index.load", err)
	}
	return decodeIndexDocument(doc), nil
}

// Path reports the artifact location.
func (r *IndexRepository) Path() string {
	if r == nil {
		return ""
	}
	return r.path
}

func encodeIndexDocument(index *domain.ServicePlanIndex) indexDocument {
	items := make([]servicePlanEntryDocument, 0, len(index.Entries))
	for _, entry := range index.Entries {
		items = append(items, encodeEntryDocument(entry))
	}

	top := make([]planCountDocument, 0, len(index.Summary.TopPlans))
	for _, plan := range index.Summary.TopPlans {
		top = append(top, planCountDocument{
			ServicePlanID: plan.ServicePlanID,
			PlanNames:     cloneSlice(plan.PlanNames),
			ProductCount:  plan.ProductCount,
		})
	}

	return indexDocument{
		Summary: indexSummaryDocument{
			GeneratedAt:   index.Summary.GeneratedAt.UTC(),
			SourceFile:    index.Summary.SourceFile,
			TotalPlans:    index.Summary.TotalPlans,
			RowsProcessed: index.Summary.RowsProcessed,
			RowsSkipped:   index.Summary.RowsSkipped,
			TopPlans:      top,
		},
		Items: items,
	}
}

func encodeEntryDocument(entry domain.ServicePlanEntry) servicePlanEntryDocument {
	products := make([]productRefDocument, 0, len(entry.Products))
	for _, product := range entry.Products {
		products = append(products, productRefDocument{
			ProductDisplayName: product.ProductDisplayName,
			StringID:           product.StringID,
			SKUGUID:            product.SKUGUID,
			FriendlyNames:      product.ServicePlansIncludedFriendlyNames,
		})
	}
	return servicePlanEntryDocument{
		ServicePlanID:    entry.ServicePlanID,
		ServicePlanNames: cloneSlice(entry.ServicePlanNames),
		Products:         products,
		ProductCount:     entry.ProductCount,
	}
}

func decodeIndexDocument(doc indexDocument) *domain.ServicePlanIndex {
	entries := make([]domain.ServicePlanEntry, 0, len(doc.Items))
	for _, item := range doc.Items {
		entries = append(entries, decodeEntryDocument(item))
	}

	top := make([]domain.PlanCount, 0, len(doc.Summary.TopPlans))
	for _, plan := range doc.Summary.TopPlans {
		top = append(top, domain.PlanCount{
			ServicePlanID: plan.ServicePlanID,
			PlanNames:     cloneSlice(plan.PlanNames),
			ProductCount:  plan.ProductCount,
		})
	}

	summary := domain.IndexSummary{
		GeneratedAt:   doc.Summary.GeneratedAt.UTC(),
		SourceFile:    doc.Summary.SourceFile,
		TotalPlans:    doc.Summary.TotalPlans,
		RowsProcessed: doc.Summary.RowsProcessed,
		RowsSkipped:   doc.Summary.RowsSkipped,
		TopPlans:      top,
	}
	return domain.NewServicePlanIndex(summary, entries)
}

func decodeEntryDocument(doc servicePlanEntryDocument) domain.ServicePlanEntry {
	products := make([]domain.ProductRef, 0, len(doc.Products))
	for _, product := range doc.Products {
		products = append(products, domain.ProductRef{
			ProductDisplayName:                product.ProductDisplayName,
			StringID:                          product.StringID,
			SKUGUID:                           product.SKUGUID,
			ServicePlansIncludedFriendlyNames: product.FriendlyNames,
		})
	}
	return domain.ServicePlanEntry{
		ServicePlanID:    doc.ServicePlanID,
		ServicePlanNames: cloneSlice(doc.ServicePlanNames),
		Products:         products,
		ProductCount:     doc.ProductCount,
	}
}

type indexDocument struct {
	Summary indexSummaryDocument       `json:"summary"`
	Items   []servicePlanEntryDocument `json:"items"`
}

type indexSummaryDocument struct {
	GeneratedAt   time.Time           `json:"generatedAt"`
	SourceFile    string              `json:"sourceFile,omitempty"`
	TotalPlans    int                 `json:"totalServicePlans"`
	RowsProcessed int                 `json:"rowsProcessed"`
	RowsSkipped   int                 `json:"rowsSkipped"`
	TopPlans      []planCountDocument `json:"topPlans,omitempty"`
}

type planCountDocument struct {
	ServicePlanID string   `json:"servicePlanId"`
	PlanNames     []string `json:"servicePlanNames,omitempty"`
	ProductCount  int      `json:"productCount"`
}

type servicePlanEntryDocument struct {
	ServicePlanID    string               `json:"servicePlanId"`
	ServicePlanNames []string             `json:"servicePlanNames"`
	Products         []productRefDocument `json:"products"`
	ProductCount     int                  `json:"productCount"`
}

type productRefDocument struct {
	ProductDisplayName string `json:"productDisplayName"`
	StringID           string `json:"stringId,omitempty"`
	SKUGUID            string `json:"skuGuid,omitempty"`
	FriendlyNames      string `json:"servicePlansIncludedFriendlyNames,omitempty"`
}

func cloneSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

var _ repositories.IndexRepository = (*IndexRepository)(nil)
