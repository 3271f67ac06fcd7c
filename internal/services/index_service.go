package services

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"time"

	domain "github.com/planscope/planscope/internal/domain"
	"github.com/planscope/planscope/internal/platform/textutil"
)

// ErrIndexUnavailable indicates the index service cannot serve the request.
var ErrIndexUnavailable = errors.New("index service: unavailable")

// indexTopPlanCount bounds the summary's highest-product-count listing.
const indexTopPlanCount = 10

// IndexServiceDeps wires the clock used to stamp built indexes.
type IndexServiceDeps struct {
	Clock func() time.Time
}

type indexService struct {
	now func() time.Time
}

// NewIndexService constructs an IndexService.
func NewIndexService(deps IndexServiceDeps) (IndexService, error) {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &indexService{now: func() time.Time { return clock().UTC() }}, nil
}

type planEntryBuilder struct {
	entry    domain.ServicePlanEntry
	names    *textutil.FoldSet
	products *textutil.FoldSet
}

// BuildIndex aggregates catalog rows into one entry per service plan id. Rows
// with an empty id are skipped and counted; product references are
// deduplicated case-insensitively by resolved display name. The result is
// independent of row order.
func (s *indexService) BuildIndex(ctx context.Context, cmd BuildIndexCommand) (*domain.ServicePlanIndex, error) {
	if s == nil {
		return nil, ErrIndexUnavailable
	}

	builders := make(map[string]*planEntryBuilder)
	processed := 0
	skipped := 0

	for _, row := range cmd.Rows {
		planID := strings.TrimSpace(row.ServicePlanID)
		if planID == "" {
			skipped++
			continue
		}
		processed++

		key := textutil.Fold(planID)
		builder, ok := builders[key]
		if !ok {
			builder = &planEntryBuilder{
				entry:    domain.ServicePlanEntry{ServicePlanID: planID},
				names:    textutil.NewFoldSet(),
				products: textutil.NewFoldSet(),
			}
			builders[key] = builder
		}

		builder.names.Add(row.ServicePlanName)

		productName := productDisplayName(row)
		if builder.products.Add(productName) {
			builder.entry.Products = append(builder.entry.Products, domain.ProductRef{
				ProductDisplayName:                productName,
				StringID:                          strings.TrimSpace(row.StringID),
				SKUGUID:                           strings.TrimSpace(row.SKUGUID),
				ServicePlansIncludedFriendlyNames: strings.TrimSpace(row.ServicePlansIncludedFriendlyNames),
			})
		}
	}

	entries := make([]domain.ServicePlanEntry, 0, len(builders))
	for _, builder := range builders {
		entry := builder.entry
		entry.ServicePlanNames = builder.names.Values()
		products := entry.Products
		sort.Slice(products, func(i, j int) bool {
			return textutil.Fold(products[i].ProductDisplayName) < textutil.Fold(products[j].ProductDisplayName)
		})
		entry.ProductCount = len(products)
		entries = append(entries, entry)
	}

	// Presentation order for the persisted artifact; lookups key by id.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ProductCount != entries[j].ProductCount {
			return entries[i].ProductCount > entries[j].ProductCount
		}
		return entries[i].ServicePlanID < entries[j].ServicePlanID
	})

	summary := domain.IndexSummary{
		GeneratedAt:   s.now(),
		SourceFile:    sourceFileName(cmd.SourceFile),
		TotalPlans:    len(entries),
		RowsProcessed: processed,
		RowsSkipped:   skipped,
		TopPlans:      topPlans(entries, indexTopPlanCount),
	}

	return domain.NewServicePlanIndex(summary, entries), nil
}

// productDisplayName resolves the display name for a catalog row, falling
// back to the string id and finally the UnknownProduct literal.
func productDisplayName(row domain.CatalogRow) string {
	if name := strings.TrimSpace(row.ProductDisplayName); name != "" {
		return name
	}
	if id := strings.TrimSpace(row.StringID); id != "" {
		return id
	}
	return domain.UnknownProductName
}

func sourceFileName(path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	return filepath.Base(path)
}

func topPlans(entries []domain.ServicePlanEntry, limit int) []domain.PlanCount {
	if limit > len(entries) {
		limit = len(entries)
	}
	if limit <= 0 {
		return nil
	}
	top := make([]domain.PlanCount, 0, limit)
	for _, entry := range entries[:limit] {
		top = append(top, domain.PlanCount{
			ServicePlanID: entry.ServicePlanID,
			PlanNames:     cloneSlice(entry.ServicePlanNames),
			ProductCount:  entry.ProductCount,
		})
	}
	return top
}

func cloneSlice(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
