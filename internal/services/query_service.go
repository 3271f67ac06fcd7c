package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	domain "github.com/planscope/planscope/internal/domain"
	"github.com/planscope/planscope/internal/platform/textutil"
)

var (
	// ErrNoCriteria signals that no selector of any kind was supplied. It is
	// distinct from criteria that resolved to zero matches.
	ErrNoCriteria = errors.New("query service: no criteria supplied")

	// ErrQueryIndexRequired indicates the caller passed a nil index.
	ErrQueryIndexRequired = errors.New("query service: index is required")

	// ErrQueryInvalidCriteria indicates a name pattern or regex that does not
	// compile.
	ErrQueryInvalidCriteria = errors.New("query service: invalid criteria")
)

type queryService struct{}

// NewQueryService constructs a QueryService.
func NewQueryService() QueryService {
	return &queryService{}
}

// ResolveTargetIDs turns exact ids, wildcard name patterns, and name regexes
// into a deduplicated target id set. Exact ids are taken verbatim without
// validating them against the index; patterns and regexes contribute the id
// of every entry with at least one matching plan name.
func (s *queryService) ResolveTargetIDs(ctx context.Context, index *domain.ServicePlanIndex, criteria QueryCriteria) ([]string, error) {
	if index == nil {
		return nil, ErrQueryIndexRequired
	}
	if criteria.Empty() {
		return nil, ErrNoCriteria
	}

	matchers := make([]*regexp.Regexp, 0, len(criteria.NamePatterns)+len(criteria.NameRegexes))
	for _, pattern := range criteria.NamePatterns {
		trimmed := strings.TrimSpace(pattern)
		if trimmed == "" {
			continue
		}
		re, err := textutil.CompileWildcard(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%w: name pattern %q: %v", ErrQueryInvalidCriteria, pattern, err)
		}
		matchers = append(matchers, re)
	}
	for _, expr := range criteria.NameRegexes {
		trimmed := strings.TrimSpace(expr)
		if trimmed == "" {
			continue
		}
		re, err := textutil.CompileCaseInsensitive(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%w: name regex %q: %v", ErrQueryInvalidCriteria, expr, err)
		}
		matchers = append(matchers, re)
	}

	targets := textutil.NewFoldSet(criteria.ExactIDs...)

	if len(matchers) > 0 {
		for i := range index.Entries {
			entry := &index.Entries[i]
			if planNameMatches(entry.ServicePlanNames, matchers) {
				targets.Add(entry.ServicePlanID)
			}
		}
	}

	return targets.Values(), nil
}

func planNameMatches(names []string, matchers []*regexp.Regexp) bool {
	for _, name := range names {
		for _, re := range matchers {
			if re.MatchString(name) {
				return true
			}
		}
	}
	return false
}

type productAccumulator struct {
	ref       domain.ProductRef
	stringIDs *textutil.FoldSet
	skuGUIDs  *textutil.FoldSet
	planIDs   *textutil.FoldSet
}

// Query computes the products containing every target plan at once, plus each
// matched plan's own product listing. An empty target set yields an empty
// result without error. Target ids unknown to the index contribute no products
// yet still count toward the required total, so one stale id leaves
// ProductsWithAllPlans empty; callers mixing fresh and stale ids see that
// strictness rather than a silently smaller intersection.
func (s *queryService) Query(ctx context.Context, index *domain.ServicePlanIndex, targetIDs []string, opts QueryOptions) (QueryResult, error) {
	if index == nil {
		return QueryResult{}, ErrQueryIndexRequired
	}

	targets := textutil.NewFoldSet(targetIDs...)
	result := QueryResult{
		CriteriaPlanIDs:   targets.Values(),
		RequiredPlanCount: targets.Len(),
	}
	if targets.Len() == 0 {
		return result, nil
	}

	accumulators := make(map[string]*productAccumulator)

	for _, target := range targets.Values() {
		entry, ok := index.Lookup(target)
		if !ok {
			// Unknown ids resolve to nothing but still count toward the
			// required total, so a single stale id empties the intersection.
			continue
		}

		names := textutil.NewFoldSet()
		for _, product := range entry.Products {
			names.Add(product.ProductDisplayName)

			key := textutil.Fold(product.ProductDisplayName)
			acc, ok := accumulators[key]
			if !ok {
				acc = &productAccumulator{
					ref:       product,
					stringIDs: textutil.NewFoldSet(),
					skuGUIDs:  textutil.NewFoldSet(),
					planIDs:   textutil.NewFoldSet(),
				}
				accumulators[key] = acc
			}
			acc.stringIDs.Add(product.StringID)
			acc.skuGUIDs.Add(product.SKUGUID)
			acc.planIDs.Add(entry.ServicePlanID)
		}

		result.PerPlanProducts = append(result.PerPlanProducts, domain.PlanProducts{
			ServicePlanID:    entry.ServicePlanID,
			ServicePlanNames: cloneSlice(entry.ServicePlanNames),
			ProductNames:     names.Values(),
		})
	}

	for _, acc := range accumulators {
		if acc.planIDs.Len() != targets.Len() {
			continue
		}
		result.ProductsWithAllPlans = append(result.ProductsWithAllPlans, domain.ProductMatch{
			ProductDisplayName: acc.ref.ProductDisplayName,
			StringIDs:          acc.stringIDs.Values(),
			SKUGUIDs:           acc.skuGUIDs.Values(),
			MatchedPlanIDs:     acc.planIDs.Values(),
			MatchedPlanCount:   acc.planIDs.Len(),
			RequiredPlanCount:  targets.Len(),
		})
	}
	sort.Slice(result.ProductsWithAllPlans, func(i, j int) bool {
		return textutil.Fold(result.ProductsWithAllPlans[i].ProductDisplayName) <
			textutil.Fold(result.ProductsWithAllPlans[j].ProductDisplayName)
	})

	// Truncation strictly follows the sort so Top always keeps the leading
	// products by display name.
	if opts.Top > 0 && len(result.ProductsWithAllPlans) > opts.Top {
		result.ProductsWithAllPlans = result.ProductsWithAllPlans[:opts.Top]
		result.Truncated = true
	}

	return result, nil
}
