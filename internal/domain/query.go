package domain

// QueryCriteria carries the caller-supplied selectors for a service plan
// query. Exact ids are compared case-insensitively; name patterns use shell
// style wildcards (* and ?); name regexes are evaluated case-insensitively
// against every known plan name.
type QueryCriteria struct {
	ExactIDs     []string
	NamePatterns []string
	NameRegexes  []string
}

// Empty reports whether no selector of any kind was supplied.
func (c QueryCriteria) Empty() bool {
	return len(c.ExactIDs) == 0 && len(c.NamePatterns) == 0 && len(c.NameRegexes) == 0
}

// ProductMatch is one product that satisfied the full intersection criteria.
// Identifier sets are deduplicated and sorted; MatchedPlanIDs lists the target
// ids the product was found under.
type ProductMatch struct {
	ProductDisplayName string
	StringIDs          []string
	SKUGUIDs           []string
	MatchedPlanIDs     []string
	MatchedPlanCount   int
	RequiredPlanCount  int
}

// PlanProducts lists the products of a single matched service plan entry,
// independent of the intersection outcome.
type PlanProducts struct {
	ServicePlanID    string
	ServicePlanNames []string
	ProductNames     []string
}

// QueryResult is the outcome of an intersection query. ProductsWithAllPlans
// contains only products whose matched plan set covers every requested target
// id; PerPlanProducts reports each matched plan's own product listing.
type QueryResult struct {
	CriteriaPlanIDs      []string
	RequiredPlanCount    int
	ProductsWithAllPlans []ProductMatch
	PerPlanProducts      []PlanProducts
	Truncated            bool
}
