package domain

import "time"

// PolicyState mirrors the directory's conditional access policy state values.
type PolicyState string

const (
	// PolicyStateEnabled indicates the policy is enforced.
	PolicyStateEnabled PolicyState = "enabled"
	// PolicyStateDisabled indicates the policy exists but is not applied.
	PolicyStateDisabled PolicyState = "disabled"
	// PolicyStateReportOnly indicates the policy is evaluated without enforcement.
	PolicyStateReportOnly PolicyState = "enabledForReportingButNotEnforced"
)

// Active reports whether the policy counts toward license requirements.
// Report-only policies are evaluated by the directory and therefore count.
func (s PolicyState) Active() bool {
	return s == PolicyStateEnabled || s == PolicyStateReportOnly
}

// ConditionalAccessPolicy is the slice of a tenant access-control policy the
// license analyzer inspects.
type ConditionalAccessPolicy struct {
	ID                     string
	DisplayName            string
	State                  PolicyState
	SignInRiskLevels       []string
	UserRiskLevels         []string
	AuthenticationContexts []string
	DeviceFilterRule       string
}

// PolicyFeatureUse records one premium feature a policy exercises and the
// service plan that licenses it.
type PolicyFeatureUse struct {
	Feature          string
	Detail           string
	RequiredPlanID   string
	RequiredPlanName string
}

// PolicyFinding is the analysis outcome for a single policy. Active mirrors
// State.Active: disabled policies are still analysed but their features do not
// count toward the summary demand.
type PolicyFinding struct {
	PolicyID   string
	PolicyName string
	State      PolicyState
	Active     bool
	Features   []PolicyFeatureUse
}

// PolicySummary aggregates the license demand across all analyzed policies.
// RequiredPlanIDs contains only plans demanded by active policies.
type PolicySummary struct {
	PoliciesProcessed        int
	PoliciesRequiringPremium int
	RequiredPlanIDs          []string
}

// PolicyReport is the full access-policy license analysis: per-policy
// findings, the aggregated plan demand, and optionally the products that
// would satisfy every required plan at once.
type PolicyReport struct {
	RunID            string
	GeneratedAt      time.Time
	Tenant           TenantContext
	Summary          PolicySummary
	Findings         []PolicyFinding
	ProductsForPlans []ProductMatch
}
