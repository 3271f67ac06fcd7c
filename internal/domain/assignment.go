package domain

import "time"

// MatchingPlan is one service plan of an assignment that matched the query
// criteria. Enabled reports whether the plan is active for that particular
// assignment, i.e. not present in the assignment's disabled plan list.
type MatchingPlan struct {
	ServicePlanID   string
	ServicePlanName string
	Enabled         bool
}

// Assignment is one (user, SKU) license assignment that carried at least one
// matching service plan.
type Assignment struct {
	UserID                   string
	UserDisplayName          string
	UserPrincipalName        string
	SKUID                    string
	SKUPartNumber            string
	MatchingPlans            []MatchingPlan
	MatchingPlanCount        int
	EnabledMatchingPlanCount int
}

// ReportSummary carries the headline counts of a classification run.
type ReportSummary struct {
	UsersProcessed      int
	UsersMatched        int
	MatchingAssignments int
	UniqueSKUs          int
}

// AssignmentReport is the full result of a classification run: the criteria
// that selected the target plans, the summary counts, every matching
// assignment, and the tenant the data came from.
type AssignmentReport struct {
	RunID           string
	GeneratedAt     time.Time
	Criteria        QueryCriteria
	TargetPlanIDs   []string
	IncludeDisabled bool
	Summary         ReportSummary
	Assignments     []Assignment
	Tenant          TenantContext
}

// RunRecord is the condensed form of a past classification run kept in the
// local history store.
type RunRecord struct {
	RunID               string
	GeneratedAt         time.Time
	TenantID            string
	Criteria            QueryCriteria
	UsersProcessed      int
	UsersMatched        int
	MatchingAssignments int
}
