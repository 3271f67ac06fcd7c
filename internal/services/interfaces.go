package services

import (
	"context"

	domain "github.com/planscope/planscope/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	CatalogRow              = domain.CatalogRow
	ServicePlanIndex        = domain.ServicePlanIndex
	ServicePlanEntry        = domain.ServicePlanEntry
	IndexSummary            = domain.IndexSummary
	PlanCount               = domain.PlanCount
	ProductRef              = domain.ProductRef
	QueryCriteria           = domain.QueryCriteria
	QueryResult             = domain.QueryResult
	ProductMatch            = domain.ProductMatch
	PlanProducts            = domain.PlanProducts
	DirectoryUser           = domain.DirectoryUser
	AssignedLicense         = domain.AssignedLicense
	SubscribedSKU           = domain.SubscribedSKU
	SKUServicePlan          = domain.SKUServicePlan
	TenantContext           = domain.TenantContext
	Assignment              = domain.Assignment
	MatchingPlan            = domain.MatchingPlan
	ReportSummary           = domain.ReportSummary
	AssignmentReport        = domain.AssignmentReport
	RunRecord               = domain.RunRecord
	ConditionalAccessPolicy = domain.ConditionalAccessPolicy
	PolicyState             = domain.PolicyState
	PolicyFinding           = domain.PolicyFinding
	PolicyFeatureUse        = domain.PolicyFeatureUse
	PolicySummary           = domain.PolicySummary
	PolicyReport            = domain.PolicyReport
)

// IndexService transforms normalized catalog rows into the service plan index.
type IndexService interface {
	BuildIndex(ctx context.Context, cmd BuildIndexCommand) (*ServicePlanIndex, error)
}

// QueryService resolves caller criteria into target plan ids and computes
// which products satisfy all of them at once.
type QueryService interface {
	ResolveTargetIDs(ctx context.Context, index *ServicePlanIndex, criteria QueryCriteria) ([]string, error)
	Query(ctx context.Context, index *ServicePlanIndex, targetIDs []string, opts QueryOptions) (QueryResult, error)
}

// ClassifierService cross references live tenant license assignments with the
// target service plans.
type ClassifierService interface {
	ClassifyAssignments(ctx context.Context, cmd ClassifyCommand) ([]Assignment, error)
	BuildReport(ctx context.Context, cmd BuildReportCommand) (AssignmentReport, error)
}

// PolicyService inspects conditional access policies for features that demand
// a premium directory license tier.
type PolicyService interface {
	AnalyzePolicies(ctx context.Context, policies []ConditionalAccessPolicy) (PolicyReport, error)
	BuildReport(ctx context.Context) (PolicyReport, error)
}

// ProvisionService keeps the local catalog and index artifacts available,
// downloading and rebuilding them when missing.
type ProvisionService interface {
	EnsureIndex(ctx context.Context) (*ServicePlanIndex, error)
	RebuildIndex(ctx context.Context) (*ServicePlanIndex, error)
}

// CatalogFetcher downloads the vendor catalog to a local path.
type CatalogFetcher interface {
	Download(ctx context.Context, destPath string) error
	SourceURL() string
}

// BuildIndexCommand carries the rows to index and the catalog file they came
// from. SourceFile is recorded in the artifact summary only.
type BuildIndexCommand struct {
	Rows       []CatalogRow
	SourceFile string
}

// QueryOptions tunes a single intersection query. Top truncates the sorted
// product list when positive.
type QueryOptions struct {
	Top int
}

// ClassifyCommand carries the externally fetched tenant data and the resolved
// target plan ids for one classification pass.
type ClassifyCommand struct {
	Users           []DirectoryUser
	SubscribedSKUs  []SubscribedSKU
	TargetPlanIDs   []string
	IncludeDisabled bool
}

// BuildReportCommand describes one classification run against the live
// directory. Criteria is echoed into the report verbatim.
type BuildReportCommand struct {
	Criteria        QueryCriteria
	TargetPlanIDs   []string
	IncludeDisabled bool
}
