package repositories

import (
	"context"
	"time"

	"github.com/planscope/planscope/internal/domain"
)

// RepositoryError wraps low-level persistence and transport failures with the
// categorisation services react to.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CatalogRepository reads normalized rows from the locally stored vendor
// catalog. A missing catalog file surfaces as a RepositoryError reporting
// IsNotFound so the provisioning chain can trigger a download.
type CatalogRepository interface {
	Rows(ctx context.Context) ([]domain.CatalogRow, error)
	SourcePath() string
}

// IndexRepository persists the built service plan index artifact. Load
// reports a missing artifact through RepositoryError.IsNotFound.
type IndexRepository interface {
	Save(ctx context.Context, index *domain.ServicePlanIndex) error
	Load(ctx context.Context) (*domain.ServicePlanIndex, error)
}

// DirectoryRepository exposes the live tenant directory: licensed users,
// subscribed SKUs, access-control policies, and the identity context the
// data was retrieved under.
type DirectoryRepository interface {
	ListLicensedUsers(ctx context.Context) ([]domain.DirectoryUser, error)
	ListSubscribedSKUs(ctx context.Context) ([]domain.SubscribedSKU, error)
	ListConditionalAccessPolicies(ctx context.Context) ([]domain.ConditionalAccessPolicy, error)
	TenantContext(ctx context.Context) (domain.TenantContext, error)
}

// ReportRepository serialises generated reports to caller-chosen paths.
type ReportRepository interface {
	SaveAssignmentReport(ctx context.Context, path string, report domain.AssignmentReport) error
	SavePolicyReport(ctx context.Context, path string, report domain.PolicyReport) error
	SaveQueryResult(ctx context.Context, path string, result domain.QueryResult) error
}

// HistoryRepository records classification runs for later inspection.
type HistoryRepository interface {
	Record(ctx context.Context, report domain.AssignmentReport) error
	ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int, error)
	Close() error
}
