package services

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/planscope/planscope/internal/domain"
	"github.com/planscope/planscope/internal/repositories"
)

var (
	errProvisionCatalogRequired = errors.New("provision: catalog repository is required")
	errProvisionIndexRequired   = errors.New("provision: index repository is required")
	errProvisionFetcherRequired = errors.New("provision: catalog fetcher is required")
	errProvisionBuilderRequired = errors.New("provision: index builder is required")
)

// ErrCatalogDownloadFailed indicates the vendor catalog could not be fetched.
var ErrCatalogDownloadFailed = errors.New("provision service: catalog download failed")

// ErrIndexBuildFailed indicates the index could not be built or persisted from
// the local catalog.
var ErrIndexBuildFailed = errors.New("provision service: index build failed")

// ProvisionServiceDeps wires the artifact stores, the catalog fetcher, and the
// index builder for provisioning.
type ProvisionServiceDeps struct {
	Catalog repositories.CatalogRepository
	Index   repositories.IndexRepository
	Fetcher CatalogFetcher
	Builder IndexService
	Logger  func(context.Context, string, map[string]any)
}

type provisionService struct {
	catalog repositories.CatalogRepository
	index   repositories.IndexRepository
	fetcher CatalogFetcher
	builder IndexService
	logger  func(context.Context, string, map[string]any)
}

// NewProvisionService constructs a ProvisionService with the provided dependencies.
func NewProvisionService(deps ProvisionServiceDeps) (ProvisionService, error) {
	if deps.Catalog == nil {
		return nil, errProvisionCatalogRequired
	}
	if deps.Index == nil {
		return nil, errProvisionIndexRequired
	}
	if deps.Fetcher == nil {
		return nil, errProvisionFetcherRequired
	}
	if deps.Builder == nil {
		return nil, errProvisionBuilderRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &provisionService{
		catalog: deps.Catalog,
		index:   deps.Index,
		fetcher: deps.Fetcher,
		builder: deps.Builder,
		logger:  logger,
	}, nil
}

// EnsureIndex loads the persisted index, rebuilding it from the catalog when
// the artifact is missing.
func (s *provisionService) EnsureIndex(ctx context.Context) (*domain.ServicePlanIndex, error) {
	if s == nil {
		return nil, errProvisionIndexRequired
	}

	index, err := s.index.Load(ctx)
	if err == nil {
		return index, nil
	}
	if !isRepoNotFound(err) {
		return nil, fmt.Errorf("provision service: load index: %w", err)
	}

	s.logger(ctx, "provision.index_missing", map[string]any{})
	return s.RebuildIndex(ctx)
}

// RebuildIndex builds the index from the local catalog and persists it,
// downloading the catalog first when the file is missing.
func (s *provisionService) RebuildIndex(ctx context.Context) (*domain.ServicePlanIndex, error) {
	if s == nil {
		return nil, errProvisionIndexRequired
	}

	rows, err := s.catalog.Rows(ctx)
	if isRepoNotFound(err) {
		s.logger(ctx, "provision.catalog_missing", map[string]any{
			"url": s.fetcher.SourceURL(),
		})
		if err := s.fetcher.Download(ctx, s.catalog.SourcePath()); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCatalogDownloadFailed, err)
		}
		rows, err = s.catalog.Rows(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexBuildFailed, err)
	}

	index, err := s.builder.BuildIndex(ctx, BuildIndexCommand{
		Rows:       rows,
		SourceFile: s.catalog.SourcePath(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexBuildFailed, err)
	}

	if err := s.index.Save(ctx, index); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexBuildFailed, err)
	}

	s.logger(ctx, "provision.index_rebuilt", map[string]any{
		"plans": index.Summary.TotalPlans,
		"rows":  index.Summary.RowsProcessed,
	})

	return index, nil
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}
