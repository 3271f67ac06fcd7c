package file

import (
	"context"
	"errors"
	"strings"

	"github.com/planscope/planscope/internal/catalog"
	"github.com/planscope/planscope/internal/domain"
	"github.com/planscope/planscope/internal/repositories"
)

// CatalogRepository reads catalog rows from a locally stored vendor CSV.
type CatalogRepository struct {
	path string
}

// NewCatalogRepository constructs a repository over the CSV at path.
func NewCatalogRepository(path string) (*CatalogRepository, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("catalog repository: path is required")
	}
	return &CatalogRepository{path: path}, nil
}

// Rows parses and returns the catalog rows. A missing file is reported as a
// not-found repository error.
func (r *CatalogRepository) Rows(ctx context.Context) ([]domain.CatalogRow, error) {
	if r == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	rows, err := catalog.ReadFile(r.path)
	if err != nil {
		return nil, WrapError("catalog.read", err)
	}
	return rows, nil
}

// SourcePath reports the catalog file location.
func (r *CatalogRepository) SourcePath() string {
	if r == nil {
		return ""
	}
	return r.path
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)
