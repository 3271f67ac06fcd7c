package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/planscope/planscope/internal/platform/fsx"
)

// Fetcher downloads the vendor catalog file over HTTP.
type Fetcher struct {
	client *http.Client
	url    string
	logger *zap.Logger
}

// NewFetcher builds a fetcher for the given source URL. A nil client falls
// back to a default http.Client; timeouts are the caller's responsibility via
// the request context or the supplied client.
func NewFetcher(client *http.Client, url string, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: client, url: url, logger: logger.Named("catalog")}
}

// SourceURL reports the URL the fetcher downloads from.
func (f *Fetcher) SourceURL() string {
	return f.url
}

// Download fetches the catalog CSV and writes it to destPath through an
// atomic replace, so a failed download never clobbers an existing catalog.
func (f *Fetcher) Download(ctx context.Context, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return fmt.Errorf("catalog: build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("catalog: download %s: %w", f.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog: download %s: unexpected status %s", f.url, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("catalog: read response: %w", err)
	}

	if err := fsx.WriteFileAtomic(destPath, data, 0o644); err != nil {
		return fmt.Errorf("catalog: save %s: %w", destPath, err)
	}

	f.logger.Info("catalog downloaded",
		zap.String("url", f.url),
		zap.String("path", destPath),
		zap.Int("bytes", len(data)))
	return nil
}
