package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile         = ".env"
	defaultCatalogURL      = "https://download.microsoft.com/download/e/3/e/e3e9faf2-f28b-490a-9ada-c6089a1fc5b0/Product%20names%20and%20service%20plan%20identifiers%20for%20licensing.csv"
	defaultCatalogPath     = "data/licensing-catalog.csv"
	defaultIndexPath       = "data/serviceplan-index.json"
	defaultReportsDir      = "reports"
	defaultDownloadTimeout = 60 * time.Second
	defaultGraphScope      = "https://graph.microsoft.com/.default"
	defaultGraphPageSize   = 999
	defaultGraphRPS        = 15
	defaultGraphBurst      = 1
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Paths   PathsConfig
	Catalog CatalogConfig
	Graph   GraphConfig
	Policy  PolicyConfig
	Logging LoggingConfig
}

// PathsConfig locates the local artifacts the toolkit reads and writes.
type PathsConfig struct {
	CatalogPath string
	IndexPath   string
	ReportsDir  string
	HistoryDB   string
}

// CatalogConfig describes where the vendor licensing catalog is fetched from.
type CatalogConfig struct {
	SourceURL       string
	DownloadTimeout time.Duration
}

// GraphConfig holds directory service credentials and paging behaviour.
// When ClientSecret is empty the toolkit falls back to the local azure CLI
// credential.
type GraphConfig struct {
	TenantID          string
	ClientID          string
	ClientSecret      string
	Scopes            []string
	PageSize          int
	RequestsPerSecond int
	Burst             int
}

// PolicyConfig points at an optional rules file overriding the built-in
// feature-to-plan licensing table.
type PolicyConfig struct {
	RulesFile string
}

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	Level  string
	Format string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// EnvironmentValues returns the effective key/value environment map after applying the same
// precedence rules as Load (dotenv < OS env < explicit env map). Callers can use the result to
// initialise dependencies, such as the logger, before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	merge := func(source map[string]string) {
		for key, value := range source {
			values[key] = value
		}
	}

	merge(dotEnvValues)

	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			if key == "" {
				continue
			}
			values[key] = parts[1]
		}
	}

	merge(options.envMap)

	return values, nil
}

// Load assembles the toolkit configuration by combining defaults, .env overrides,
// and environment variables.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Paths: PathsConfig{
			CatalogPath: stringWithDefault(lookup, "PLANSCOPE_CATALOG_PATH", defaultCatalogPath),
			IndexPath:   stringWithDefault(lookup, "PLANSCOPE_INDEX_PATH", defaultIndexPath),
			ReportsDir:  stringWithDefault(lookup, "PLANSCOPE_REPORTS_DIR", defaultReportsDir),
			HistoryDB:   stringWithDefault(lookup, "PLANSCOPE_HISTORY_DB", ""),
		},
		Catalog: CatalogConfig{
			SourceURL:       stringWithDefault(lookup, "PLANSCOPE_CATALOG_URL", defaultCatalogURL),
			DownloadTimeout: durationWithDefault(lookup, "PLANSCOPE_DOWNLOAD_TIMEOUT", defaultDownloadTimeout),
		},
		Graph: GraphConfig{
			TenantID:          stringWithDefault(lookup, "PLANSCOPE_GRAPH_TENANT_ID", ""),
			ClientID:          stringWithDefault(lookup, "PLANSCOPE_GRAPH_CLIENT_ID", ""),
			ClientSecret:      stringWithDefault(lookup, "PLANSCOPE_GRAPH_CLIENT_SECRET", ""),
			Scopes:            csvWithDefault(lookup, "PLANSCOPE_GRAPH_SCOPES"),
			PageSize:          intWithDefault(lookup, "PLANSCOPE_GRAPH_PAGE_SIZE", defaultGraphPageSize),
			RequestsPerSecond: intWithDefault(lookup, "PLANSCOPE_GRAPH_RPS", defaultGraphRPS),
			Burst:             intWithDefault(lookup, "PLANSCOPE_GRAPH_BURST", defaultGraphBurst),
		},
		Policy: PolicyConfig{
			RulesFile: stringWithDefault(lookup, "PLANSCOPE_POLICY_RULES_FILE", ""),
		},
		Logging: LoggingConfig{
			Level:  stringWithDefault(lookup, "PLANSCOPE_LOG_LEVEL", defaultLogLevel),
			Format: strings.ToLower(stringWithDefault(lookup, "PLANSCOPE_LOG_FORMAT", defaultLogFormat)),
		},
	}

	if len(cfg.Graph.Scopes) == 0 {
		cfg.Graph.Scopes = []string{defaultGraphScope}
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if strings.TrimSpace(cfg.Paths.CatalogPath) == "" {
		missing = append(missing, "Paths.CatalogPath")
	}
	if strings.TrimSpace(cfg.Paths.IndexPath) == "" {
		missing = append(missing, "Paths.IndexPath")
	}
	if strings.TrimSpace(cfg.Catalog.SourceURL) == "" {
		missing = append(missing, "Catalog.SourceURL")
	}
	if cfg.Catalog.DownloadTimeout <= 0 {
		missing = append(missing, "Catalog.DownloadTimeout")
	}
	if cfg.Graph.PageSize < 1 || cfg.Graph.PageSize > 999 {
		missing = append(missing, "Graph.PageSize")
	}
	if cfg.Graph.RequestsPerSecond <= 0 {
		missing = append(missing, "Graph.RequestsPerSecond")
	}
	if cfg.Graph.Burst <= 0 {
		missing = append(missing, "Graph.Burst")
	}
	// A client secret is only usable with the tenant and client it belongs to.
	if cfg.Graph.ClientSecret != "" && (cfg.Graph.TenantID == "" || cfg.Graph.ClientID == "") {
		missing = append(missing, "Graph.TenantID", "Graph.ClientID")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	values, err := godotenv.Read(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
