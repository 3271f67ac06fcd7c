package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/planscope/planscope/internal/catalog"
	"github.com/planscope/planscope/internal/domain"
	"github.com/planscope/planscope/internal/platform/config"
	"github.com/planscope/planscope/internal/platform/observability"
	"github.com/planscope/planscope/internal/repositories/file"
	"github.com/planscope/planscope/internal/repositories/msgraph"
	"github.com/planscope/planscope/internal/repositories/sqlite"
	"github.com/planscope/planscope/internal/services"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

const exitUsage = 2

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitUsage)
	}

	switch os.Args[1] {
	case "download":
		runDownload(os.Args[2:])
	case "build-index":
		runBuildIndex(os.Args[2:])
	case "query":
		runQuery(os.Args[2:])
	case "classify":
		runClassify(os.Args[2:])
	case "policy-report":
		runPolicyReport(os.Args[2:])
	case "history":
		runHistory(os.Args[2:])
	case "version":
		fmt.Println("planscope " + version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fatalf("unknown subcommand: %s", os.Args[1])
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `usage: planscope <command> [flags]

commands:
  download       fetch the vendor licensing catalog CSV
  build-index    rebuild the service plan index from the local catalog
  query          list products that contain every target service plan
  classify       match live tenant license assignments against target plans
  policy-report  analyze conditional access policies for premium license demand
  history        list or prune recorded classification runs
  version        print the toolkit version

run "planscope <command> -h" for the flags of a command.
`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func usagef(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(exitUsage)
}

// toolkit bundles the loaded configuration and logger every subcommand needs.
type toolkit struct {
	cfg    config.Config
	logger *zap.Logger
}

// newToolkit loads the environment, builds the logger from the raw logging
// values, and validates the full configuration. The logger must exist before
// config validation so load failures are reported through it.
func newToolkit(ctx context.Context) *toolkit {
	env, err := config.EnvironmentValues()
	if err != nil {
		fatal(err)
	}

	baseLogger, err := observability.NewLogger(env["PLANSCOPE_LOG_LEVEL"], env["PLANSCOPE_LOG_FORMAT"])
	if err != nil {
		fatal(err)
	}
	logger := baseLogger.Named("cli")

	cfg, err := config.Load(ctx)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	return &toolkit{cfg: cfg, logger: logger}
}

func (t *toolkit) close() {
	_ = t.logger.Sync()
}

// serviceLogHook adapts the structured logger to the plain logging hook the
// services accept.
func (t *toolkit) serviceLogHook() func(context.Context, string, map[string]any) {
	serviceLogger := t.logger.Named("services")
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		serviceLogger.Debug("service event", zFields...)
	}
}

func (t *toolkit) catalogFetcher(url string) *catalog.Fetcher {
	client := &http.Client{Timeout: t.cfg.Catalog.DownloadTimeout}
	return catalog.NewFetcher(client, url, t.logger)
}

func (t *toolkit) provisionService() services.ProvisionService {
	catalogRepo, err := file.NewCatalogRepository(t.cfg.Paths.CatalogPath)
	if err != nil {
		t.logger.Fatal("failed to initialise catalog repository", zap.Error(err))
	}
	indexRepo, err := file.NewIndexRepository(t.cfg.Paths.IndexPath)
	if err != nil {
		t.logger.Fatal("failed to initialise index repository", zap.Error(err))
	}
	builder, err := services.NewIndexService(services.IndexServiceDeps{})
	if err != nil {
		t.logger.Fatal("failed to initialise index service", zap.Error(err))
	}
	svc, err := services.NewProvisionService(services.ProvisionServiceDeps{
		Catalog: catalogRepo,
		Index:   indexRepo,
		Fetcher: t.catalogFetcher(t.cfg.Catalog.SourceURL),
		Builder: builder,
		Logger:  t.serviceLogHook(),
	})
	if err != nil {
		t.logger.Fatal("failed to initialise provision service", zap.Error(err))
	}
	return svc
}

func (t *toolkit) directoryRepository() *msgraph.DirectoryRepository {
	repo, err := msgraph.NewDirectoryRepository(msgraph.Options{
		TenantID:          t.cfg.Graph.TenantID,
		ClientID:          t.cfg.Graph.ClientID,
		ClientSecret:      t.cfg.Graph.ClientSecret,
		Scopes:            t.cfg.Graph.Scopes,
		PageSize:          t.cfg.Graph.PageSize,
		RequestsPerSecond: float64(t.cfg.Graph.RequestsPerSecond),
		Burst:             t.cfg.Graph.Burst,
		Logger:            t.logger,
	})
	if err != nil {
		t.logger.Fatal("failed to initialise graph directory", zap.Error(err))
	}
	return repo
}

// historyRepository opens the run history store, or returns nil when no
// database path is configured.
func (t *toolkit) historyRepository(ctx context.Context) *sqlite.HistoryRepository {
	if t.cfg.Paths.HistoryDB == "" {
		return nil
	}
	repo, err := sqlite.Open(ctx, t.cfg.Paths.HistoryDB)
	if err != nil {
		t.logger.Fatal("failed to open history store", zap.Error(err))
	}
	return repo
}

// stringList collects repeatable flag values verbatim.
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ", ")
}

func (l *stringList) Set(value string) error {
	value = strings.TrimSpace(value)
	if value != "" {
		*l = append(*l, value)
	}
	return nil
}

// csvList collects repeatable flag values and additionally splits each value
// on commas, for identifiers that never contain one.
type csvList []string

func (l *csvList) String() string {
	return strings.Join(*l, ", ")
}

func (l *csvList) Set(value string) error {
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

// criteriaFlags registers the shared plan selection flags of query and
// classify. Regexes stay unsplit because a comma can be part of the pattern.
type criteriaFlags struct {
	ids     csvList
	names   stringList
	regexes stringList
}

func (f *criteriaFlags) register(fs *flag.FlagSet) {
	fs.Var(&f.ids, "id", "exact service plan id to require (repeatable, comma separated)")
	fs.Var(&f.names, "name", "service plan name wildcard, * and ? supported (repeatable)")
	fs.Var(&f.regexes, "regex", "service plan name regular expression (repeatable)")
}

func (f *criteriaFlags) criteria() domain.QueryCriteria {
	return domain.QueryCriteria{
		ExactIDs:     f.ids,
		NamePatterns: f.names,
		NameRegexes:  f.regexes,
	}
}

func runDownload(args []string) {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url, dest string
	fs.StringVar(&url, "url", "", "catalog source url (defaults to PLANSCOPE_CATALOG_URL)")
	fs.StringVar(&dest, "out", "", "destination path (defaults to PLANSCOPE_CATALOG_PATH)")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	ctx := context.Background()
	t := newToolkit(ctx)
	defer t.close()

	if url == "" {
		url = t.cfg.Catalog.SourceURL
	}
	if dest == "" {
		dest = t.cfg.Paths.CatalogPath
	}

	if err := t.catalogFetcher(url).Download(ctx, dest); err != nil {
		fatal(err)
	}
	fmt.Printf("catalog downloaded to %s\n", dest)
}

func runBuildIndex(args []string) {
	fs := flag.NewFlagSet("build-index", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	ctx := context.Background()
	t := newToolkit(ctx)
	defer t.close()

	index, err := t.provisionService().RebuildIndex(ctx)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("index written to %s\n", t.cfg.Paths.IndexPath)
	printIndexSummary(index.Summary)
}

func printIndexSummary(summary domain.IndexSummary) {
	fmt.Printf("source %s: %d rows processed, %d skipped, %d service plans\n",
		summary.SourceFile, summary.RowsProcessed, summary.RowsSkipped, summary.TotalPlans)
	if len(summary.TopPlans) == 0 {
		return
	}
	fmt.Println("most common plans:")
	for _, plan := range summary.TopPlans {
		fmt.Printf("  %-40s %4d products  %s\n",
			plan.ServicePlanID, plan.ProductCount,
			observability.SanitizeDisplayValue(strings.Join(plan.PlanNames, ", ")))
	}
}

func runQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var crit criteriaFlags
	crit.register(fs)
	var top int
	fs.IntVar(&top, "top", 0, "keep only the first N products after sorting")
	var showSummary bool
	fs.BoolVar(&showSummary, "summary", false, "also print the index summary block")
	var out string
	fs.StringVar(&out, "out", "", "write the result as JSON to this path")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	ctx := context.Background()
	t := newToolkit(ctx)
	defer t.close()

	index, err := t.provisionService().EnsureIndex(ctx)
	if err != nil {
		fatal(err)
	}

	querySvc := services.NewQueryService()
	targets, err := querySvc.ResolveTargetIDs(ctx, index, crit.criteria())
	if err != nil {
		if errors.Is(err, services.ErrNoCriteria) {
			usagef("query: supply at least one -id, -name, or -regex")
		}
		fatal(err)
	}

	result, err := querySvc.Query(ctx, index, targets, services.QueryOptions{Top: top})
	if err != nil {
		fatal(err)
	}

	if showSummary {
		printIndexSummary(index.Summary)
	}
	printQueryResult(result)
	if out != "" {
		if err := file.NewReportRepository().SaveQueryResult(ctx, out, result); err != nil {
			fatal(err)
		}
		fmt.Printf("result written to %s\n", out)
	}
}

func printQueryResult(result domain.QueryResult) {
	if result.RequiredPlanCount == 0 {
		fmt.Println("criteria matched no service plans")
		return
	}
	fmt.Printf("required plans (%d): %s\n",
		result.RequiredPlanCount, strings.Join(result.CriteriaPlanIDs, ", "))

	for _, plan := range result.PerPlanProducts {
		fmt.Printf("plan %s (%s): %d products\n",
			plan.ServicePlanID,
			observability.SanitizeDisplayValue(strings.Join(plan.ServicePlanNames, ", ")),
			len(plan.ProductNames))
	}

	if len(result.ProductsWithAllPlans) == 0 {
		fmt.Println("no product contains every required plan")
		return
	}
	fmt.Printf("products with all %d plans:\n", result.RequiredPlanCount)
	for _, product := range result.ProductsWithAllPlans {
		fmt.Printf("  %s  [%s]\n",
			observability.SanitizeDisplayValue(product.ProductDisplayName),
			strings.Join(product.StringIDs, ", "))
	}
	if result.Truncated {
		fmt.Println("  (list truncated, raise -top to see more)")
	}
}

func runClassify(args []string) {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var crit criteriaFlags
	crit.register(fs)
	var includeDisabled bool
	fs.BoolVar(&includeDisabled, "include-disabled", false, "keep matches whose plan is disabled on the license")
	var out string
	fs.StringVar(&out, "out", "", "report path (defaults to the reports directory)")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	ctx := context.Background()
	t := newToolkit(ctx)
	defer t.close()

	index, err := t.provisionService().EnsureIndex(ctx)
	if err != nil {
		fatal(err)
	}

	querySvc := services.NewQueryService()
	targets, err := querySvc.ResolveTargetIDs(ctx, index, crit.criteria())
	if err != nil {
		if errors.Is(err, services.ErrNoCriteria) {
			usagef("classify: supply at least one -id, -name, or -regex")
		}
		fatal(err)
	}
	if len(targets) == 0 {
		usagef("classify: criteria matched no service plans")
	}

	history := t.historyRepository(ctx)
	if history != nil {
		defer history.Close()
	}

	deps := services.ClassifierServiceDeps{
		Directory: t.directoryRepository(),
		Logger:    t.serviceLogHook(),
	}
	if history != nil {
		deps.History = history
	}
	classifier, err := services.NewClassifierService(deps)
	if err != nil {
		t.logger.Fatal("failed to initialise classifier service", zap.Error(err))
	}

	report, err := classifier.BuildReport(ctx, services.BuildReportCommand{
		Criteria:        crit.criteria(),
		TargetPlanIDs:   targets,
		IncludeDisabled: includeDisabled,
	})
	if err != nil {
		fatal(err)
	}

	if out == "" {
		out = filepath.Join(t.cfg.Paths.ReportsDir, report.RunID+"-assignments.json")
	}
	if err := file.NewReportRepository().SaveAssignmentReport(ctx, out, report); err != nil {
		fatal(err)
	}

	fmt.Printf("run %s: %d of %d users matched, %d assignments across %d skus\n",
		report.RunID, report.Summary.UsersMatched, report.Summary.UsersProcessed,
		report.Summary.MatchingAssignments, report.Summary.UniqueSKUs)
	printAssignmentPreview(report.Assignments)
	fmt.Printf("report written to %s\n", out)
}

// printAssignmentPreview shows the first matched assignments so the common
// case needs no second look at the report file.
func printAssignmentPreview(assignments []domain.Assignment) {
	const maxPreview = 10
	preview := assignments
	if len(preview) > maxPreview {
		preview = preview[:maxPreview]
	}
	for _, assignment := range preview {
		fmt.Printf("  %s  %s  %s (%d/%d matched plans enabled)\n",
			observability.SanitizePrincipal(assignment.UserPrincipalName),
			observability.SanitizeDisplayValue(assignment.UserDisplayName),
			assignment.SKUPartNumber,
			assignment.EnabledMatchingPlanCount, assignment.MatchingPlanCount)
	}
	if len(assignments) > maxPreview {
		fmt.Printf("  ... and %d more in the report\n", len(assignments)-maxPreview)
	}
}

func runPolicyReport(args []string) {
	fs := flag.NewFlagSet("policy-report", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var rulesPath, out string
	fs.StringVar(&rulesPath, "rules", "", "feature rules YAML (defaults to PLANSCOPE_POLICY_RULES_FILE)")
	fs.StringVar(&out, "out", "", "report path (defaults to the reports directory)")
	var resolveProducts bool
	fs.BoolVar(&resolveProducts, "products", false, "resolve the products covering every required plan")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	ctx := context.Background()
	t := newToolkit(ctx)
	defer t.close()

	if rulesPath == "" {
		rulesPath = t.cfg.Policy.RulesFile
	}
	rules, err := services.LoadPolicyRules(rulesPath)
	if err != nil {
		fatal(err)
	}

	deps := services.PolicyServiceDeps{
		Directory: t.directoryRepository(),
		Rules:     rules,
		Logger:    t.serviceLogHook(),
	}
	// Product resolution pulls in the catalog index, so the index is only
	// provisioned when asked for.
	if resolveProducts {
		deps.Provisioner = t.provisionService()
		deps.Query = services.NewQueryService()
	}
	policySvc, err := services.NewPolicyService(deps)
	if err != nil {
		t.logger.Fatal("failed to initialise policy service", zap.Error(err))
	}

	report, err := policySvc.BuildReport(ctx)
	if err != nil {
		fatal(err)
	}

	if out == "" {
		out = filepath.Join(t.cfg.Paths.ReportsDir, report.RunID+"-policies.json")
	}
	if err := file.NewReportRepository().SavePolicyReport(ctx, out, report); err != nil {
		fatal(err)
	}

	fmt.Printf("run %s: %d of %d policies require a premium plan\n",
		report.RunID, report.Summary.PoliciesRequiringPremium, report.Summary.PoliciesProcessed)
	if len(report.Summary.RequiredPlanIDs) > 0 {
		fmt.Printf("required plans: %s\n", strings.Join(report.Summary.RequiredPlanIDs, ", "))
	}
	for _, product := range report.ProductsForPlans {
		fmt.Printf("  covered by %s  [%s]\n",
			observability.SanitizeDisplayValue(product.ProductDisplayName),
			strings.Join(product.StringIDs, ", "))
	}
	fmt.Printf("report written to %s\n", out)
}

func runHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var limit int
	fs.IntVar(&limit, "limit", 20, "number of runs to list, most recent first")
	var prune time.Duration
	fs.DurationVar(&prune, "prune", 0, "delete runs older than this age instead of listing")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	ctx := context.Background()
	t := newToolkit(ctx)
	defer t.close()

	if t.cfg.Paths.HistoryDB == "" {
		fatalf("history store not configured, set PLANSCOPE_HISTORY_DB")
	}
	history := t.historyRepository(ctx)
	defer history.Close()

	if prune > 0 {
		cutoff := time.Now().UTC().Add(-prune)
		deleted, err := history.PruneBefore(ctx, cutoff)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("pruned %d runs recorded before %s\n", deleted, cutoff.Format(time.RFC3339))
		return
	}

	runs, err := history.ListRuns(ctx, limit)
	if err != nil {
		fatal(err)
	}
	if len(runs) == 0 {
		fmt.Println("no recorded runs")
		return
	}
	for _, run := range runs {
		fmt.Printf("%s  %s  tenant=%s  matched %d/%d users, %d assignments\n",
			run.RunID, run.GeneratedAt.Format(time.RFC3339), run.TenantID,
			run.UsersMatched, run.UsersProcessed, run.MatchingAssignments)
	}
}
