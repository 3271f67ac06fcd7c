package services

import (
	"context"
	"errors"
	"reflect"
	"testing"

	domain "github.com/planscope/planscope/internal/domain"
)

type stubProvisionService struct {
	ensureFn  func(context.Context) (*domain.ServicePlanIndex, error)
	rebuildFn func(context.Context) (*domain.ServicePlanIndex, error)
}

func (s *stubProvisionService) EnsureIndex(ctx context.Context) (*domain.ServicePlanIndex, error) {
	if s.ensureFn != nil {
		return s.ensureFn(ctx)
	}
	return nil, errors.New("ensure index not wired")
}

func (s *stubProvisionService) RebuildIndex(ctx context.Context) (*domain.ServicePlanIndex, error) {
	if s.rebuildFn != nil {
		return s.rebuildFn(ctx)
	}
	return nil, errors.New("rebuild index not wired")
}

func policyFixtures() []domain.ConditionalAccessPolicy {
	return []domain.ConditionalAccessPolicy{
		{
			ID:               "policy-1",
			DisplayName:      "Require MFA for risky sign-ins",
			State:            domain.PolicyStateEnabled,
			SignInRiskLevels: []string{"high", "medium"},
		},
		{
			ID:               "policy-2",
			DisplayName:      "Block unmanaged devices",
			State:            domain.PolicyStateDisabled,
			DeviceFilterRule: `device.isCompliant -ne True`,
		},
		{
			ID:                     "policy-3",
			DisplayName:            "Protect payroll actions",
			State:                  domain.PolicyStateReportOnly,
			AuthenticationContexts: []string{"c1"},
		},
	}
}

func TestPolicyServiceAnalyzePolicies(t *testing.T) {
	svc, err := NewPolicyService(PolicyServiceDeps{
		Directory:   &stubDirectoryRepository{},
		Clock:       fixedClock,
		IDGenerator: func() string { return "01HPOLICY" },
	})
	if err != nil {
		t.Fatalf("new policy service: %v", err)
	}

	report, err := svc.AnalyzePolicies(context.Background(), policyFixtures())
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if report.RunID != "pol_01hpolicy" {
		t.Fatalf("expected prefixed run id, got %q", report.RunID)
	}
	if !report.GeneratedAt.Equal(fixedClock()) {
		t.Fatalf("expected fixed timestamp, got %v", report.GeneratedAt)
	}
	if report.Summary.PoliciesProcessed != 3 {
		t.Fatalf("expected 3 policies processed, got %d", report.Summary.PoliciesProcessed)
	}
	// The disabled policy keeps its finding but contributes no demand.
	if report.Summary.PoliciesRequiringPremium != 2 {
		t.Fatalf("expected 2 premium policies, got %d", report.Summary.PoliciesRequiringPremium)
	}
	if !reflect.DeepEqual(report.Summary.RequiredPlanIDs, []string{PlanIDEntraP1, PlanIDEntraP2}) {
		t.Fatalf("expected P1 and P2 demand, got %v", report.Summary.RequiredPlanIDs)
	}

	if len(report.Findings) != 3 {
		t.Fatalf("expected 3 findings, got %v", report.Findings)
	}

	risky := report.Findings[0]
	if !risky.Active || len(risky.Features) != 2 {
		t.Fatalf("unexpected risky sign-in finding: %+v", risky)
	}
	if risky.Features[0].Feature != FeaturePolicyActive || risky.Features[0].RequiredPlanID != PlanIDEntraP1 {
		t.Fatalf("expected base feature first, got %+v", risky.Features[0])
	}
	if risky.Features[1].Feature != FeatureSignInRisk || risky.Features[1].RequiredPlanID != PlanIDEntraP2 {
		t.Fatalf("expected sign-in risk feature, got %+v", risky.Features[1])
	}
	if risky.Features[1].Detail != "high, medium" {
		t.Fatalf("expected risk levels in detail, got %q", risky.Features[1].Detail)
	}

	disabled := report.Findings[1]
	if disabled.Active {
		t.Fatalf("expected disabled policy inactive")
	}
	if len(disabled.Features) != 2 || disabled.Features[1].Feature != FeatureDeviceFilter {
		t.Fatalf("expected device filter feature on disabled policy, got %+v", disabled.Features)
	}

	reportOnly := report.Findings[2]
	if !reportOnly.Active || reportOnly.State != domain.PolicyStateReportOnly {
		t.Fatalf("expected report-only policy active, got %+v", reportOnly)
	}
	if len(reportOnly.Features) != 2 || reportOnly.Features[1].Feature != FeatureAuthContext {
		t.Fatalf("expected auth context feature, got %+v", reportOnly.Features)
	}
}

func TestPolicyServiceAnalyzePoliciesCustomRules(t *testing.T) {
	svc, err := NewPolicyService(PolicyServiceDeps{
		Directory: &stubDirectoryRepository{},
		Rules: PolicyRules{Rules: []PolicyRule{
			{Feature: FeaturePolicyActive, ServicePlanID: "custom-plan", ServicePlanName: "CUSTOM_PLAN"},
		}},
	})
	if err != nil {
		t.Fatalf("new policy service: %v", err)
	}

	report, err := svc.AnalyzePolicies(context.Background(), policyFixtures()[:1])
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	// Features without a rule in the table are not reported.
	finding := report.Findings[0]
	if len(finding.Features) != 1 {
		t.Fatalf("expected only the ruled feature, got %+v", finding.Features)
	}
	if finding.Features[0].RequiredPlanID != "custom-plan" {
		t.Fatalf("expected custom plan id, got %+v", finding.Features[0])
	}
	if !reflect.DeepEqual(report.Summary.RequiredPlanIDs, []string{"custom-plan"}) {
		t.Fatalf("expected custom demand, got %v", report.Summary.RequiredPlanIDs)
	}
}

func TestPolicyServiceBuildReportResolvesProducts(t *testing.T) {
	directory := &stubDirectoryRepository{
		policiesFn: func(context.Context) ([]domain.ConditionalAccessPolicy, error) {
			return policyFixtures()[:1], nil
		},
		tenantFn: func(context.Context) (domain.TenantContext, error) {
			return domain.TenantContext{TenantID: "tenant-123"}, nil
		},
	}

	index := domain.NewServicePlanIndex(domain.IndexSummary{TotalPlans: 2}, []domain.ServicePlanEntry{
		{
			ServicePlanID:    PlanIDEntraP1,
			ServicePlanNames: []string{PlanNameEntraP1},
			Products: []domain.ProductRef{
				{ProductDisplayName: "Microsoft Entra ID P2", StringID: "AAD_PREMIUM_P2"},
				{ProductDisplayName: "Microsoft 365 E5", StringID: "SPE_E5"},
			},
			ProductCount: 2,
		},
		{
			ServicePlanID:    PlanIDEntraP2,
			ServicePlanNames: []string{PlanNameEntraP2},
			Products: []domain.ProductRef{
				{ProductDisplayName: "Microsoft Entra ID P2", StringID: "AAD_PREMIUM_P2"},
				{ProductDisplayName: "Microsoft 365 E5", StringID: "SPE_E5"},
			},
			ProductCount: 2,
		},
	})

	svc, err := NewPolicyService(PolicyServiceDeps{
		Directory:   directory,
		Provisioner: &stubProvisionService{ensureFn: func(context.Context) (*domain.ServicePlanIndex, error) { return index, nil }},
		Query:       NewQueryService(),
	})
	if err != nil {
		t.Fatalf("new policy service: %v", err)
	}

	report, err := svc.BuildReport(context.Background())
	if err != nil {
		t.Fatalf("build report: %v", err)
	}

	if report.Tenant.TenantID != "tenant-123" {
		t.Fatalf("expected tenant context, got %+v", report.Tenant)
	}
	if !reflect.DeepEqual(report.Summary.RequiredPlanIDs, []string{PlanIDEntraP1, PlanIDEntraP2}) {
		t.Fatalf("expected both premium plans demanded, got %v", report.Summary.RequiredPlanIDs)
	}
	if len(report.ProductsForPlans) != 2 {
		t.Fatalf("expected products covering both plans, got %v", report.ProductsForPlans)
	}
	if report.ProductsForPlans[0].ProductDisplayName != "Microsoft 365 E5" {
		t.Fatalf("expected products sorted by name, got %q first", report.ProductsForPlans[0].ProductDisplayName)
	}
	if report.ProductsForPlans[0].MatchedPlanCount != 2 {
		t.Fatalf("expected full plan coverage, got %+v", report.ProductsForPlans[0])
	}
}

func TestPolicyServiceBuildReportLookupFailureIsNonFatal(t *testing.T) {
	directory := &stubDirectoryRepository{
		policiesFn: func(context.Context) ([]domain.ConditionalAccessPolicy, error) {
			return policyFixtures()[:1], nil
		},
	}

	var events []string
	svc, err := NewPolicyService(PolicyServiceDeps{
		Directory: directory,
		Provisioner: &stubProvisionService{ensureFn: func(context.Context) (*domain.ServicePlanIndex, error) {
			return nil, errors.New("catalog host unreachable")
		}},
		Query: NewQueryService(),
		Logger: func(_ context.Context, event string, _ map[string]any) {
			events = append(events, event)
		},
	})
	if err != nil {
		t.Fatalf("new policy service: %v", err)
	}

	report, err := svc.BuildReport(context.Background())
	if err != nil {
		t.Fatalf("expected report despite lookup failure, got %v", err)
	}
	if report.ProductsForPlans != nil {
		t.Fatalf("expected no product resolution, got %v", report.ProductsForPlans)
	}
	if !reflect.DeepEqual(events, []string{"policy.product_lookup_failed"}) {
		t.Fatalf("expected lookup failure logged, got %v", events)
	}
}

func TestPolicyServiceBuildReportSkipsLookupWithoutDemand(t *testing.T) {
	directory := &stubDirectoryRepository{
		policiesFn: func(context.Context) ([]domain.ConditionalAccessPolicy, error) {
			return nil, nil
		},
	}

	ensureCalls := 0
	svc, err := NewPolicyService(PolicyServiceDeps{
		Directory: directory,
		Provisioner: &stubProvisionService{ensureFn: func(context.Context) (*domain.ServicePlanIndex, error) {
			ensureCalls++
			return nil, nil
		}},
		Query: NewQueryService(),
	})
	if err != nil {
		t.Fatalf("new policy service: %v", err)
	}

	report, err := svc.BuildReport(context.Background())
	if err != nil {
		t.Fatalf("build report: %v", err)
	}
	if report.Summary.PoliciesProcessed != 0 || len(report.Summary.RequiredPlanIDs) != 0 {
		t.Fatalf("expected empty summary, got %+v", report.Summary)
	}
	if ensureCalls != 0 {
		t.Fatalf("expected no index lookup without demand, got %d calls", ensureCalls)
	}
}

func TestNewPolicyServiceRequiresDirectory(t *testing.T) {
	if _, err := NewPolicyService(PolicyServiceDeps{}); err == nil {
		t.Fatalf("expected constructor error without directory")
	}
}
