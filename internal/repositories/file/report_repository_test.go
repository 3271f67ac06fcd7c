package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/planscope/planscope/internal/domain"
)

func TestReportRepositorySaveAssignmentReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "run.json")
	report := domain.AssignmentReport{
		RunID:       "run_01htest",
		GeneratedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Criteria: domain.QueryCriteria{
			ExactIDs:     []string{"efb87545-963c-4e0d-99df-69c6916d9eb0"},
			NamePatterns: []string{"EXCHANGE*"},
		},
		TargetPlanIDs:   []string{"efb87545-963c-4e0d-99df-69c6916d9eb0"},
		IncludeDisabled: true,
		Summary: domain.ReportSummary{
			UsersProcessed:      3,
			UsersMatched:        1,
			MatchingAssignments: 1,
			UniqueSKUs:          1,
		},
		Assignments: []domain.Assignment{
			{
				UserID:            "user-1",
				UserDisplayName:   "Avery Chen",
				UserPrincipalName: "avery@contoso.example",
				SKUID:             "6fd2c87f-b296-42f0-b197-1e91e994b900",
				SKUPartNumber:     "ENTERPRISEPACK",
				MatchingPlans: []domain.MatchingPlan{
					{ServicePlanID: "efb87545-963c-4e0d-99df-69c6916d9eb0", ServicePlanName: "EXCHANGE_S_ENTERPRISE", Enabled: true},
				},
				MatchingPlanCount:        1,
				EnabledMatchingPlanCount: 1,
			},
		},
		Tenant: domain.TenantContext{TenantID: "tenant-123", Caller: "app-client", RetrievedAt: time.Date(2026, 3, 1, 9, 59, 0, 0, time.UTC)},
	}

	repo := NewReportRepository()
	if err := repo.SaveAssignmentReport(context.Background(), path, report); err != nil {
		t.Fatalf("SaveAssignmentReport returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var doc struct {
		RunID    string `json:"runId"`
		Criteria struct {
			ExactIDs     []string `json:"exactIds"`
			NamePatterns []string `json:"namePatterns"`
		} `json:"criteria"`
		IncludeDisabled bool `json:"includeDisabled"`
		Summary         struct {
			UsersProcessed int `json:"usersProcessed"`
			UsersMatched   int `json:"usersMatched"`
		} `json:"summary"`
		Assignments []struct {
			UserPrincipalName string `json:"userPrincipalName"`
			SKUPartNumber     string `json:"skuPartNumber"`
			MatchingPlans     []struct {
				ServicePlanName string `json:"servicePlanName"`
				Enabled         bool   `json:"enabled"`
			} `json:"matchingPlans"`
		} `json:"assignments"`
		Tenant struct {
			TenantID string `json:"tenantId"`
		} `json:"tenant"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode report: %v", err)
	}

	if doc.RunID != "run_01htest" {
		t.Errorf("unexpected run id %q", doc.RunID)
	}
	if len(doc.Criteria.ExactIDs) != 1 || doc.Criteria.NamePatterns[0] != "EXCHANGE*" {
		t.Errorf("criteria echo mismatch: %+v", doc.Criteria)
	}
	if !doc.IncludeDisabled {
		t.Error("expected includeDisabled to persist")
	}
	if doc.Summary.UsersProcessed != 3 || doc.Summary.UsersMatched != 1 {
		t.Errorf("unexpected summary %+v", doc.Summary)
	}
	if len(doc.Assignments) != 1 {
		t.Fatalf("expected 1 assignment, got %d", len(doc.Assignments))
	}
	if doc.Assignments[0].UserPrincipalName != "avery@contoso.example" ||
		doc.Assignments[0].SKUPartNumber != "ENTERPRISEPACK" {
		t.Errorf("unexpected assignment %+v", doc.Assignments[0])
	}
	if len(doc.Assignments[0].MatchingPlans) != 1 || !doc.Assignments[0].MatchingPlans[0].Enabled {
		t.Errorf("unexpected matching plans %+v", doc.Assignments[0].MatchingPlans)
	}
	if doc.Tenant.TenantID != "tenant-123" {
		t.Errorf("unexpected tenant %+v", doc.Tenant)
	}
}

func TestReportRepositorySaveQueryResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "query.json")
	result := domain.QueryResult{
		CriteriaPlanIDs:   []string{"plan-a", "plan-b"},
		RequiredPlanCount: 2,
		ProductsWithAllPlans: []domain.ProductMatch{
			{
				ProductDisplayName: "Microsoft 365 E3",
				StringIDs:          []string{"SPE_E3"},
				SKUGUIDs:           []string{"05e9a617-0261-4cee-bb44-138d3ef5d965"},
				MatchedPlanIDs:     []string{"plan-a", "plan-b"},
				MatchedPlanCount:   2,
				RequiredPlanCount:  2,
			},
		},
		PerPlanProducts: []domain.PlanProducts{
			{ServicePlanID: "plan-a", ServicePlanNames: []string{"EXCHANGE_S_ENTERPRISE"}, ProductNames: []string{"Microsoft 365 E3"}},
			{ServicePlanID: "plan-b", ServicePlanNames: []string{"TEAMS1"}, ProductNames: []string{"Microsoft 365 E3"}},
		},
		Truncated: true,
	}

	repo := NewReportRepository()
	if err := repo.SaveQueryResult(context.Background(), path, result); err != nil {
		t.Fatalf("SaveQueryResult returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read result: %v", err)
	}
	var doc struct {
		CriteriaPlanIDs []string `json:"criteriaServicePlanIds"`
		RequiredCount   int      `json:"requiredPlanCount"`
		Products        []struct {
			ProductDisplayName string   `json:"productDisplayName"`
			MatchedPlanIDs     []string `json:"matchedServicePlanIds"`
		} `json:"productsWithAllPlans"`
		PerPlan []struct {
			ServicePlanID string   `json:"servicePlanId"`
			ProductNames  []string `json:"productNames"`
		} `json:"perPlanProducts"`
		Truncated bool `json:"truncated"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode result: %v", err)
	}

	if len(doc.CriteriaPlanIDs) != 2 || doc.RequiredCount != 2 {
		t.Errorf("unexpected criteria block %+v", doc)
	}
	if len(doc.Products) != 1 || doc.Products[0].ProductDisplayName != "Microsoft 365 E3" {
		t.Fatalf("unexpected products %+v", doc.Products)
	}
	if len(doc.Products[0].MatchedPlanIDs) != 2 {
		t.Errorf("unexpected matched plan ids %v", doc.Products[0].MatchedPlanIDs)
	}
	if len(doc.PerPlan) != 2 || doc.PerPlan[1].ServicePlanID != "plan-b" {
		t.Errorf("unexpected per-plan listing %+v", doc.PerPlan)
	}
	if !doc.Truncated {
		t.Error("expected truncated flag to persist")
	}
}

func TestReportRepositorySavePolicyReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.json")
	report := domain.PolicyReport{
		RunID:       "pol_01htest",
		GeneratedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Tenant:      domain.TenantContext{TenantID: "tenant-123", RetrievedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		Summary: domain.PolicySummary{
			PoliciesProcessed:        2,
			PoliciesRequiringPremium: 1,
			RequiredPlanIDs:          []string{"41781fb2-bc02-4b7c-bd55-b576c07bb09d"},
		},
		Findings: []domain.PolicyFinding{
			{
				PolicyID:   "policy-1",
				PolicyName: "Require MFA",
				State:      domain.PolicyStateEnabled,
				Active:     true,
				Features: []domain.PolicyFeatureUse{
					{Feature: "conditionalAccessPolicy", RequiredPlanID: "41781fb2-bc02-4b7c-bd55-b576c07bb09d", RequiredPlanName: "AAD_PREMIUM"},
				},
			},
		},
	}

	repo := NewReportRepository()
	if err := repo.SavePolicyReport(context.Background(), path, report); err != nil {
		t.Fatalf("SavePolicyReport returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var doc struct {
		RunID   string `json:"runId"`
		Summary struct {
			RequiredPlanIDs []string `json:"requiredServicePlanIds"`
		} `json:"summary"`
		Findings []struct {
			State    string `json:"state"`
			Active   bool   `json:"active"`
			Features []struct {
				Feature          string `json:"feature"`
				RequiredPlanName string `json:"requiredServicePlanName"`
			} `json:"features"`
		} `json:"findings"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode report: %v", err)
	}

	if doc.RunID != "pol_01htest" {
		t.Errorf("unexpected run id %q", doc.RunID)
	}
	if len(doc.Summary.RequiredPlanIDs) != 1 {
		t.Errorf("unexpected summary %+v", doc.Summary)
	}
	if len(doc.Findings) != 1 || doc.Findings[0].State != "enabled" || !doc.Findings[0].Active {
		t.Fatalf("unexpected findings %+v", doc.Findings)
	}
	if doc.Findings[0].Features[0].RequiredPlanName != "AAD_PREMIUM" {
		t.Errorf("unexpected feature %+v", doc.Findings[0].Features[0])
	}
}

func TestReportRepositoryRequiresPath(t *testing.T) {
	repo := NewReportRepository()
	if err := repo.SaveAssignmentReport(context.Background(), "", domain.AssignmentReport{}); err == nil {
		t.Fatal("expected error for empty assignment report path")
	}
	if err := repo.SavePolicyReport(context.Background(), "", domain.PolicyReport{}); err == nil {
		t.Fatal("expected error for empty policy report path")
	}
	if err := repo.SaveQueryResult(context.Background(), "", domain.QueryResult{}); err == nil {
		t.Fatal("expected error for empty query result path")
	}
}
