package file

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/planscope/planscope/internal/domain"
	"github.com/planscope/planscope/internal/platform/fsx"
	"github.com/planscope/planscope/internal/repositories"
)

// ReportRepository serialises classification and policy reports to JSON
// files, replacing atomically.
type ReportRepository struct{}

// NewReportRepository constructs the report writer.
func NewReportRepository() *ReportRepository {
	return &ReportRepository{}
}

// SaveAssignmentReport writes an assignment report to path.
func (r *ReportRepository) SaveAssignmentReport(ctx context.Context, path string, report domain.AssignmentReport) error {
	if path == "" {
		return errors.New("report repository: path is required")
	}
	doc := encodeAssignmentReport(report)
	return writeReport("assignment_report.save", path, doc)
}

// SavePolicyReport writes a policy analysis report to path.
func (r *ReportRepository) SavePolicyReport(ctx context.Context, path string, report domain.PolicyReport) error {
	if path == "" {
		return errors.New("report repository: path is required")
	}
	doc := encodePolicyReport(report)
	return writeReport("policy_report.save", path, doc)
}

// SaveQueryResult writes an intersection query result to path.
func (r *ReportRepository) SaveQueryResult(ctx context.Context, path string, result domain.QueryResult) error {
	if path == "" {
		return errors.New("report repository: path is required")
	}
	doc := encodeQueryResult(result)
	return writeReport("query_result.save", path, doc)
}

func writeReport(op, path string, doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return WrapError(op, err)
	}
	data = append(data, '\n')
	if err := fsx.WriteFileAtomic(path, data, 0o644); err != nil {
		return WrapError(op, err)
	}
	return nil
}

func encodeAssignmentReport(report domain.AssignmentReport) assignmentReportDocument {
	assignments := make([]assignmentDocument, 0, len(report.Assignments))
	for _, assignment := range report.Assignments {
		plans := make([]matchingPlanDocument, 0, len(assignment.MatchingPlans))
		for _, plan := range assignment.MatchingPlans {
			plans = append(plans, matchingPlanDocument{
				ServicePlanID:   plan.ServicePlanID,
				ServicePlanName: plan.ServicePlanName,
				Enabled:         plan.Enabled,
			})
		}
		assignments = append(assignments, assignmentDocument{
			UserID:                   assignment.UserID,
			UserDisplayName:          assignment.UserDisplayName,
			UserPrincipalName:        assignment.UserPrincipalName,
			SKUID:                    assignment.SKUID,
			SKUPartNumber:            assignment.SKUPartNumber,
			MatchingPlans:            plans,
			MatchingPlanCount:        assignment.MatchingPlanCount,
			EnabledMatchingPlanCount: assignment.EnabledMatchingPlanCount,
		})
	}

	return assignmentReportDocument{
		RunID:       report.RunID,
		GeneratedAt: report.GeneratedAt.UTC(),
		Criteria: criteriaDocument{
			ExactIDs:     cloneSlice(report.Criteria.ExactIDs),
			NamePatterns: cloneSlice(report.Criteria.NamePatterns),
			NameRegexes:  cloneSlice(report.Criteria.NameRegexes),
		},
		TargetPlanIDs:   cloneSlice(report.TargetPlanIDs),
		IncludeDisabled: report.IncludeDisabled,
		Summary: reportSummaryDocument{
			UsersProcessed:      report.Summary.UsersProcessed,
			UsersMatched:        report.Summary.UsersMatched,
			MatchingAssignments: report.Summary.MatchingAssignments,
			UniqueSKUs:          report.Summary.UniqueSKUs,
		},
		Assignments: assignments,
		Tenant:      encodeTenantContext(report.Tenant),
	}
}

func encodePolicyReport(report domain.PolicyReport) policyReportDocument {
	findings := make([]policyFindingDocument, 0, len(report.Findings))
	for _, finding := range report.Findings {
		features := make([]policyFeatureDocument, 0, len(finding.Features))
		for _, feature := range finding.Features {
			features = append(features, policyFeatureDocument{
				Feature:          feature.Feature,
				Detail:           feature.Detail,
				RequiredPlanID:   feature.RequiredPlanID,
				RequiredPlanName: feature.RequiredPlanName,
			})
		}
		findings = append(findings, policyFindingDocument{
			PolicyID:   finding.PolicyID,
			PolicyName: finding.PolicyName,
			State:      string(finding.State),
			Active:     finding.Active,
			Features:   features,
		})
	}

	products := make([]productMatchDocument, 0, len(report.ProductsForPlans))
	for _, product := range report.ProductsForPlans {
		products = append(products, productMatchDocument{
			ProductDisplayName: product.ProductDisplayName,
			StringIDs:          cloneSlice(product.StringIDs),
			SKUGUIDs:           cloneSlice(product.SKUGUIDs),
			MatchedPlanIDs:     cloneSlice(product.MatchedPlanIDs),
			MatchedPlanCount:   product.MatchedPlanCount,
			RequiredPlanCount:  product.RequiredPlanCount,
		})
	}

	return policyReportDocument{
		RunID:       report.RunID,
		GeneratedAt: report.GeneratedAt.UTC(),
		Tenant:      encodeTenantContext(report.Tenant),
		Summary: policySummaryDocument{
			PoliciesProcessed:        report.Summary.PoliciesProcessed,
			PoliciesRequiringPremium: report.Summary.PoliciesRequiringPremium,
			RequiredPlanIDs:          cloneSlice(report.Summary.RequiredPlanIDs),
		},
		Findings:         findings,
		ProductsForPlans: products,
	}
}

func encodeQueryResult(result domain.QueryResult) queryResultDocument {
	products := make([]productMatchDocument, 0, len(result.ProductsWithAllPlans))
	for _, product := range result.ProductsWithAllPlans {
		products = append(products, productMatchDocument{
			ProductDisplayName: product.ProductDisplayName,
			StringIDs:          cloneSlice(product.StringIDs),
			SKUGUIDs:           cloneSlice(product.SKUGUIDs),
			MatchedPlanIDs:     cloneSlice(product.MatchedPlanIDs),
			MatchedPlanCount:   product.MatchedPlanCount,
			RequiredPlanCount:  product.RequiredPlanCount,
		})
	}

	perPlan := make([]planProductsDocument, 0, len(result.PerPlanProducts))
	for _, plan := range result.PerPlanProducts {
		perPlan = append(perPlan, planProductsDocument{
			ServicePlanID:    plan.ServicePlanID,
			ServicePlanNames: cloneSlice(plan.ServicePlanNames),
			ProductNames:     cloneSlice(plan.ProductNames),
		})
	}

	return queryResultDocument{
		CriteriaPlanIDs:      cloneSlice(result.CriteriaPlanIDs),
		RequiredPlanCount:    result.RequiredPlanCount,
		ProductsWithAllPlans: products,
		PerPlanProducts:      perPlan,
		Truncated:            result.Truncated,
	}
}

func encodeTenantContext(tenant domain.TenantContext) tenantContextDocument {
	return tenantContextDocument{
		TenantID:    tenant.TenantID,
		Caller:      tenant.Caller,
		RetrievedAt: tenant.RetrievedAt.UTC(),
	}
}

type assignmentReportDocument struct {
	RunID           string                `json:"runId"`
	GeneratedAt     time.Time             `json:"generatedAt"`
	Criteria        criteriaDocument      `json:"criteria"`
	TargetPlanIDs   []string              `json:"targetServicePlanIds"`
	IncludeDisabled bool                  `json:"includeDisabled"`
	Summary         reportSummaryDocument `json:"summary"`
	Assignments     []assignmentDocument  `json:"assignments"`
	Tenant          tenantContextDocument `json:"tenant"`
}

type criteriaDocument struct {
	ExactIDs     []string `json:"exactIds,omitempty"`
	NamePatterns []string `json:"namePatterns,omitempty"`
	NameRegexes  []string `json:"nameRegexes,omitempty"`
}

type reportSummaryDocument struct {
	UsersProcessed      int `json:"usersProcessed"`
	UsersMatched        int `json:"usersMatched"`
	MatchingAssignments int `json:"matchingAssignments"`
	UniqueSKUs          int `json:"uniqueSkus"`
}

type assignmentDocument struct {
	UserID                   string                 `json:"userId"`
	UserDisplayName          string                 `json:"userDisplayName,omitempty"`
	UserPrincipalName        string                 `json:"userPrincipalName,omitempty"`
	SKUID                    string                 `json:"skuId"`
	SKUPartNumber            string                 `json:"skuPartNumber,omitempty"`
	MatchingPlans            []matchingPlanDocument `json:"matchingPlans"`
	MatchingPlanCount        int                    `json:"matchingPlanCount"`
	EnabledMatchingPlanCount int                    `json:"enabledMatchingPlanCount"`
}

type matchingPlanDocument struct {
	ServicePlanID   string `json:"servicePlanId"`
	ServicePlanName string `json:"servicePlanName,omitempty"`
	Enabled         bool   `json:"enabled"`
}

type tenantContextDocument struct {
	TenantID    string    `json:"tenantId"`
	Caller      string    `json:"caller,omitempty"`
	RetrievedAt time.Time `json:"retrievedAt"`
}

type policyReportDocument struct {
	RunID            string                  `json:"runId"`
	GeneratedAt      time.Time               `json:"generatedAt"`
	Tenant           tenantContextDocument   `json:"tenant"`
	Summary          policySummaryDocument   `json:"summary"`
	Findings         []policyFindingDocument `json:"findings"`
	ProductsForPlans []productMatchDocument  `json:"productsForPlans,omitempty"`
}

type policySummaryDocument struct {
	PoliciesProcessed        int      `json:"policiesProcessed"`
	PoliciesRequiringPremium int      `json:"policiesRequiringPremium"`
	RequiredPlanIDs          []string `json:"requiredServicePlanIds,omitempty"`
}

type policyFindingDocument struct {
	PolicyID   string                  `json:"policyId"`
	PolicyName string                  `json:"policyName,omitempty"`
	State      string                  `json:"state"`
	Active     bool                    `json:"active"`
	Features   []policyFeatureDocument `json:"features"`
}

type policyFeatureDocument struct {
	Feature          string `json:"feature"`
	Detail           string `json:"detail,omitempty"`
	RequiredPlanID   string `json:"requiredServicePlanId"`
	RequiredPlanName string `json:"requiredServicePlanName,omitempty"`
}

type productMatchDocument struct {
	ProductDisplayName string   `json:"productDisplayName"`
	StringIDs          []string `json:"stringIds,omitempty"`
	SKUGUIDs           []string `json:"skuGuids,omitempty"`
	MatchedPlanIDs     []string `json:"matchedServicePlanIds"`
	MatchedPlanCount   int      `json:"matchedPlanCount"`
	RequiredPlanCount  int      `json:"requiredPlanCount"`
}

type queryResultDocument struct {
	CriteriaPlanIDs      []string               `json:"criteriaServicePlanIds"`
	RequiredPlanCount    int                    `json:"requiredPlanCount"`
	ProductsWithAllPlans []productMatchDocument `json:"productsWithAllPlans"`
	PerPlanProducts      []planProductsDocument `json:"perPlanProducts"`
	Truncated            bool                   `json:"truncated,omitempty"`
}

type planProductsDocument struct {
	ServicePlanID    string   `json:"servicePlanId"`
	ServicePlanNames []string `json:"servicePlanNames,omitempty"`
	ProductNames     []string `json:"productNames"`
}

var _ repositories.ReportRepository = (*ReportRepository)(nil)
