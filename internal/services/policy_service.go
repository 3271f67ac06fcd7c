package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/planscope/planscope/internal/domain"
	"github.com/planscope/planscope/internal/platform/textutil"
	"github.com/planscope/planscope/internal/repositories"
)

var errPolicyDirectoryRequired = errors.New("policy: directory repository is required")

// ErrPolicyUnavailable indicates the service cannot complete the request due
// to missing dependencies.
var ErrPolicyUnavailable = errors.New("policy: service unavailable")

const policyRunIDPrefix = "pol_"

// PolicyServiceDeps wires directory access and the feature licensing table.
// Provisioner and Query are optional; when both are present, reports resolve
// the products covering the aggregated plan demand.
type PolicyServiceDeps struct {
	Directory   repositories.DirectoryRepository
	Rules       PolicyRules
	Provisioner ProvisionService
	Query       QueryService
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type policyService struct {
	directory   repositories.DirectoryRepository
	rules       PolicyRules
	provisioner ProvisionService
	query       QueryService
	now         func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
}

// NewPolicyService constructs a PolicyService with the provided dependencies.
func NewPolicyService(deps PolicyServiceDeps) (PolicyService, error) {
	if deps.Directory == nil {
		return nil, errPolicyDirectoryRequired
	}

	rules := deps.Rules
	if len(rules.Rules) == 0 {
		rules = DefaultPolicyRules()
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &policyService{
		directory:   deps.Directory,
		rules:       rules,
		provisioner: deps.Provisioner,
		query:       deps.Query,
		now:         func() time.Time { return clock().UTC() },
		newID:       func() string { return policyRunIDPrefix + strings.ToLower(idGen()) },
		logger:      logger,
	}, nil
}

// AnalyzePolicies produces a finding for every supplied policy and aggregates
// the plan demand of the active ones. Disabled policies keep their findings
// but contribute nothing to the summary.
func (s *policyService) AnalyzePolicies(ctx context.Context, policies []domain.ConditionalAccessPolicy) (domain.PolicyReport, error) {
	if s == nil {
		return domain.PolicyReport{}, ErrPolicyUnavailable
	}

	report := domain.PolicyReport{
		RunID:       s.newID(),
		GeneratedAt: s.now(),
	}

	required := textutil.NewFoldSet()
	for _, policy := range policies {
		finding := domain.PolicyFinding{
			PolicyID:   policy.ID,
			PolicyName: policy.DisplayName,
			State:      policy.State,
			Active:     policy.State.Active(),
			Features:   s.featuresFor(policy),
		}
		report.Findings = append(report.Findings, finding)

		if !finding.Active || len(finding.Features) == 0 {
			continue
		}
		report.Summary.PoliciesRequiringPremium++
		for _, feature := range finding.Features {
			required.Add(feature.RequiredPlanID)
		}
	}

	report.Summary.PoliciesProcessed = len(policies)
	report.Summary.RequiredPlanIDs = required.Values()

	return report, nil
}

// featuresFor lists the premium features a policy exercises. The existence of
// the policy is itself a feature: conditional access is not part of the free
// directory tier.
func (s *policyService) featuresFor(policy domain.ConditionalAccessPolicy) []domain.PolicyFeatureUse {
	var features []domain.PolicyFeatureUse
	add := func(feature, detail string) {
		rule, ok := s.rules.planFor(feature)
		if !ok {
			return
		}
		features = append(features, domain.PolicyFeatureUse{
			Feature:          feature,
			Detail:           detail,
			RequiredPlanID:   rule.ServicePlanID,
			RequiredPlanName: rule.ServicePlanName,
		})
	}

	add(FeaturePolicyActive, "")
	if len(policy.SignInRiskLevels) > 0 {
		add(FeatureSignInRisk, strings.Join(policy.SignInRiskLevels, ", "))
	}
	if len(policy.UserRiskLevels) > 0 {
		add(FeatureUserRisk, strings.Join(policy.UserRiskLevels, ", "))
	}
	if len(policy.AuthenticationContexts) > 0 {
		add(FeatureAuthContext, strings.Join(policy.AuthenticationContexts, ", "))
	}
	if strings.TrimSpace(policy.DeviceFilterRule) != "" {
		add(FeatureDeviceFilter, policy.DeviceFilterRule)
	}

	return features
}

// BuildReport fetches the tenant's policies, analyzes them, and resolves the
// products covering the aggregated demand when the index plumbing is wired.
// Product resolution is best effort; the findings stand on their own.
func (s *policyService) BuildReport(ctx context.Context) (domain.PolicyReport, error) {
	if s == nil || s.directory == nil {
		return domain.PolicyReport{}, ErrPolicyUnavailable
	}

	tenant, err := s.directory.TenantContext(ctx)
	if err != nil {
		return domain.PolicyReport{}, fmt.Errorf("policy service: tenant context: %w", err)
	}

	policies, err := s.directory.ListConditionalAccessPolicies(ctx)
	if err != nil {
		return domain.PolicyReport{}, fmt.Errorf("policy service: list policies: %w", err)
	}

	report, err := s.AnalyzePolicies(ctx, policies)
	if err != nil {
		return domain.PolicyReport{}, err
	}
	report.Tenant = tenant

	if s.provisioner != nil && s.query != nil && len(report.Summary.RequiredPlanIDs) > 0 {
		matches, err := s.resolveProducts(ctx, report.Summary.RequiredPlanIDs)
		if err != nil {
			s.logger(ctx, "policy.product_lookup_failed", map[string]any{
				"run_id": report.RunID,
				"error":  err.Error(),
			})
		} else {
			report.ProductsForPlans = matches
		}
	}

	return report, nil
}

func (s *policyService) resolveProducts(ctx context.Context, planIDs []string) ([]domain.ProductMatch, error) {
	index, err := s.provisioner.EnsureIndex(ctx)
	if err != nil {
		return nil, err
	}
	result, err := s.query.Query(ctx, index, planIDs, QueryOptions{})
	if err != nil {
		return nil, err
	}
	return result.ProductsWithAllPlans, nil
}
