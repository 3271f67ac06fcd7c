package services

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Feature keys the policy analyzer emits. Rule files reference these keys to
// override the plan a feature demands.
const (
	FeaturePolicyActive = "conditionalAccessPolicy"
	FeatureSignInRisk   = "signInRiskCondition"
	FeatureUserRisk     = "userRiskCondition"
	FeatureAuthContext  = "authenticationContext"
	FeatureDeviceFilter = "deviceFilter"
)

// Built-in identifiers of the premium directory service plans.
const (
	PlanIDEntraP1   = "41781fb2-bc02-4b7c-bd55-b576c07bb09d"
	PlanNameEntraP1 = "AAD_PREMIUM"
	PlanIDEntraP2   = "eec0eb4f-6444-4f95-aba0-50c24d67f998"
	PlanNameEntraP2 = "AAD_PREMIUM_P2"
)

// PolicyRule maps one analyzer feature to the service plan that licenses it.
type PolicyRule struct {
	Feature         string `yaml:"feature"`
	ServicePlanID   string `yaml:"servicePlanId"`
	ServicePlanName string `yaml:"servicePlanName"`
}

// PolicyRules is the feature-to-plan table the policy analyzer consults.
type PolicyRules struct {
	Rules []PolicyRule `yaml:"rules"`
}

// DefaultPolicyRules returns the built-in table: conditional access itself,
// device filters, and authentication contexts demand the P1 plan; risk-based
// conditions demand the P2 plan.
func DefaultPolicyRules() PolicyRules {
	return PolicyRules{Rules: []PolicyRule{
		{Feature: FeaturePolicyActive, ServicePlanID: PlanIDEntraP1, ServicePlanName: PlanNameEntraP1},
		{Feature: FeatureDeviceFilter, ServicePlanID: PlanIDEntraP1, ServicePlanName: PlanNameEntraP1},
		{Feature: FeatureAuthContext, ServicePlanID: PlanIDEntraP1, ServicePlanName: PlanNameEntraP1},
		{Feature: FeatureSignInRisk, ServicePlanID: PlanIDEntraP2, ServicePlanName: PlanNameEntraP2},
		{Feature: FeatureUserRisk, ServicePlanID: PlanIDEntraP2, ServicePlanName: PlanNameEntraP2},
	}}
}

// LoadPolicyRules reads a YAML rules file and overlays it onto the defaults.
// An empty path returns the defaults unchanged. Features named in the file
// must be ones the analyzer emits.
func LoadPolicyRules(path string) (PolicyRules, error) {
	rules := DefaultPolicyRules()
	if strings.TrimSpace(path) == "" {
		return rules, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return PolicyRules{}, fmt.Errorf("policy service: read rules file: %w", err)
	}

	var overrides PolicyRules
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return PolicyRules{}, fmt.Errorf("policy service: parse rules file: %w", err)
	}

	for _, override := range overrides.Rules {
		feature := strings.TrimSpace(override.Feature)
		idx := -1
		for i, rule := range rules.Rules {
			if rule.Feature == feature {
				idx = i
				break
			}
		}
		if idx < 0 {
			return PolicyRules{}, fmt.Errorf("policy service: unknown feature %q in rules file", override.Feature)
		}
		if strings.TrimSpace(override.ServicePlanID) == "" {
			return PolicyRules{}, fmt.Errorf("policy service: feature %q has no service plan id", override.Feature)
		}
		rules.Rules[idx].ServicePlanID = strings.TrimSpace(override.ServicePlanID)
		if name := strings.TrimSpace(override.ServicePlanName); name != "" {
			rules.Rules[idx].ServicePlanName = name
		}
	}

	return rules, nil
}

func (r PolicyRules) planFor(feature string) (PolicyRule, bool) {
	for _, rule := range r.Rules {
		if rule.Feature == feature {
			return rule, true
		}
	}
	return PolicyRule{}, false
}
