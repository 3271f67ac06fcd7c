package msgraph

import (
	"reflect"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/microsoftgraph/msgraph-sdk-go/models"

	"github.com/planscope/planscope/internal/domain"
)

func TestMapUser(t *testing.T) {
	id := "7c2f9d1e-9c27-4e4b-8f41-0b1a3a1c2d3e"
	displayName := "Avery Example"
	upn := "avery@contoso.example"
	skuID := uuid.MustParse("6fd2c87f-b296-42f0-b197-1e91e994b900")
	disabled := uuid.MustParse("efb87545-963c-4e0d-99df-69c6916d9eb0")

	license := models.NewAssignedLicense()
	license.SetSkuId(&skuID)
	license.SetDisabledPlans([]uuid.UUID{disabled})

	// A license without a skuId carries no usable assignment and is skipped.
	empty := models.NewAssignedLicense()

	user := models.NewUser()
	user.SetId(&id)
	user.SetDisplayName(&displayName)
	user.SetUserPrincipalName(&upn)
	user.SetAssignedLicenses([]models.AssignedLicenseable{license, empty})

	got := mapUser(user)
	want := domain.DirectoryUser{
		ID:                id,
		DisplayName:       displayName,
		UserPrincipalName: upn,
		AssignedLicenses: []domain.AssignedLicense{
			{
				SKUID:           "6fd2c87f-b296-42f0-b197-1e91e994b900",
				DisabledPlanIDs: []string{"efb87545-963c-4e0d-99df-69c6916d9eb0"},
			},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %#v got %#v", want, got)
	}
}

func TestMapSubscribedSKU(t *testing.T) {
	skuID := uuid.MustParse("6fd2c87f-b296-42f0-b197-1e91e994b900")
	partNumber := "ENTERPRISEPACK"
	planID := uuid.MustParse("efb87545-963c-4e0d-99df-69c6916d9eb0")
	planName := "EXCHANGE_S_ENTERPRISE"

	plan := models.NewServicePlanInfo()
	plan.SetServicePlanId(&planID)
	plan.SetServicePlanName(&planName)

	sku := models.NewSubscribedSku()
	sku.SetSkuId(&skuID)
	sku.SetSkuPartNumber(&partNumber)
	sku.SetServicePlans([]models.ServicePlanInfoable{plan, nil})

	got := mapSubscribedSKU(sku)
	want := domain.SubscribedSKU{
		SKUID:         "6fd2c87f-b296-42f0-b197-1e91e994b900",
		SKUPartNumber: "ENTERPRISEPACK",
		ServicePlans: []domain.SKUServicePlan{
			{ServicePlanID: "efb87545-963c-4e0d-99df-69c6916d9eb0", ServicePlanName: "EXCHANGE_S_ENTERPRISE"},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %#v got %#v", want, got)
	}
}

func TestMapPolicy(t *testing.T) {
	t.Run("full conditions", func(t *testing.T) {
		id := "policy-1"
		name := "Require MFA for risky sign-ins"
		state := models.ENABLED_CONDITIONALACCESSPOLICYSTATE
		rule := `device.deviceOwnership -eq "Company"`

		filter := models.NewConditionalAccessFilter()
		filter.SetRule(&rule)
		devices := models.NewConditionalAccessDevices()
		devices.SetDeviceFilter(filter)

		apps := models.NewConditionalAccessApplications()
		apps.SetIncludeAuthenticationContextClassReferences([]string{"c1", "c25"})

		conditions := models.NewConditionalAccessConditionSet()
		conditions.SetSignInRiskLevels([]models.RiskLevel{models.HIGH_RISKLEVEL, models.MEDIUM_RISKLEVEL})
		conditions.SetUserRiskLevels([]models.RiskLevel{models.HIGH_RISKLEVEL})
		conditions.SetApplications(apps)
		conditions.SetDevices(devices)

		entry := models.NewConditionalAccessPolicy()
		entry.SetId(&id)
		entry.SetDisplayName(&name)
		entry.SetState(&state)
		entry.SetConditions(conditions)

		got := mapPolicy(entry)
		want := domain.ConditionalAccessPolicy{
			ID:                     "policy-1",
			DisplayName:            "Require MFA for risky sign-ins",
			State:                  domain.PolicyStateEnabled,
			SignInRiskLevels:       []string{"high", "medium"},
			UserRiskLevels:         []string{"high"},
			AuthenticationContexts: []string{"c1", "c25"},
			DeviceFilterRule:       rule,
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("expected %#v got %#v", want, got)
		}
	})

	t.Run("no conditions", func(t *testing.T) {
		id := "policy-2"
		state := models.ENABLEDFORREPORTINGBUTNOTENFORCED_CONDITIONALACCESSPOLICYSTATE

		entry := models.NewConditionalAccessPolicy()
		entry.SetId(&id)
		entry.SetState(&state)

		got := mapPolicy(entry)
		if got.State != domain.PolicyStateReportOnly {
			t.Fatalf("expected report-only state, got %q", got.State)
		}
		if got.SignInRiskLevels != nil || got.AuthenticationContexts != nil {
			t.Fatalf("expected empty conditions, got %#v", got)
		}
	})
}

func TestClaimsFromToken(t *testing.T) {
	sign := func(t *testing.T, claims jwt.MapClaims) string {
		t.Helper()
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("local-test-key"))
		if err != nil {
			t.Fatalf("sign token: %v", err)
		}
		return raw
	}

	t.Run("delegated token", func(t *testing.T) {
		raw := sign(t, jwt.MapClaims{
			"tid": "11111111-2222-3333-4444-555555555555",
			"upn": "admin@contoso.example",
		})
		tenantID, caller, err := claimsFromToken(raw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tenantID != "11111111-2222-3333-4444-555555555555" {
			t.Fatalf("unexpected tenant id %q", tenantID)
		}
		if caller != "admin@contoso.example" {
			t.Fatalf("unexpected caller %q", caller)
		}
	})

	t.Run("application token", func(t *testing.T) {
		raw := sign(t, jwt.MapClaims{
			"tid":   "11111111-2222-3333-4444-555555555555",
			"appid": "33333333-4444-5555-6666-777777777777",
		})
		_, caller, err := claimsFromToken(raw)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if caller != "33333333-4444-5555-6666-777777777777" {
			t.Fatalf("unexpected caller %q", caller)
		}
	})

	t.Run("missing tid", func(t *testing.T) {
		raw := sign(t, jwt.MapClaims{"upn": "admin@contoso.example"})
		if _, _, err := claimsFromToken(raw); err == nil {
			t.Fatal("expected error for token without tid")
		}
	})

	t.Run("not a token", func(t *testing.T) {
		if _, _, err := claimsFromToken("not-a-jwt"); err == nil {
			t.Fatal("expected error for malformed token")
		}
	})
}
