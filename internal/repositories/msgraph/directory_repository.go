package msgraph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	azpolicy "github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	abstractions "github.com/microsoft/kiota-abstractions-go"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	msgraphgocore "github.com/microsoftgraph/msgraph-sdk-go-core"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/users"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/planscope/planscope/internal/domain"
	"github.com/planscope/planscope/internal/repositories"
)

const (
	defaultScope             = "https://graph.microsoft.com/.default"
	defaultPageSize          = 999
	defaultRequestsPerSecond = 15
	defaultBurst             = 1
)

// Options configures authentication and paging for the Graph client.
type Options struct {
	TenantID          string
	ClientID          string
	ClientSecret      string
	Scopes            []string
	PageSize          int
	RequestsPerSecond float64
	Burst             int
	Logger            *zap.Logger
}

// DirectoryRepository reads licensed users, subscribed SKUs, and conditional
// access policies from Microsoft Graph.
type DirectoryRepository struct {
	client   *msgraphsdk.GraphServiceClient
	cred     azcore.TokenCredential
	scopes   []string
	limiter  *rate.Limiter
	pageSize int32
	logger   *zap.Logger
}

var _ repositories.DirectoryRepository = (*DirectoryRepository)(nil)

// NewDirectoryRepository authenticates against the identity platform and
// builds the Graph client. A configured client secret selects the
// client-credentials flow; otherwise the azure CLI login is used.
func NewDirectoryRepository(opts Options) (*DirectoryRepository, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cred, err := newCredential(opts)
	if err != nil {
		return nil, fmt.Errorf("msgraph repository: create credential: %w", err)
	}

	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = []string{defaultScope}
	}

	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(cred, scopes)
	if err != nil {
		return nil, fmt.Errorf("msgraph repository: create client: %w", err)
	}

	pageSize := opts.PageSize
	if pageSize < 1 || pageSize > 999 {
		pageSize = defaultPageSize
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	burst := opts.Burst
	if burst < 1 {
		burst = defaultBurst
	}

	return &DirectoryRepository{
		client:   client,
		cred:     cred,
		scopes:   scopes,
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		pageSize: int32(pageSize),
		logger:   logger.Named("directory"),
	}, nil
}

func newCredential(opts Options) (azcore.TokenCredential, error) {
	if opts.ClientSecret != "" {
		return azidentity.NewClientSecretCredential(opts.TenantID, opts.ClientID, opts.ClientSecret, nil)
	}
	cliOptions := &azidentity.AzureCLICredentialOptions{}
	if opts.TenantID != "" {
		cliOptions.TenantID = opts.TenantID
	}
	return azidentity.NewAzureCLICredential(cliOptions)
}

// ListLicensedUsers pages through every user carrying at least one license
// assignment.
func (r *DirectoryRepository) ListLicensedUsers(ctx context.Context) ([]domain.DirectoryUser, error) {
	const op = "directory.list_licensed_users"

	headers := abstractions.NewRequestHeaders()
	// Required for advanced queries like $filter with $count.
	headers.Add("ConsistencyLevel", "eventual")

	filter := "assignedLicenses/$count ne 0"
	requestCount := true
	top := r.pageSize
	options := &users.UsersRequestBuilderGetRequestConfiguration{
		Headers: headers,
		QueryParameters: &users.UsersRequestBuilderGetQueryParameters{
			Select: []string{"id", "displayName", "userPrincipalName", "assignedLicenses"},
			Filter: &filter,
			Count:  &requestCount,
			Top:    &top,
		},
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, WrapError(op, err)
	}
	initial, err := r.client.Users().Get(ctx, options)
	if err != nil {
		return nil, WrapError(op, err)
	}
	result, ok := initial.(*models.UserCollectionResponse)
	if !ok {
		return nil, WrapError(op, errors.New("unexpected response type for user collection"))
	}

	iterator, err := msgraphgocore.NewPageIterator[*models.User](result, r.client.GetAdapter(), models.CreateUserCollectionResponseFromDiscriminatorValue)
	if err != nil {
		return nil, WrapError(op, err)
	}
	iterator.SetHeaders(headers)

	var collected []domain.DirectoryUser
	err = iterator.Iterate(ctx, func(user *models.User) bool {
		if user == nil || user.GetId() == nil {
			return true
		}
		collected = append(collected, mapUser(user))
		return true
	})
	if err != nil {
		return nil, WrapError(op, err)
	}

	r.logger.Debug("listed licensed users", zap.Int("count", len(collected)))
	return collected, nil
}

// ListSubscribedSKUs returns the SKUs the tenant subscribes to together with
// the service plans each one contains.
func (r *DirectoryRepository) ListSubscribedSKUs(ctx context.Context) ([]domain.SubscribedSKU, error) {
	const op = "directory.list_subscribed_skus"

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, WrapError(op, err)
	}
	initial, err := r.client.SubscribedSkus().Get(ctx, nil)
	if err != nil {
		return nil, WrapError(op, err)
	}
	result, ok := initial.(*models.SubscribedSkuCollectionResponse)
	if !ok {
		return nil, WrapError(op, errors.New("unexpected response type for subscribed sku collection"))
	}

	iterator, err := msgraphgocore.NewPageIterator[*models.SubscribedSku](result, r.client.GetAdapter(), models.CreateSubscribedSkuCollectionResponseFromDiscriminatorValue)
	if err != nil {
		return nil, WrapError(op, err)
	}

	var collected []domain.SubscribedSKU
	err = iterator.Iterate(ctx, func(sku *models.SubscribedSku) bool {
		if sku == nil {
			return true
		}
		collected = append(collected, mapSubscribedSKU(sku))
		return true
	})
	if err != nil {
		return nil, WrapError(op, err)
	}

	r.logger.Debug("listed subscribed skus", zap.Int("count", len(collected)))
	return collected, nil
}

// ListConditionalAccessPolicies returns every conditional access policy in
// the tenant, including disabled ones.
func (r *DirectoryRepository) ListConditionalAccessPolicies(ctx context.Context) ([]domain.ConditionalAccessPolicy, error) {
	const op = "directory.list_conditional_access_policies"

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, WrapError(op, err)
	}
	initial, err := r.client.Identity().ConditionalAccess().Policies().Get(ctx, nil)
	if err != nil {
		return nil, WrapError(op, err)
	}
	result, ok := initial.(*models.ConditionalAccessPolicyCollectionResponse)
	if !ok {
		return nil, WrapError(op, errors.New("unexpected response type for policy collection"))
	}

	iterator, err := msgraphgocore.NewPageIterator[*models.ConditionalAccessPolicy](result, r.client.GetAdapter(), models.CreateConditionalAccessPolicyCollectionResponseFromDiscriminatorValue)
	if err != nil {
		return nil, WrapError(op, err)
	}

	var collected []domain.ConditionalAccessPolicy
	err = iterator.Iterate(ctx, func(entry *models.ConditionalAccessPolicy) bool {
		if entry == nil {
			return true
		}
		collected = append(collected, mapPolicy(entry))
		return true
	})
	if err != nil {
		return nil, WrapError(op, err)
	}

	r.logger.Debug("listed conditional access policies", zap.Int("count", len(collected)))
	return collected, nil
}

// TenantContext resolves the tenant id and caller identity from a freshly
// issued access token.
func (r *DirectoryRepository) TenantContext(ctx context.Context) (domain.TenantContext, error) {
	const op = "directory.tenant_context"

	if err := r.limiter.Wait(ctx); err != nil {
		return domain.TenantContext{}, WrapError(op, err)
	}
	token, err := r.cred.GetToken(ctx, azpolicy.TokenRequestOptions{Scopes: r.scopes})
	if err != nil {
		return domain.TenantContext{}, WrapError(op, err)
	}

	tenantID, caller, err := claimsFromToken(token.Token)
	if err != nil {
		return domain.TenantContext{}, WrapError(op, err)
	}

	return domain.TenantContext{
		TenantID:    tenantID,
		Caller:      caller,
		RetrievedAt: time.Now().UTC(),
	}, nil
}

// claimsFromToken extracts the tenant and caller claims with an unverified
// parse. The token comes straight from the identity platform in the same call
// chain; this is not a path for validating inbound tokens.
func claimsFromToken(raw string) (tenantID, caller string, err error) {
	parser := new(jwt.Parser)
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, claims); err != nil {
		return "", "", fmt.Errorf("parse access token: %w", err)
	}

	tid, ok := claims["tid"].(string)
	if !ok || tid == "" {
		return "", "", errors.New("access token carries no tid claim")
	}

	// Delegated tokens name the signed-in user, application tokens the app.
	for _, name := range []string{"upn", "app_displayname", "appid"} {
		if value, ok := claims[name].(string); ok && value != "" {
			caller = value
			break
		}
	}
	return tid, caller, nil
}

func mapUser(user models.Userable) domain.DirectoryUser {
	mapped := domain.DirectoryUser{
		ID:                stringValue(user.GetId()),
		DisplayName:       stringValue(user.GetDisplayName()),
		UserPrincipalName: stringValue(user.GetUserPrincipalName()),
	}
	for _, license := range user.GetAssignedLicenses() {
		if license == nil || license.GetSkuId() == nil {
			continue
		}
		assigned := domain.AssignedLicense{SKUID: guidString(license.GetSkuId())}
		for _, plan := range license.GetDisabledPlans() {
			assigned.DisabledPlanIDs = append(assigned.DisabledPlanIDs, plan.String())
		}
		mapped.AssignedLicenses = append(mapped.AssignedLicenses, assigned)
	}
	return mapped
}

func mapSubscribedSKU(sku models.SubscribedSkuable) domain.SubscribedSKU {
	mapped := domain.SubscribedSKU{
		SKUID:         guidString(sku.GetSkuId()),
		SKUPartNumber: stringValue(sku.GetSkuPartNumber()),
	}
	for _, plan := range sku.GetServicePlans() {
		if plan == nil || plan.GetServicePlanId() == nil {
			continue
		}
		mapped.ServicePlans = append(mapped.ServicePlans, domain.SKUServicePlan{
			ServicePlanID:   guidString(plan.GetServicePlanId()),
			ServicePlanName: stringValue(plan.GetServicePlanName()),
		})
	}
	return mapped
}

func mapPolicy(entry models.ConditionalAccessPolicyable) domain.ConditionalAccessPolicy {
	mapped := domain.ConditionalAccessPolicy{
		ID:          stringValue(entry.GetId()),
		DisplayName: stringValue(entry.GetDisplayName()),
	}
	if state := entry.GetState(); state != nil {
		mapped.State = domain.PolicyState(state.String())
	}

	conditions := entry.GetConditions()
	if conditions == nil {
		return mapped
	}
	mapped.SignInRiskLevels = riskLevelStrings(conditions.GetSignInRiskLevels())
	mapped.UserRiskLevels = riskLevelStrings(conditions.GetUserRiskLevels())
	if apps := conditions.GetApplications(); apps != nil {
		if refs := apps.GetIncludeAuthenticationContextClassReferences(); len(refs) > 0 {
			mapped.AuthenticationContexts = append([]string(nil), refs...)
		}
	}
	if devices := conditions.GetDevices(); devices != nil {
		if filter := devices.GetDeviceFilter(); filter != nil {
			mapped.DeviceFilterRule = stringValue(filter.GetRule())
		}
	}
	return mapped
}

func riskLevelStrings(levels []models.RiskLevel) []string {
	if len(levels) == 0 {
		return nil
	}
	out := make([]string, 0, len(levels))
	for _, level := range levels {
		out = append(out, level.String())
	}
	return out
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func guidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
