package domain

import "time"

// AssignedLicense is one SKU assignment on a directory user, together with
// the service plan ids the assignment has disabled.
type AssignedLicense struct {
	SKUID           string
	DisabledPlanIDs []string
}

// DirectoryUser is the slice of a directory user record the classifier needs.
type DirectoryUser struct {
	ID                string
	DisplayName       string
	UserPrincipalName string
	AssignedLicenses  []AssignedLicense
}

// SKUServicePlan is one service plan contained in a subscribed SKU.
type SKUServicePlan struct {
	ServicePlanID   string
	ServicePlanName string
}

// SubscribedSKU describes a SKU the tenant has subscribed to and the service
// plans it contains.
type SubscribedSKU struct {
	SKUID         string
	SKUPartNumber string
	ServicePlans  []SKUServicePlan
}

// TenantContext records where and as whom tenant data was retrieved.
type TenantContext struct {
	TenantID    string
	Caller      string
	RetrievedAt time.Time
}
