// Package fixtures holds identifiers shared across the access core test
// suites so tests avoid scattered magic strings.
package fixtures

// Token settings.
const (
	Issuer   = "https://accounts.stricklysoft.test"
	Audience = "stricklysoft-services"
	KeyID    = "test-key-1"
	AltKeyID = "test-key-2"
)

// Users.
const (
	UserID       = "7d1c0a52-5f7c-4f0e-9d64-2f1a6a0b9c11"
	UserEmail    = "ada@example.test"
	AltUserID    = "b2a6f1e4-1f93-4c52-8d2c-0b4f3c8e7a22"
	AltUserEmail = "grace@example.test"
	AdminUserID  = "c0ffee00-0000-4000-8000-000000000001"
)

// Organizations.
const (
	OrgID    = "0b8e6c2a-9a51-4e5b-a3f1-6a7c9b3d4e01"
	AltOrgID = "5f2d7a13-2c84-4b9e-8e06-1d3a5b7c9e02"
	OrgName  = "Acme Builders"
)

// Entitlement keys.
const (
	EntitlementDaily   = "daily"
	EntitlementFinance = "finance"
	EntitlementPayroll = "payroll"
)
