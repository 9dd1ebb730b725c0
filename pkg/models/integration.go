package models

import (
	"time"

	"github.com/google/uuid"
)

// Provider names an upstream accounting platform
type Provider string

const (
	ProviderFortnox Provider = "fortnox"
	ProviderKleer   Provider = "kleer"
)

// IntegrationStatus is the connection state of an integration
type IntegrationStatus string

const (
	IntegrationStatusActive   IntegrationStatus = "active"
	IntegrationStatusInactive IntegrationStatus = "inactive"
	IntegrationStatusError    IntegrationStatus = "error"
)

// Integration holds the credentials for one (company, provider) pair
type Integration struct {
	ID                uuid.UUID         `db:"id" json:"id"`
	CompanyID         uuid.UUID         `db:"company_id" json:"company_id"`
	Provider          Provider          `db:"provider" json:"provider"`
	AccessToken       *string           `db:"access_token" json:"-"`
	RefreshToken      *string           `db:"refresh_token" json:"-"`
	Status            IntegrationStatus `db:"status" json:"status"`
	ExternalCompanyID *string           `db:"external_company_id" json:"external_company_id,omitempty"`
	LastSyncedAt      *time.Time        `db:"last_synced_at" json:"last_synced_at,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Integration) TableName() string {
	return "integrations"
}

// IsConnected reports whether the integration can be used for upstream calls
func (i *Integration) IsConnected() bool {
	return i.Status == IntegrationStatusActive && i.AccessToken != nil && *i.AccessToken != ""
}

// TokenPair is an access/refresh token pair issued by a provider
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
