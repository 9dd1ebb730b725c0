package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/linqan85-spec/spendo-sub000/pkg/models"
)

// CompanyRepo resolves tenants and their subscription state. It is not tenant-scoped.
type CompanyRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error)
	GetCompanyIDForUser(ctx context.Context, userID string) (uuid.UUID, error)
	IsMember(ctx context.Context, userID string, companyID uuid.UUID) (bool, error)
}

// IntegrationRepo is the token store
type IntegrationRepo interface {
	GetByProvider(ctx context.Context, provider models.Provider) (*models.Integration, error)
	List(ctx context.Context) ([]models.Integration, error)
	Upsert(ctx context.Context, integration *models.Integration) error
	RotateTokens(ctx context.Context, id uuid.UUID, pair models.TokenPair) error
	MarkStatus(ctx context.Context, id uuid.UUID, status models.IntegrationStatus) error
	TouchLastSynced(ctx context.Context, id uuid.UUID, at time.Time) error
	Disconnect(ctx context.Context, provider models.Provider) error
}

// VendorRepo defines the interface for vendor repository operations
type VendorRepo interface {
	GetOrCreate(ctx context.Context, vendor *models.Vendor) (bool, error)
}

// ExpenseRepo defines the interface for expense repository operations
type ExpenseRepo interface {
	GetByExternalID(ctx context.Context, externalID string) (*models.Expense, error)
	Create(ctx context.Context, expense *models.Expense) error
	Update(ctx context.Context, expense *models.Expense) error
}
