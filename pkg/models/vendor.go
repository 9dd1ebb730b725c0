package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultCategory is assigned to everything the sync creates
const DefaultCategory = "other"

// Vendor is a supplier observed for a company, deduplicated by NormalizedName
type Vendor struct {
	ID              uuid.UUID `db:"id" json:"id"`
	CompanyID       uuid.UUID `db:"company_id" json:"company_id"`
	Name            string    `db:"name" json:"name"`
	NormalizedName  string    `db:"normalized_name" json:"normalized_name"`
	IsSaaS          bool      `db:"is_saas" json:"is_saas"`
	DefaultCategory string    `db:"default_category" json:"default_category"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Vendor) TableName() string {
	return "vendors"
}
