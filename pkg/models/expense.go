package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExpenseType distinguishes manual expenses from synced invoices
type ExpenseType string

const (
	ExpenseTypeExpense ExpenseType = "expense"
	ExpenseTypeInvoice ExpenseType = "invoice"
)

// DefaultCurrency is used when the upstream record carries none
const DefaultCurrency = "SEK"

// Expense is one spend record. ExternalID is set only for synced records and is the
// reconciliation key; manual entries leave it nil and are never touched by a sync.
type Expense struct {
	ID              uuid.UUID           `db:"id" json:"id"`
	CompanyID       uuid.UUID           `db:"company_id" json:"company_id"`
	VendorID        *uuid.UUID          `db:"vendor_id" json:"vendor_id,omitempty"`
	ExternalID      *string             `db:"external_id" json:"external_id,omitempty"`
	Amount          decimal.Decimal     `db:"amount" json:"amount"`
	VATAmount       decimal.NullDecimal `db:"vat_amount" json:"vat_amount"`
	Currency        string              `db:"currency" json:"currency"`
	TransactionDate time.Time           `db:"transaction_date" json:"transaction_date"`
	Description     *string             `db:"description" json:"description,omitempty"`
	Category        string              `db:"category" json:"category"`
	Type            ExpenseType         `db:"type" json:"type"`
	IsRecurring     bool                `db:"is_recurring" json:"is_recurring"`
	CreatedAt       time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Expense) TableName() string {
	return "expenses"
}
