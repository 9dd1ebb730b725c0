package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/linqan85-spec/spendo-sub000/pkg/metrics"
	"github.com/linqan85-spec/spendo-sub000/pkg/models"
	"github.com/linqan85-spec/spendo-sub000/pkg/repositories"
	"github.com/linqan85-spec/spendo-sub000/pkg/tracing"
)

const descriptionFallback = "Supplier invoice"

// Invoice is a supplier invoice as reported by any provider
type Invoice struct {
	// Number is the provider's primary identifier (Fortnox GivenNumber)
	Number string
	// FallbackNumber is used when Number is empty (Fortnox InvoiceNumber)
	FallbackNumber string
	// Reference is the human-facing invoice number used in descriptions
	Reference    string
	SupplierName string
	Total        decimal.Decimal
	VAT          decimal.NullDecimal
	Currency     string
	Date         *time.Time
}

// Key returns the identifier that makes the invoice unique within its provider
func (i Invoice) Key() string {
	if n := strings.TrimSpace(i.Number); n != "" {
		return n
	}
	return strings.TrimSpace(i.FallbackNumber)
}

// ExternalID returns the expense reconciliation key, or "" when the invoice has no number
func ExternalID(provider models.Provider, invoice Invoice) string {
	key := invoice.Key()
	if key == "" {
		return ""
	}
	return fmt.Sprintf("%s-si-%s", provider, key)
}

// NormalizeVendorName is the vendor dedup key
func NormalizeVendorName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Summary counts what one reconciliation did
type Summary struct {
	InvoicesFetched int `json:"invoices_fetched"`
	VendorsCreated  int `json:"vendors_created"`
	ExpensesCreated int `json:"expenses_created"`
	ExpensesUpdated int `json:"expenses_updated"`
}

// Engine writes provider invoices into vendors and expenses. It runs record by record; a
// failed write is logged and skipped.
type Engine struct {
	vendors  repositories.VendorRepo
	expenses repositories.ExpenseRepo
	logger   ectologger.Logger
	now      func() time.Time
}

func NewEngine(vendors repositories.VendorRepo, expenses repositories.ExpenseRepo, logger ectologger.Logger) *Engine {
	return &Engine{
		vendors:  vendors,
		expenses: expenses,
		logger:   logger,
		now:      time.Now,
	}
}

// Reconcile upserts invoices for the tenant in ctx. Replaying the same invoices leaves the
// stored state unchanged and counts every expense as updated.
func (e *Engine) Reconcile(ctx context.Context, provider models.Provider, invoices []Invoice) Summary {
	ctx, span := tracing.StartSpan(ctx, "reconcile.Reconcile",
		attribute.String("provider", string(provider)),
		attribute.Int("invoices", len(invoices)),
	)
	defer span.End()

	summary := Summary{InvoicesFetched: len(invoices)}

	vendorIDs, created := e.resolveVendors(ctx, invoices)
	summary.VendorsCreated = created

	for _, invoice := range invoices {
		wasCreated, err := e.upsertExpense(ctx, provider, invoice, vendorIDs)
		if err != nil {
			metrics.RecordReconcile("expense", "failed")
			e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"provider":    provider,
				"invoice_key": invoice.Key(),
			}).Warn("skipping invoice")
			continue
		}
		if wasCreated {
			summary.ExpensesCreated++
			metrics.RecordReconcile("expense", "created")
		} else {
			summary.ExpensesUpdated++
			metrics.RecordReconcile("expense", "updated")
		}
	}

	span.SetAttributes(
		attribute.Int("vendors_created", summary.VendorsCreated),
		attribute.Int("expenses_created", summary.ExpensesCreated),
		attribute.Int("expenses_updated", summary.ExpensesUpdated),
	)
	e.logger.WithContext(ctx).WithFields(map[string]any{
		"provider":         provider,
		"invoices_fetched": summary.InvoicesFetched,
		"vendors_created":  summary.VendorsCreated,
		"expenses_created": summary.ExpensesCreated,
		"expenses_updated": summary.ExpensesUpdated,
	}).Info("Reconciled invoices")
	return summary
}

// resolveVendors maps every distinct supplier name to a vendor id
func (e *Engine) resolveVendors(ctx context.Context, invoices []Invoice) (map[string]uuid.UUID, int) {
	ids := make(map[string]uuid.UUID)
	seen := make(map[string]bool)
	created := 0

	for _, invoice := range invoices {
		name := invoice.SupplierName
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		normalized := NormalizeVendorName(name)
		if normalized == "" {
			continue
		}

		vendor := &models.Vendor{
			Name:            strings.TrimSpace(name),
			NormalizedName:  normalized,
			DefaultCategory: models.DefaultCategory,
		}
		wasCreated, err := e.vendors.GetOrCreate(ctx, vendor)
		if err != nil {
			metrics.RecordReconcile("vendor", "failed")
			e.logger.WithContext(ctx).WithError(err).WithField("vendor_name", normalized).Warn("skipping vendor")
			continue
		}
		if wasCreated {
			created++
			metrics.RecordReconcile("vendor", "created")
		} else {
			metrics.RecordReconcile("vendor", "existing")
		}
		ids[name] = vendor.ID
	}

	return ids, created
}

func (e *Engine) upsertExpense(ctx context.Context, provider models.Provider, invoice Invoice, vendorIDs map[string]uuid.UUID) (bool, error) {
	externalID := ExternalID(provider, invoice)
	if externalID == "" {
		return false, fmt.Errorf("invoice has no number")
	}

	existing, err := e.expenses.GetByExternalID(ctx, externalID)
	if err != nil && !repositories.IsNotFound(err) {
		return false, err
	}

	target := existing
	if target == nil {
		target = &models.Expense{ExternalID: &externalID}
	}
	e.apply(target, invoice, vendorIDs)

	if existing != nil {
		return false, e.expenses.Update(ctx, target)
	}
	return true, e.expenses.Create(ctx, target)
}

// apply overwrites the synced fields; last write wins
func (e *Engine) apply(expense *models.Expense, invoice Invoice, vendorIDs map[string]uuid.UUID) {
	expense.Amount = invoice.Total.Abs()
	expense.VATAmount = invoice.VAT

	expense.Currency = strings.TrimSpace(invoice.Currency)
	if expense.Currency == "" {
		expense.Currency = models.DefaultCurrency
	}

	if invoice.Date != nil && !invoice.Date.IsZero() {
		expense.TransactionDate = *invoice.Date
	} else {
		now := e.now().UTC()
		expense.TransactionDate = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}

	description := descriptionFallback
	if ref := strings.TrimSpace(invoice.Reference); ref != "" {
		description = "Invoice " + ref
	} else if key := invoice.Key(); key != "" {
		description = "Invoice " + key
	}
	expense.Description = &description

	expense.Category = models.DefaultCategory
	expense.Type = models.ExpenseTypeInvoice

	// an unresolved vendor keeps whatever link the expense already has
	if id, ok := vendorIDs[invoice.SupplierName]; ok {
		vendorID := id
		expense.VendorID = &vendorID
	} else if NormalizeVendorName(invoice.SupplierName) == "" {
		expense.VendorID = nil
	}
}
