package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/linqan85-spec/spendo-sub000/pkg/context"
	"github.com/linqan85-spec/spendo-sub000/pkg/models"
	"github.com/linqan85-spec/spendo-sub000/pkg/repositories/memory"
)

func newEngine(t *testing.T) (*Engine, *memory.Store, context.Context, uuid.UUID) {
	t.Helper()
	store := memory.NewStore()
	companyID := uuid.New()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	engine := NewEngine(store.VendorRepo(), store.ExpenseRepo(), logger)
	engine.now = func() time.Time { return time.Date(2024, 6, 15, 13, 45, 0, 0, time.UTC) }
	return engine, store, appctx.SetTenantID(context.Background(), companyID.String()), companyID
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func sampleInvoices() []Invoice {
	return []Invoice{
		{Number: "101", Reference: "F-101", SupplierName: "Acme AB", Total: decimal.NewFromInt(1200), Currency: "SEK", Date: date(2024, 5, 1)},
		{Number: "102", Reference: "F-102", SupplierName: "Globex", Total: decimal.NewFromInt(800), Currency: "EUR", Date: date(2024, 5, 2)},
		{Number: "103", Reference: "F-103", SupplierName: "Acme AB", Total: decimal.NewFromInt(50), Date: date(2024, 5, 3)},
	}
}

func TestExternalID(t *testing.T) {
	assert.Equal(t, "fortnox-si-42", ExternalID(models.ProviderFortnox, Invoice{Number: "42", FallbackNumber: "7"}))
	assert.Equal(t, "fortnox-si-7", ExternalID(models.ProviderFortnox, Invoice{FallbackNumber: "7"}))
	assert.Equal(t, "kleer-si-9", ExternalID(models.ProviderKleer, Invoice{Number: " 9 "}))
	assert.Equal(t, "", ExternalID(models.ProviderFortnox, Invoice{}))
}

func TestNormalizeVendorName(t *testing.T) {
	assert.Equal(t, "acme ab", NormalizeVendorName("Acme AB"))
	assert.Equal(t, "acme ab", NormalizeVendorName("  acme ab  "))
	assert.Equal(t, "", NormalizeVendorName("   "))
}

func TestReconcile_CreatesVendorsAndExpenses(t *testing.T) {
	engine, store, ctx, companyID := newEngine(t)

	summary := engine.Reconcile(ctx, models.ProviderFortnox, sampleInvoices())
	assert.Equal(t, Summary{InvoicesFetched: 3, VendorsCreated: 2, ExpensesCreated: 3}, summary)

	vendors := store.Vendors(companyID)
	require.Len(t, vendors, 2)
	assert.Equal(t, "acme ab", vendors[0].NormalizedName)
	assert.Equal(t, models.DefaultCategory, vendors[0].DefaultCategory)
	assert.False(t, vendors[0].IsSaaS)

	expenses := store.Expenses(companyID)
	require.Len(t, expenses, 3)
	first := expenses[0]
	assert.Equal(t, "fortnox-si-101", *first.ExternalID)
	assert.Equal(t, vendors[0].ID, *first.VendorID)
	assert.Equal(t, models.ExpenseTypeInvoice, first.Type)
	assert.Equal(t, models.DefaultCategory, first.Category)
	assert.Equal(t, "Invoice F-101", *first.Description)
	assert.Equal(t, "SEK", expenses[2].Currency, "missing currency falls back to SEK")
	assert.Equal(t, "EUR", expenses[1].Currency)
}

func TestReconcile_IsIdempotent(t *testing.T) {
	engine, store, ctx, companyID := newEngine(t)

	engine.Reconcile(ctx, models.ProviderFortnox, sampleInvoices())
	before := store.Expenses(companyID)

	summary := engine.Reconcile(ctx, models.ProviderFortnox, sampleInvoices())
	assert.Equal(t, Summary{InvoicesFetched: 3, VendorsCreated: 0, ExpensesCreated: 0, ExpensesUpdated: 3}, summary)
	assert.Len(t, store.Vendors(companyID), 2)

	after := store.Expenses(companyID)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.True(t, before[i].Amount.Equal(after[i].Amount))
		assert.Equal(t, before[i].TransactionDate, after[i].TransactionDate)
		assert.Equal(t, *before[i].Description, *after[i].Description)
	}
}

func TestReconcile_NormalizesSign(t *testing.T) {
	engine, store, ctx, companyID := newEngine(t)

	engine.Reconcile(ctx, models.ProviderFortnox, []Invoice{
		{Number: "1", SupplierName: "Acme AB", Total: decimal.NewFromInt(-1500)},
	})

	expenses := store.Expenses(companyID)
	require.Len(t, expenses, 1)
	assert.True(t, decimal.NewFromInt(1500).Equal(expenses[0].Amount), "got %s", expenses[0].Amount)
}

func TestReconcile_DedupKeyCollapsesFallbackNumbers(t *testing.T) {
	engine, store, ctx, companyID := newEngine(t)

	summary := engine.Reconcile(ctx, models.ProviderFortnox, []Invoice{
		{Number: "42", Total: decimal.NewFromInt(10)},
		{FallbackNumber: "42", Total: decimal.NewFromInt(20)},
	})

	assert.Equal(t, 1, summary.ExpensesCreated)
	assert.Equal(t, 1, summary.ExpensesUpdated)
	expenses := store.Expenses(companyID)
	require.Len(t, expenses, 1)
	assert.Equal(t, "fortnox-si-42", *expenses[0].ExternalID)
	assert.True(t, decimal.NewFromInt(20).Equal(expenses[0].Amount))
	assert.Nil(t, expenses[0].VendorID)
}

func TestReconcile_NormalizesVendorNames(t *testing.T) {
	engine, store, ctx, companyID := newEngine(t)

	summary := engine.Reconcile(ctx, models.ProviderFortnox, []Invoice{
		{Number: "1", SupplierName: "Acme AB", Total: decimal.NewFromInt(1)},
		{Number: "2", SupplierName: "  acme ab  ", Total: decimal.NewFromInt(2)},
	})

	assert.Equal(t, 1, summary.VendorsCreated)
	vendors := store.Vendors(companyID)
	require.Len(t, vendors, 1)

	expenses := store.Expenses(companyID)
	require.Len(t, expenses, 2)
	assert.Equal(t, vendors[0].ID, *expenses[0].VendorID)
	assert.Equal(t, vendors[0].ID, *expenses[1].VendorID)
}

func TestReconcile_MissingDateUsesToday(t *testing.T) {
	engine, store, ctx, companyID := newEngine(t)

	engine.Reconcile(ctx, models.ProviderFortnox, []Invoice{{Number: "1", Total: decimal.NewFromInt(1)}})

	expenses := store.Expenses(companyID)
	require.Len(t, expenses, 1)
	assert.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), expenses[0].TransactionDate)
}

func TestReconcile_SkipsFailedRecords(t *testing.T) {
	engine, store, ctx, companyID := newEngine(t)
	store.FailVendorNames["globex"] = true
	store.FailExpenseWrites["fortnox-si-101"] = true

	summary := engine.Reconcile(ctx, models.ProviderFortnox, append(sampleInvoices(),
		Invoice{SupplierName: "No Number AB", Total: decimal.NewFromInt(5)},
	))

	assert.Equal(t, 4, summary.InvoicesFetched)
	assert.Equal(t, 2, summary.VendorsCreated)
	assert.Equal(t, 2, summary.ExpensesCreated)
	assert.Equal(t, 0, summary.ExpensesUpdated)

	expenses := store.Expenses(companyID)
	require.Len(t, expenses, 2)
	assert.Equal(t, "fortnox-si-102", *expenses[0].ExternalID)
	assert.Nil(t, expenses[0].VendorID, "an invoice whose vendor failed keeps a null vendor")
}

func TestReconcile_PreservesManualExpenses(t *testing.T) {
	engine, store, ctx, companyID := newEngine(t)

	manual := &models.Expense{Amount: decimal.NewFromInt(99), Currency: "SEK", Category: "travel", Type: models.ExpenseTypeExpense}
	require.NoError(t, store.ExpenseRepo().Create(ctx, manual))

	engine.Reconcile(ctx, models.ProviderFortnox, sampleInvoices())
	engine.Reconcile(ctx, models.ProviderFortnox, sampleInvoices())

	expenses := store.Expenses(companyID)
	require.Len(t, expenses, 4)
	assert.Nil(t, expenses[0].ExternalID)
	assert.Equal(t, "travel", expenses[0].Category)
	assert.True(t, decimal.NewFromInt(99).Equal(expenses[0].Amount))
}

func TestReconcile_UnresolvedVendorKeepsExistingLink(t *testing.T) {
	engine, store, ctx, companyID := newEngine(t)

	engine.Reconcile(ctx, models.ProviderFortnox, sampleInvoices())
	linked := store.Expenses(companyID)
	require.NotNil(t, linked[0].VendorID)

	store.FailVendorNames["acme ab"] = true
	summary := engine.Reconcile(ctx, models.ProviderFortnox, sampleInvoices())
	assert.Equal(t, 3, summary.ExpensesUpdated)

	expenses := store.Expenses(companyID)
	require.NotNil(t, expenses[0].VendorID)
	assert.Equal(t, *linked[0].VendorID, *expenses[0].VendorID)
	require.NotNil(t, expenses[2].VendorID)
	assert.Equal(t, *linked[2].VendorID, *expenses[2].VendorID)
}

func TestReconcile_BlankSupplierClearsVendor(t *testing.T) {
	engine, store, ctx, companyID := newEngine(t)

	engine.Reconcile(ctx, models.ProviderFortnox, sampleInvoices()[:1])
	require.NotNil(t, store.Expenses(companyID)[0].VendorID)

	invoice := sampleInvoices()[0]
	invoice.SupplierName = "  "
	engine.Reconcile(ctx, models.ProviderFortnox, []Invoice{invoice})
	assert.Nil(t, store.Expenses(companyID)[0].VendorID)
}
