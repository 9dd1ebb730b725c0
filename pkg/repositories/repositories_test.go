package repositories_test

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appctx "github.com/linqan85-spec/spendo-sub000/pkg/context"
	"github.com/linqan85-spec/spendo-sub000/pkg/database"
	"github.com/linqan85-spec/spendo-sub000/pkg/models"
	"github.com/linqan85-spec/spendo-sub000/pkg/repositories"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getTestDB connects to a migrated database. Tests are skipped without DB_HOST.
func getTestDB(t *testing.T) database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		t.Skip("DB_HOST not set")
	}

	cfg := database.ConnectionConfig{
		Host:     dbHost,
		Port:     envOr("DB_PORT", "5432"),
		User:     envOr("DB_USER_NAME", "user"),
		Password: envOr("DB_PASSWORD", "password"),
		Name:     envOr("DB_NAME", "spendo"),
		SSLMode:  "disable",
	}
	db, err := sqlx.Connect("postgres", cfg.DSN())
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(func() { _ = db.Close() })

	return database.NewDatabaseInstance(db, getTestLogger())
}

// seedCompany inserts a company and a member profile and returns a tenant-scoped context
func seedCompany(t *testing.T, db database.DB) (context.Context, uuid.UUID, uuid.UUID) {
	t.Helper()
	companyID := uuid.New()
	userID := uuid.New()

	_, err := db.ExecContext(context.Background(),
		"INSERT INTO companies (id, name, subscription_status) VALUES ($1, $2, 'active')", companyID, "Test AB")
	require.NoError(t, err)
	_, err = db.ExecContext(context.Background(),
		"INSERT INTO profiles (id, company_id) VALUES ($1, $2)", userID, companyID)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = db.ExecContext(context.Background(), "DELETE FROM profiles WHERE id = $1", userID)
		_, _ = db.ExecContext(context.Background(), "DELETE FROM companies WHERE id = $1", companyID)
	})

	return appctx.SetTenantID(context.Background(), companyID.String()), companyID, userID
}

func assertNotFound(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func strPtr(s string) *string { return &s }

func TestCompanyRepository_ResolvesMembership(t *testing.T) {
	db := getTestDB(t)
	ctx, companyID, userID := seedCompany(t, db)
	repo := repositories.NewCompanyRepository(db, getTestLogger())

	got, err := repo.GetCompanyIDForUser(ctx, userID.String())
	require.NoError(t, err)
	assert.Equal(t, companyID, got)

	member, err := repo.IsMember(ctx, userID.String(), companyID)
	require.NoError(t, err)
	assert.True(t, member)

	member, err = repo.IsMember(ctx, uuid.NewString(), companyID)
	require.NoError(t, err)
	assert.False(t, member)

	company, err := repo.GetByID(ctx, companyID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, company.SubscriptionStatus)

	_, err = repo.GetCompanyIDForUser(ctx, uuid.NewString())
	assertNotFound(t, err)
}

func TestIntegrationRepository_Lifecycle(t *testing.T) {
	db := getTestDB(t)
	ctx, _, _ := seedCompany(t, db)
	repo := repositories.NewIntegrationRepository(db, getTestLogger())

	_, err := repo.GetByProvider(ctx, models.ProviderFortnox)
	assertNotFound(t, err)

	first := &models.Integration{
		Provider:     models.ProviderFortnox,
		AccessToken:  strPtr("access-1"),
		RefreshToken: strPtr("refresh-1"),
		Status:       models.IntegrationStatusActive,
	}
	require.NoError(t, repo.Upsert(ctx, first))

	second := &models.Integration{
		Provider:     models.ProviderFortnox,
		AccessToken:  strPtr("access-2"),
		RefreshToken: strPtr("refresh-2"),
		Status:       models.IntegrationStatusActive,
	}
	require.NoError(t, repo.Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID, "upsert must reuse the (company, provider) row")

	require.NoError(t, repo.RotateTokens(ctx, first.ID, models.TokenPair{AccessToken: "access-3", RefreshToken: "refresh-3"}))

	stored, err := repo.GetByProvider(ctx, models.ProviderFortnox)
	require.NoError(t, err)
	assert.Equal(t, "access-3", *stored.AccessToken)
	assert.Equal(t, "refresh-3", *stored.RefreshToken)

	syncedAt := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.TouchLastSynced(ctx, stored.ID, syncedAt))
	require.NoError(t, repo.MarkStatus(ctx, stored.ID, models.IntegrationStatusError))

	require.NoError(t, repo.Disconnect(ctx, models.ProviderFortnox))
	stored, err = repo.GetByProvider(ctx, models.ProviderFortnox)
	require.NoError(t, err)
	assert.Nil(t, stored.AccessToken)
	assert.Nil(t, stored.RefreshToken)
	assert.Equal(t, models.IntegrationStatusInactive, stored.Status)
	require.NotNil(t, stored.LastSyncedAt)
	assert.True(t, syncedAt.Equal(stored.LastSyncedAt.UTC()))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assertNotFound(t, repo.Disconnect(ctx, models.ProviderKleer))
}

func TestVendorRepository_GetOrCreateIsIdempotent(t *testing.T) {
	db := getTestDB(t)
	ctx, _, _ := seedCompany(t, db)
	repo := repositories.NewVendorRepository(db, getTestLogger())

	first := &models.Vendor{Name: "Acme AB", NormalizedName: "acme ab"}
	created, err := repo.GetOrCreate(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)

	second := &models.Vendor{Name: "  ACME AB ", NormalizedName: "acme ab"}
	created, err = repo.GetOrCreate(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Acme AB", second.Name)
	assert.Equal(t, models.DefaultCategory, second.DefaultCategory)
}

func TestExpenseRepository_CreateAndUpdate(t *testing.T) {
	db := getTestDB(t)
	ctx, _, _ := seedCompany(t, db)
	repo := repositories.NewExpenseRepository(db, getTestLogger())

	externalID := "fortnox-si-" + uuid.NewString()
	_, err := repo.GetByExternalID(ctx, externalID)
	assertNotFound(t, err)

	expense := &models.Expense{
		ExternalID:      &externalID,
		Amount:          decimal.RequireFromString("1500.00"),
		VATAmount:       decimal.NewNullDecimal(decimal.RequireFromString("300.00")),
		Currency:        models.DefaultCurrency,
		TransactionDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Category:        models.DefaultCategory,
		Type:            models.ExpenseTypeInvoice,
	}
	require.NoError(t, repo.Create(ctx, expense))

	expense.Amount = decimal.RequireFromString("1750.50")
	require.NoError(t, repo.Update(ctx, expense))

	stored, err := repo.GetByExternalID(ctx, externalID)
	require.NoError(t, err)
	assert.Equal(t, expense.ID, stored.ID)
	assert.True(t, decimal.RequireFromString("1750.50").Equal(stored.Amount))
}

func TestRepositories_RequireTenant(t *testing.T) {
	repo := repositories.NewIntegrationRepository(nil, getTestLogger())

	_, err := repo.GetByProvider(context.Background(), models.ProviderFortnox)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, httperror.GetStatusCode(err))
}
