// Package memory holds in-memory repositories with the same tenancy and error contracts as
// the postgres ones. Handler and pipeline tests run against them.
package memory

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"

	"github.com/linqan85-spec/spendo-sub000/pkg/models"
	"github.com/linqan85-spec/spendo-sub000/pkg/repositories"
)

// Store is a shared backing store for every in-memory repository
type Store struct {
	mu           sync.Mutex
	companies    map[uuid.UUID]models.Company
	profiles     map[string]*uuid.UUID
	integrations map[uuid.UUID]*models.Integration
	vendors      map[uuid.UUID]*models.Vendor
	expenses     map[uuid.UUID]*models.Expense

	// FailExpenseWrites makes Create/Update fail for these external ids
	FailExpenseWrites map[string]bool
	// FailVendorNames makes GetOrCreate fail for these normalized names
	FailVendorNames map[string]bool
	// FailRotate makes RotateTokens fail
	FailRotate bool
}

func NewStore() *Store {
	return &Store{
		companies:         make(map[uuid.UUID]models.Company),
		profiles:          make(map[string]*uuid.UUID),
		integrations:      make(map[uuid.UUID]*models.Integration),
		vendors:           make(map[uuid.UUID]*models.Vendor),
		expenses:          make(map[uuid.UUID]*models.Expense),
		FailExpenseWrites: make(map[string]bool),
		FailVendorNames:   make(map[string]bool),
	}
}

// AddCompany stores a company
func (s *Store) AddCompany(company models.Company) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.companies[company.ID] = company
}

// AddProfile stores a user profile. A nil companyID models a user without a company.
func (s *Store) AddProfile(userID string, companyID *uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID] = companyID
}

// AddIntegration stores an integration as is
func (s *Store) AddIntegration(integration models.Integration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if integration.ID == uuid.Nil {
		integration.ID = uuid.New()
	}
	s.integrations[integration.ID] = &integration
}

// Integration returns a copy of the stored integration for the company and provider
func (s *Store) Integration(companyID uuid.UUID, provider models.Provider) (models.Integration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if found := s.findIntegration(companyID, provider); found != nil {
		return *found, true
	}
	return models.Integration{}, false
}

// Vendors returns the company's vendors ordered by normalized name
func (s *Store) Vendors(companyID uuid.UUID) []models.Vendor {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Vendor
	for _, v := range s.vendors {
		if v.CompanyID == companyID {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NormalizedName < out[j].NormalizedName })
	return out
}

// Expenses returns the company's expenses ordered by external id
func (s *Store) Expenses(companyID uuid.UUID) []models.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Expense
	for _, e := range s.expenses {
		if e.CompanyID == companyID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return deref(out[i].ExternalID) < deref(out[j].ExternalID)
	})
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *Store) findIntegration(companyID uuid.UUID, provider models.Provider) *models.Integration {
	for _, integration := range s.integrations {
		if integration.CompanyID == companyID && integration.Provider == provider {
			return integration
		}
	}
	return nil
}

func internal(message string) error {
	return httperror.NewHTTPError(http.StatusInternalServerError, message)
}

// Companies returns a CompanyRepo over the store
func (s *Store) Companies() repositories.CompanyRepo { return &companyRepo{s} }

// Integrations returns an IntegrationRepo over the store
func (s *Store) Integrations() repositories.IntegrationRepo { return &integrationRepo{s} }

// VendorRepo returns a VendorRepo over the store
func (s *Store) VendorRepo() repositories.VendorRepo { return &vendorRepo{s} }

// ExpenseRepo returns an ExpenseRepo over the store
func (s *Store) ExpenseRepo() repositories.ExpenseRepo { return &expenseRepo{s} }

type companyRepo struct{ s *Store }

func (r *companyRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Company, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	company, ok := r.s.companies[id]
	if !ok {
		return nil, repositories.NotFound("company %s does not exist", id)
	}
	return &company, nil
}

func (r *companyRepo) GetCompanyIDForUser(_ context.Context, userID string) (uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	companyID, ok := r.s.profiles[userID]
	if !ok {
		return uuid.Nil, repositories.NotFound("profile %s does not exist", userID)
	}
	if companyID == nil {
		return uuid.Nil, repositories.NotFound("profile %s has no company", userID)
	}
	return *companyID, nil
}

func (r *companyRepo) IsMember(ctx context.Context, userID string, companyID uuid.UUID) (bool, error) {
	actual, err := r.GetCompanyIDForUser(ctx, userID)
	if repositories.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return actual == companyID, nil
}

type integrationRepo struct{ s *Store }

func (r *integrationRepo) GetByProvider(ctx context.Context, provider models.Provider) (*models.Integration, error) {
	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	found := r.s.findIntegration(tenantID, provider)
	if found == nil {
		return nil, repositories.NotFound("%s integration does not exist", provider)
	}
	out := *found
	return &out, nil
}

func (r *integrationRepo) List(ctx context.Context) ([]models.Integration, error) {
	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Integration{}
	for _, integration := range r.s.integrations {
		if integration.CompanyID == tenantID {
			out = append(out, *integration)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out, nil
}

func (r *integrationRepo) Upsert(ctx context.Context, integration *models.Integration) error {
	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	integration.CompanyID = tenantID
	if integration.Status == "" {
		integration.Status = models.IntegrationStatusActive
	}
	now := time.Now()

	if existing := r.s.findIntegration(tenantID, integration.Provider); existing != nil {
		existing.AccessToken = integration.AccessToken
		existing.RefreshToken = integration.RefreshToken
		existing.Status = integration.Status
		existing.ExternalCompanyID = integration.ExternalCompanyID
		existing.UpdatedAt = now
		*integration = *existing
		return nil
	}

	if integration.ID == uuid.Nil {
		integration.ID = uuid.New()
	}
	integration.CreatedAt = now
	integration.UpdatedAt = now
	stored := *integration
	r.s.integrations[stored.ID] = &stored
	return nil
}

func (r *integrationRepo) get(ctx context.Context, id uuid.UUID) (*models.Integration, error) {
	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}
	integration, ok := r.s.integrations[id]
	if !ok || integration.CompanyID != tenantID {
		return nil, repositories.NotFound("integration %s does not exist", id)
	}
	return integration, nil
}

func (r *integrationRepo) RotateTokens(ctx context.Context, id uuid.UUID, pair models.TokenPair) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailRotate {
		return internal("failed to rotate tokens")
	}
	integration, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	access, refresh := pair.AccessToken, pair.RefreshToken
	integration.AccessToken = &access
	integration.RefreshToken = &refresh
	integration.Status = models.IntegrationStatusActive
	integration.UpdatedAt = time.Now()
	return nil
}

func (r *integrationRepo) MarkStatus(ctx context.Context, id uuid.UUID, status models.IntegrationStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	integration, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	integration.Status = status
	integration.UpdatedAt = time.Now()
	return nil
}

func (r *integrationRepo) TouchLastSynced(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	integration, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	integration.LastSyncedAt = &at
	integration.UpdatedAt = time.Now()
	return nil
}

func (r *integrationRepo) Disconnect(ctx context.Context, provider models.Provider) error {
	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	integration := r.s.findIntegration(tenantID, provider)
	if integration == nil {
		return repositories.NotFound("%s integration does not exist", provider)
	}
	integration.AccessToken = nil
	integration.RefreshToken = nil
	integration.Status = models.IntegrationStatusInactive
	integration.UpdatedAt = time.Now()
	return nil
}

type vendorRepo struct{ s *Store }

func (r *vendorRepo) GetOrCreate(ctx context.Context, vendor *models.Vendor) (bool, error) {
	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.FailVendorNames[vendor.NormalizedName] {
		return false, internal("failed to create vendor")
	}

	for _, existing := range r.s.vendors {
		if existing.CompanyID == tenantID && existing.NormalizedName == vendor.NormalizedName {
			*vendor = *existing
			return false, nil
		}
	}

	vendor.CompanyID = tenantID
	if vendor.ID == uuid.Nil {
		vendor.ID = uuid.New()
	}
	if vendor.DefaultCategory == "" {
		vendor.DefaultCategory = models.DefaultCategory
	}
	now := time.Now()
	vendor.CreatedAt = now
	vendor.UpdatedAt = now
	stored := *vendor
	r.s.vendors[stored.ID] = &stored
	return true, nil
}

type expenseRepo struct{ s *Store }

func (r *expenseRepo) GetByExternalID(ctx context.Context, externalID string) (*models.Expense, error) {
	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, expense := range r.s.expenses {
		if expense.CompanyID == tenantID && expense.ExternalID != nil && *expense.ExternalID == externalID {
			out := *expense
			return &out, nil
		}
	}
	return nil, repositories.NotFound("expense %s does not exist", externalID)
}

func (r *expenseRepo) Create(ctx context.Context, expense *models.Expense) error {
	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.FailExpenseWrites[deref(expense.ExternalID)] {
		return internal("failed to create expense")
	}
	if expense.ExternalID != nil {
		for _, existing := range r.s.expenses {
			if existing.CompanyID == tenantID && existing.ExternalID != nil && *existing.ExternalID == *expense.ExternalID {
				return internal("duplicate external id")
			}
		}
	}

	expense.CompanyID = tenantID
	if expense.ID == uuid.Nil {
		expense.ID = uuid.New()
	}
	now := time.Now()
	expense.CreatedAt = now
	expense.UpdatedAt = now
	stored := *expense
	r.s.expenses[stored.ID] = &stored
	return nil
}

func (r *expenseRepo) Update(ctx context.Context, expense *models.Expense) error {
	tenantID, err := repositories.GetTenantID(ctx)
	if err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.FailExpenseWrites[deref(expense.ExternalID)] {
		return internal("failed to update expense")
	}
	existing, ok := r.s.expenses[expense.ID]
	if !ok || existing.CompanyID != tenantID {
		return repositories.NotFound("expense %s does not exist", expense.ID)
	}

	existing.VendorID = expense.VendorID
	existing.Amount = expense.Amount
	existing.VATAmount = expense.VATAmount
	existing.Currency = expense.Currency
	existing.TransactionDate = expense.TransactionDate
	existing.Description = expense.Description
	existing.Category = expense.Category
	existing.Type = expense.Type
	existing.UpdatedAt = time.Now()
	expense.UpdatedAt = existing.UpdatedAt
	return nil
}
