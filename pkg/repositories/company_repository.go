package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/linqan85-spec/spendo-sub000/pkg/database"
	"github.com/linqan85-spec/spendo-sub000/pkg/models"
	"github.com/linqan85-spec/spendo-sub000/pkg/tracing"
)

const (
	companiesTable = "companies"
	profilesTable  = "profiles"
)

var companyStruct = database.NewStruct(new(models.Company))

// CompanyRepository reads tenants and user memberships
type CompanyRepository struct {
	*Repository
}

func NewCompanyRepository(db database.DB, logger ectologger.Logger) *CompanyRepository {
	return &CompanyRepository{
		Repository: NewRepository(db, logger),
	}
}

// GetByID retrieves a company with its subscription fields
func (r *CompanyRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Company, error) {
	ctx, span := tracing.StartSpan(ctx, "CompanyRepository.GetByID")
	defer span.End()
	defer r.observe("companies.get_by_id")()

	sb := companyStruct.SelectFrom(companiesTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var company models.Company
	err := r.Executor(ctx).GetContext(ctx, &company, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "company %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("company_id", id).Error("failed to get company")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get company")
	}

	return &company, nil
}

// GetCompanyIDForUser returns the company the user's profile belongs to. A user without a
// profile, or whose profile has no company, is reported as not found.
func (r *CompanyRepository) GetCompanyIDForUser(ctx context.Context, userID string) (uuid.UUID, error) {
	ctx, span := tracing.StartSpan(ctx, "CompanyRepository.GetCompanyIDForUser")
	defer span.End()
	defer r.observe("profiles.get_company_id")()

	profileID, err := uuid.Parse(userID)
	if err != nil {
		return uuid.Nil, NotFound("profile %s does not exist", userID)
	}

	sb := database.NewSelectBuilder()
	sb.Select("company_id").From(profilesTable).Where(sb.Equal("id", profileID))

	query, args := sb.Build()
	var companyID uuid.NullUUID
	err = r.Executor(ctx).GetContext(ctx, &companyID, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, NotFound("profile %s does not exist", userID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("user_id", userID).Error("failed to get profile")
		return uuid.Nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get profile")
	}
	if !companyID.Valid {
		return uuid.Nil, NotFound("profile %s has no company", userID)
	}

	return companyID.UUID, nil
}

// IsMember reports whether the user's profile belongs to the company
func (r *CompanyRepository) IsMember(ctx context.Context, userID string, companyID uuid.UUID) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "CompanyRepository.IsMember")
	defer span.End()

	actual, err := r.GetCompanyIDForUser(ctx, userID)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return actual == companyID, nil
}
