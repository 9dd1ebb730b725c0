package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/linqan85-spec/spendo-sub000/pkg/database"
	"github.com/linqan85-spec/spendo-sub000/pkg/models"
	"github.com/linqan85-spec/spendo-sub000/pkg/tracing"
)

const integrationsTable = "integrations"

var integrationStruct = database.NewStruct(new(models.Integration))

// IntegrationRepository persists provider credentials, one row per (company, provider)
type IntegrationRepository struct {
	*Repository
}

// NewIntegrationRepository creates a new integration repository
func NewIntegrationRepository(db database.DB, logger ectologger.Logger) *IntegrationRepository {
	return &IntegrationRepository{
		Repository: NewRepository(db, logger),
	}
}

// GetByProvider retrieves the integration for a provider (tenant-scoped)
func (r *IntegrationRepository) GetByProvider(ctx context.Context, provider models.Provider) (*models.Integration, error) {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.GetByProvider")
	defer span.End()
	defer r.observe("integrations.get_by_provider")()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := integrationStruct.SelectFrom(integrationsTable)
	sb.Where(sb.Equal("company_id", tenantID), sb.Equal("provider", provider))

	query, args := sb.Build()
	var integration models.Integration
	err = r.Executor(ctx).GetContext(ctx, &integration, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFound("%s integration does not exist", provider)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"provider": provider,
		}).Error("failed to get integration by provider")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get integration")
	}

	return &integration, nil
}

// List retrieves all integrations for the current tenant
func (r *IntegrationRepository) List(ctx context.Context) ([]models.Integration, error) {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.List")
	defer span.End()
	defer r.observe("integrations.list")()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := integrationStruct.SelectFrom(integrationsTable)
	sb.Where(sb.Equal("company_id", tenantID))
	sb.OrderBy("provider")

	query, args := sb.Build()
	integrations := []models.Integration{}
	if err := r.Executor(ctx).SelectContext(ctx, &integrations, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list integrations")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list integrations")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"integration_count": len(integrations),
	}).Debugf("Listed %s", integrationsTable)
	return integrations, nil
}

// Upsert writes the integration for its provider, updating the existing row when the
// tenant already has one. ID and timestamps are filled from the stored row.
func (r *IntegrationRepository) Upsert(ctx context.Context, integration *models.Integration) error {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.Upsert")
	defer span.End()
	defer r.observe("integrations.upsert")()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}
	integration.CompanyID = tenantID

	if integration.ID == uuid.Nil {
		integration.ID = uuid.New()
	}
	if integration.Status == "" {
		integration.Status = models.IntegrationStatusActive
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(integrationsTable).
		Cols("id", "company_id", "provider", "access_token", "refresh_token", "status", "external_company_id", "created_at", "updated_at").
		Values(integration.ID, integration.CompanyID, integration.Provider, integration.AccessToken, integration.RefreshToken,
			integration.Status, integration.ExternalCompanyID, database.Now(), database.Now()).
		OnConflictUpdate([]string{"company_id", "provider"}, "access_token", "refresh_token", "status", "external_company_id", "updated_at").
		Returning("id", "last_synced_at", "created_at", "updated_at")

	query, args := ib.Build()
	err = r.Executor(ctx).QueryRowContext(ctx, query, args...).
		Scan(&integration.ID, &integration.LastSyncedAt, &integration.CreatedAt, &integration.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"provider": integration.Provider,
		}).Error("failed to upsert integration")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save integration")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"integration_id": integration.ID,
		"provider":       integration.Provider,
		"status":         integration.Status,
	}).Debugf("Upserted %s", integrationsTable)
	return nil
}

// RotateTokens replaces the token pair and reactivates the integration. The row is locked
// for the duration so overlapping refreshes serialize instead of interleaving.
func (r *IntegrationRepository) RotateTokens(ctx context.Context, id uuid.UUID, pair models.TokenPair) error {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.RotateTokens")
	defer span.End()
	defer r.observe("integrations.rotate_tokens")()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	return r.DB().WithTx(ctx, nil, func(ctx context.Context) error {
		sb := database.NewSelectBuilder()
		sb.Select("id").From(integrationsTable).
			Where(sb.Equal("company_id", tenantID), sb.Equal("id", id)).
			ForUpdate()

		query, args := sb.Build()
		var locked uuid.UUID
		err := r.Executor(ctx).GetContext(ctx, &locked, query, args...)
		if errors.Is(err, sql.ErrNoRows) {
			return NotFound("integration %s does not exist", id)
		}
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("integration_id", id).Error("failed to lock integration")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to rotate tokens")
		}

		ub := database.NewUpdateBuilder()
		ub.Update(integrationsTable).
			Set(
				ub.Assign("access_token", pair.AccessToken),
				ub.Assign("refresh_token", pair.RefreshToken),
				ub.Assign("status", models.IntegrationStatusActive),
				ub.Assign("updated_at", database.Now()),
			).
			Where(ub.Equal("company_id", tenantID), ub.Equal("id", id))

		query, args = ub.Build()
		if _, err := r.Executor(ctx).ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("integration_id", id).Error("failed to rotate tokens")
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to rotate tokens")
		}

		r.logger.WithContext(ctx).WithField("integration_id", id).Debug("Rotated integration tokens")
		return nil
	})
}

// MarkStatus sets the integration status
func (r *IntegrationRepository) MarkStatus(ctx context.Context, id uuid.UUID, status models.IntegrationStatus) error {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.MarkStatus")
	defer span.End()
	defer r.observe("integrations.mark_status")()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(integrationsTable).
		Set(
			ub.Assign("status", status),
			ub.Assign("updated_at", database.Now()),
		).
		Where(ub.Equal("company_id", tenantID), ub.Equal("id", id))

	return r.execSingle(ctx, ub, id, "failed to update integration status")
}

// TouchLastSynced records a completed sync
func (r *IntegrationRepository) TouchLastSynced(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.TouchLastSynced")
	defer span.End()
	defer r.observe("integrations.touch_last_synced")()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(integrationsTable).
		Set(
			ub.Assign("last_synced_at", at),
			ub.Assign("updated_at", database.Now()),
		).
		Where(ub.Equal("company_id", tenantID), ub.Equal("id", id))

	return r.execSingle(ctx, ub, id, "failed to update last synced time")
}

// Disconnect clears the tokens of a provider's integration and marks it inactive
func (r *IntegrationRepository) Disconnect(ctx context.Context, provider models.Provider) error {
	ctx, span := tracing.StartSpan(ctx, "IntegrationRepository.Disconnect")
	defer span.End()
	defer r.observe("integrations.disconnect")()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(integrationsTable).
		Set(
			ub.Assign("access_token", nil),
			ub.Assign("refresh_token", nil),
			ub.Assign("status", models.IntegrationStatusInactive),
			ub.Assign("updated_at", database.Now()),
		).
		Where(ub.Equal("company_id", tenantID), ub.Equal("provider", provider))

	query, args := ub.Build()
	result, err := r.Executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("provider", provider).Error("failed to disconnect integration")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to disconnect integration")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return NotFound("%s integration does not exist", provider)
	}

	r.logger.WithContext(ctx).WithField("provider", provider).Info("Disconnected integration")
	return nil
}

func (r *IntegrationRepository) execSingle(ctx context.Context, ub *database.UpdateBuilder, id uuid.UUID, failure string) error {
	query, args := ub.Build()
	result, err := r.Executor(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("integration_id", id).Error(failure)
		return httperror.NewHTTPError(http.StatusInternalServerError, failure)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return NotFound("integration %s does not exist", id)
	}
	return nil
}
