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

const vendorsTable = "vendors"

var vendorStruct = database.NewStruct(new(models.Vendor))

// VendorRepository handles database operations for vendors
type VendorRepository struct {
	*Repository
}

func NewVendorRepository(db database.DB, logger ectologger.Logger) *VendorRepository {
	return &VendorRepository{
		Repository: NewRepository(db, logger),
	}
}

// GetOrCreate inserts the vendor unless one with the same normalized name exists, in which
// case the stored row is loaded into vendor. Returns true when a row was created.
// The unique constraint decides the race between concurrent syncs.
func (r *VendorRepository) GetOrCreate(ctx context.Context, vendor *models.Vendor) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "VendorRepository.GetOrCreate")
	defer span.End()
	defer r.observe("vendors.get_or_create")()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return false, err
	}
	vendor.CompanyID = tenantID

	if vendor.ID == uuid.Nil {
		vendor.ID = uuid.New()
	}
	if vendor.DefaultCategory == "" {
		vendor.DefaultCategory = models.DefaultCategory
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(vendorsTable).
		Cols("id", "company_id", "name", "normalized_name", "is_saas", "default_category", "created_at", "updated_at").
		Values(vendor.ID, vendor.CompanyID, vendor.Name, vendor.NormalizedName, vendor.IsSaaS, vendor.DefaultCategory,
			database.Now(), database.Now()).
		OnConflictDoNothing("company_id", "normalized_name").
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err = r.Executor(ctx).QueryRowContext(ctx, query, args...).Scan(&vendor.CreatedAt, &vendor.UpdatedAt)
	if err == nil {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"vendor_id":       vendor.ID,
			"normalized_name": vendor.NormalizedName,
		}).Debugf("Created %s", vendorsTable)
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		r.logger.WithContext(ctx).WithError(err).WithField("normalized_name", vendor.NormalizedName).Error("failed to create vendor")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create vendor")
	}

	sb := vendorStruct.SelectFrom(vendorsTable)
	sb.Where(sb.Equal("company_id", tenantID), sb.Equal("normalized_name", vendor.NormalizedName))

	query, args = sb.Build()
	if err := r.Executor(ctx).GetContext(ctx, vendor, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("normalized_name", vendor.NormalizedName).Error("failed to get vendor")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get vendor")
	}

	return false, nil
}
