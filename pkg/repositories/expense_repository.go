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

const expensesTable = "expenses"

var expenseStruct = database.NewStruct(new(models.Expense))

// ExpenseRepository handles database operations for expenses
type ExpenseRepository struct {
	*Repository
}

func NewExpenseRepository(db database.DB, logger ectologger.Logger) *ExpenseRepository {
	return &ExpenseRepository{
		Repository: NewRepository(db, logger),
	}
}

// GetByExternalID retrieves a synced expense by its reconciliation key (tenant-scoped)
func (r *ExpenseRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Expense, error) {
	ctx, span := tracing.StartSpan(ctx, "ExpenseRepository.GetByExternalID")
	defer span.End()
	defer r.observe("expenses.get_by_external_id")()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return nil, err
	}

	sb := expenseStruct.SelectFrom(expensesTable)
	sb.Where(sb.Equal("company_id", tenantID), sb.Equal("external_id", externalID))

	query, args := sb.Build()
	var expense models.Expense
	err = r.Executor(ctx).GetContext(ctx, &expense, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "expense %s does not exist", externalID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("external_id", externalID).Error("failed to get expense")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get expense")
	}

	return &expense, nil
}

// Create inserts a new expense
func (r *ExpenseRepository) Create(ctx context.Context, expense *models.Expense) error {
	ctx, span := tracing.StartSpan(ctx, "ExpenseRepository.Create")
	defer span.End()
	defer r.observe("expenses.create")()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}
	expense.CompanyID = tenantID

	if expense.ID == uuid.Nil {
		expense.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(expensesTable).
		Cols("id", "company_id", "vendor_id", "external_id", "amount", "vat_amount", "currency", "transaction_date",
			"description", "category", "type", "is_recurring", "created_at", "updated_at").
		Values(expense.ID, expense.CompanyID, expense.VendorID, expense.ExternalID, expense.Amount, expense.VATAmount,
			expense.Currency, expense.TransactionDate, expense.Description, expense.Category, expense.Type,
			expense.IsRecurring, database.Now(), database.Now()).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err = r.Executor(ctx).QueryRowContext(ctx, query, args...).Scan(&expense.CreatedAt, &expense.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"expense_id":  expense.ID,
			"external_id": expense.ExternalID,
		}).Error("failed to create expense")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create expense")
	}

	return nil
}

// Update overwrites the synced fields of an existing expense
func (r *ExpenseRepository) Update(ctx context.Context, expense *models.Expense) error {
	ctx, span := tracing.StartSpan(ctx, "ExpenseRepository.Update")
	defer span.End()
	defer r.observe("expenses.update")()

	tenantID, err := GetTenantID(ctx)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	ub.Update(expensesTable).
		Set(
			ub.Assign("vendor_id", expense.VendorID),
			ub.Assign("amount", expense.Amount),
			ub.Assign("vat_amount", expense.VATAmount),
			ub.Assign("currency", expense.Currency),
			ub.Assign("transaction_date", expense.TransactionDate),
			ub.Assign("description", expense.Description),
			ub.Assign("category", expense.Category),
			ub.Assign("type", expense.Type),
			ub.Assign("updated_at", database.Now()),
		).
		Where(ub.Equal("company_id", tenantID), ub.Equal("id", expense.ID))
	ub.Returning("updated_at")

	query, args := ub.Build()
	err = r.Executor(ctx).QueryRowContext(ctx, query, args...).Scan(&expense.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "expense %s does not exist", expense.ID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("expense_id", expense.ID).Error("failed to update expense")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update expense")
	}

	return nil
}
