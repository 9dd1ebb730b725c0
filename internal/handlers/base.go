package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appctx "github.com/linqan85-spec/spendo-sub000/pkg/context"
	"github.com/linqan85-spec/spendo-sub000/pkg/models"
	"github.com/linqan85-spec/spendo-sub000/pkg/repositories"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// BindRequest binds the request body into T and validates its struct tags
func BindRequest[T any](c echo.Context) (T, error) {
	var v T

	if err := c.Bind(&v); err != nil {
		return v, BadRequest("invalid request body")
	}

	if err := validate.Struct(v); err != nil {
		return v, httperror.WrapError(http.StatusBadRequest, validationError(err))
	}

	return v, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed '%s'", fe.Field(), fe.Tag()))
	}
	return errors.New("invalid request: " + strings.Join(fields, ", "))
}

// withProvider tags the request with provider so the request log carries it
func withProvider(c echo.Context, provider models.Provider) context.Context {
	req := c.Request()
	ctx := appctx.SetProvider(req.Context(), string(provider))
	c.SetRequest(req.WithContext(ctx))
	return ctx
}

// requireMember binds ctx to companyID after checking the caller belongs to it
func requireMember(ctx context.Context, companies repositories.CompanyRepo, companyID string) (context.Context, error) {
	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return ctx, Unauthorized("Unauthorized")
	}

	id, err := uuid.Parse(companyID)
	if err != nil {
		return ctx, BadRequest("invalid company_id")
	}

	member, err := companies.IsMember(ctx, userID, id)
	if err != nil {
		return ctx, err
	}
	if !member {
		return ctx, Unauthorized("Unauthorized")
	}

	return appctx.SetTenantID(ctx, id.String()), nil
}

// SuccessResponse returns a 200 OK with data
func SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

// NoContentResponse returns a 204 No Content
func NoContentResponse(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// BadRequest returns a 400 Bad Request error
func BadRequest(message string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, message)
}

// Unauthorized returns a 401 Unauthorized error
func Unauthorized(message string) error {
	return httperror.NewHTTPError(http.StatusUnauthorized, message)
}
