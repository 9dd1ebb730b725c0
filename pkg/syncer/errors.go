package syncer

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/linqan85-spec/spendo-sub000/pkg/subscription"
	"github.com/linqan85-spec/spendo-sub000/pkg/upstream"
)

// ToHTTPError maps pipeline failures onto the API's status codes and messages
func ToHTTPError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return httperror.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, ErrNoCompany):
		return httperror.NewHTTPError(http.StatusBadRequest, "User has no company")
	case errors.Is(err, subscription.ErrSubscriptionRequired):
		return httperror.NewHTTPError(http.StatusForbidden, "Subscription required")
	case errors.Is(err, ErrNotConnected):
		return httperror.NewHTTPError(http.StatusBadRequest, "Integration is not connected")
	case errors.Is(err, ErrUnsupportedProvider):
		return httperror.NewHTTPError(http.StatusBadRequest, "Unsupported provider")
	case errors.Is(err, upstream.ErrReconnectRequired):
		return httperror.NewHTTPError(http.StatusUnauthorized, "Authorization expired, please reconnect")
	case errors.Is(err, upstream.ErrInvalidCompanyID):
		return httperror.NewHTTPError(http.StatusBadRequest, "Invalid company id")
	case errors.Is(err, upstream.ErrConfiguration):
		return httperror.NewHTTPError(http.StatusInternalServerError, "Integration is not configured")
	case errors.Is(err, upstream.ErrUpstream):
		return httperror.NewHTTPError(http.StatusInternalServerError, "Upstream request failed")
	case httperror.IsHTTPError(err):
		return err
	default:
		return httperror.NewHTTPError(http.StatusInternalServerError, "Internal Server Error")
	}
}
