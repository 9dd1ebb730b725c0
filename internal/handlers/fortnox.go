package handlers

import (
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/linqan85-spec/spendo-sub000/pkg/fortnox"
	"github.com/linqan85-spec/spendo-sub000/pkg/models"
	"github.com/linqan85-spec/spendo-sub000/pkg/repositories"
	"github.com/linqan85-spec/spendo-sub000/pkg/syncer"
)

// FortnoxHandler handles the Fortnox connect, sync and disconnect endpoints
type FortnoxHandler struct {
	oauth        *fortnox.OAuth
	connector    *fortnox.Connector
	sync         *syncer.Service
	companies    repositories.CompanyRepo
	integrations repositories.IntegrationRepo
	logger       ectologger.Logger
}

func NewFortnoxHandler(
	oauth *fortnox.OAuth,
	connector *fortnox.Connector,
	sync *syncer.Service,
	companies repositories.CompanyRepo,
	integrations repositories.IntegrationRepo,
	logger ectologger.Logger,
) *FortnoxHandler {
	return &FortnoxHandler{
		oauth:        oauth,
		connector:    connector,
		sync:         sync,
		companies:    companies,
		integrations: integrations,
		logger:       logger,
	}
}

// AuthURLRequest is the body of POST /integrations/fortnox/auth-url
type AuthURLRequest struct {
	CompanyID string `json:"company_id" validate:"required"`
}

type AuthURLResponse struct {
	AuthURL string `json:"auth_url"`
}

// RegisterPublicRoutes registers the routes Fortnox redirects browsers to
func (h *FortnoxHandler) RegisterPublicRoutes(g *echo.Group) {
	g.GET("/integrations/fortnox/callback", h.Callback)
}

// RegisterRoutes registers the authenticated Fortnox routes
func (h *FortnoxHandler) RegisterRoutes(g *echo.Group) {
	fx := g.Group("/integrations/fortnox")
	fx.POST("/auth-url", h.AuthURL)
	fx.POST("/sync", h.Sync)
	fx.DELETE("", h.Disconnect)
}

// AuthURL handles POST /integrations/fortnox/auth-url
func (h *FortnoxHandler) AuthURL(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := BindRequest[AuthURLRequest](c)
	if err != nil {
		return err
	}

	ctx, err = requireMember(ctx, h.companies, req.CompanyID)
	if err != nil {
		return err
	}

	authURL, err := h.oauth.AuthorizationURL(req.CompanyID)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("cannot build fortnox authorization url")
		return syncer.ToHTTPError(err)
	}

	return SuccessResponse(c, AuthURLResponse{AuthURL: authURL})
}

// Callback handles GET /integrations/fortnox/callback. It always redirects.
func (h *FortnoxHandler) Callback(c echo.Context) error {
	target := h.connector.HandleCallback(c.Request().Context(), fortnox.CallbackParams{
		Code:  c.QueryParam("code"),
		State: c.QueryParam("state"),
		Error: c.QueryParam("error"),
	})
	return c.Redirect(http.StatusFound, target)
}

// Sync handles POST /integrations/fortnox/sync
func (h *FortnoxHandler) Sync(c echo.Context) error {
	result, err := h.sync.Sync(withProvider(c, models.ProviderFortnox), models.ProviderFortnox)
	if err != nil {
		return syncer.ToHTTPError(err)
	}
	return SuccessResponse(c, result)
}

// Disconnect handles DELETE /integrations/fortnox
func (h *FortnoxHandler) Disconnect(c echo.Context) error {
	ctx, _, err := h.sync.ResolveTenant(c.Request().Context())
	if err != nil {
		return syncer.ToHTTPError(err)
	}

	if err := h.integrations.Disconnect(ctx, models.ProviderFortnox); err != nil {
		return err
	}

	h.logger.WithContext(ctx).Info("Fortnox disconnected")
	return NoContentResponse(c)
}
