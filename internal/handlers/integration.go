package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/linqan85-spec/spendo-sub000/pkg/models"
	"github.com/linqan85-spec/spendo-sub000/pkg/repositories"
	"github.com/linqan85-spec/spendo-sub000/pkg/syncer"
)

// IntegrationHandler lists the caller's integrations
type IntegrationHandler struct {
	sync         *syncer.Service
	integrations repositories.IntegrationRepo
}

func NewIntegrationHandler(sync *syncer.Service, integrations repositories.IntegrationRepo) *IntegrationHandler {
	return &IntegrationHandler{sync: sync, integrations: integrations}
}

type ListIntegrationsResponse struct {
	Integrations []models.Integration `json:"integrations"`
}

func (h *IntegrationHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/integrations", h.List)
}

// List handles GET /integrations
func (h *IntegrationHandler) List(c echo.Context) error {
	ctx, _, err := h.sync.ResolveTenant(c.Request().Context())
	if err != nil {
		return syncer.ToHTTPError(err)
	}

	integrations, err := h.integrations.List(ctx)
	if err != nil {
		return err
	}
	if integrations == nil {
		integrations = []models.Integration{}
	}

	return SuccessResponse(c, ListIntegrationsResponse{Integrations: integrations})
}
