package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/linqan85-spec/spendo-sub000/pkg/kleer"
	"github.com/linqan85-spec/spendo-sub000/pkg/models"
	"github.com/linqan85-spec/spendo-sub000/pkg/repositories"
	"github.com/linqan85-spec/spendo-sub000/pkg/syncer"
)

// KleerHandler handles the Kleer connect and sync endpoints
type KleerHandler struct {
	provider  *kleer.Provider
	sync      *syncer.Service
	companies repositories.CompanyRepo
}

func NewKleerHandler(provider *kleer.Provider, sync *syncer.Service, companies repositories.CompanyRepo) *KleerHandler {
	return &KleerHandler{provider: provider, sync: sync, companies: companies}
}

type KleerConnectRequest struct {
	CompanyID      string `json:"company_id" validate:"required"`
	APIToken       string `json:"api_token" validate:"required"`
	KleerCompanyID string `json:"kleer_company_id" validate:"required"`
}

type KleerConnectResponse struct {
	Success     bool                `json:"success"`
	Integration *models.Integration `json:"integration"`
}

func (h *KleerHandler) RegisterRoutes(g *echo.Group) {
	kl := g.Group("/integrations/kleer")
	kl.POST("/connect", h.Connect)
	kl.POST("/sync", h.Sync)
}

// Connect handles POST /integrations/kleer/connect
func (h *KleerHandler) Connect(c echo.Context) error {
	req, err := BindRequest[KleerConnectRequest](c)
	if err != nil {
		return err
	}

	ctx, err := requireMember(c.Request().Context(), h.companies, req.CompanyID)
	if err != nil {
		return err
	}

	integration, err := h.provider.Connect(ctx, req.APIToken, req.KleerCompanyID)
	if err != nil {
		return syncer.ToHTTPError(err)
	}

	return SuccessResponse(c, KleerConnectResponse{Success: true, Integration: integration})
}

// Sync handles POST /integrations/kleer/sync
func (h *KleerHandler) Sync(c echo.Context) error {
	result, err := h.sync.Sync(withProvider(c, models.ProviderKleer), models.ProviderKleer)
	if err != nil {
		return syncer.ToHTTPError(err)
	}
	return SuccessResponse(c, result)
}
