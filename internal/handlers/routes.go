package handlers

import (
	"github.com/labstack/echo/v4"
)

// Routes are the /api/v1 handlers
type Routes struct {
	Fortnox      *FortnoxHandler
	Kleer        *KleerHandler
	Integrations *IntegrationHandler
}

// Register mounts the API under /api/v1. auth guards every route except the OAuth callback.
func (r Routes) Register(e *echo.Echo, auth echo.MiddlewareFunc) {
	public := e.Group("/api/v1")
	r.Fortnox.RegisterPublicRoutes(public)

	private := e.Group("/api/v1", auth)
	r.Fortnox.RegisterRoutes(private)
	r.Kleer.RegisterRoutes(private)
	r.Integrations.RegisterRoutes(private)
}
