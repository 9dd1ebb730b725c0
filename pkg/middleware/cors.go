package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// CORSAllowHeaders are the request headers browser clients send to the API.
var CORSAllowHeaders = []string{
	echo.HeaderAuthorization,
	echo.HeaderContentType,
	"x-client-info",
	"apikey",
}

// CORS answers preflight requests for the configured origins and methods.
func CORS(origins, methods []string) echo.MiddlewareFunc {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	}

	return echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: methods,
		AllowHeaders: CORSAllowHeaders,
	})
}
