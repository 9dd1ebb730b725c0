package middleware

import (
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	appctx "github.com/linqan85-spec/spendo-sub000/pkg/context"
	"github.com/linqan85-spec/spendo-sub000/pkg/tracing"
)

func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}
			stop := time.Now()

			ctx := c.Request().Context()
			logger.WithContext(ctx).WithFields(map[string]any{
				"request_id":    appctx.GetRequestID(ctx),
				"tenant_id":     appctx.GetTenantID(ctx),
				"user_id":       appctx.GetUserID(ctx),
				"provider":      appctx.GetProvider(ctx),
				"method":        appctx.GetMethod(ctx),
				"uri":           req.RequestURI,
				"status":        res.Status,
				"route":         appctx.GetRoute(ctx),
				"remote_ip":     appctx.GetRemoteIP(ctx),
				"trace_id":      tracing.GetTraceID(ctx),
				"span_id":       tracing.GetSpanID(ctx),
				"user_agent":    req.UserAgent(),
				"response_time": stop.Sub(start),
				"response_size": strconv.FormatInt(res.Size, 10),
			}).Info("Request")

			return nil
		}
	}
}
