package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/linqan85-spec/spendo-sub000/pkg/context"
)

func TestLoggerRecordsRequestMetadata(t *testing.T) {
	var messages []ectologger.EctoLogMessage
	logger := ectologger.NewEctoLogger(func(msg ectologger.EctoLogMessage) {
		messages = append(messages, msg)
	})

	e := echo.New()
	e.Use(Context(), Logger(logger))
	e.POST("/integrations/:provider/sync", func(c echo.Context) error {
		req := c.Request()
		c.SetRequest(req.WithContext(appctx.SetProvider(req.Context(), c.Param("provider"))))
		return c.NoContent(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodPost, "/integrations/kleer/sync", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	require.Len(t, messages, 1)
	fields := messages[0].Fields
	assert.Equal(t, "Request", messages[0].Message)
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "kleer", fields["provider"])
	assert.Equal(t, http.MethodPost, fields["method"])
	assert.Equal(t, "/integrations/:provider/sync", fields["route"])
	assert.Equal(t, http.StatusNoContent, fields["status"])
	assert.NotEmpty(t, fields["remote_ip"])
}
