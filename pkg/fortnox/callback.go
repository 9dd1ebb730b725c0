package fortnox

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/Gobusters/ectologger"

	appctx "github.com/linqan85-spec/spendo-sub000/pkg/context"
	"github.com/linqan85-spec/spendo-sub000/pkg/models"
	"github.com/linqan85-spec/spendo-sub000/pkg/tracing"
)

// Error codes carried by the fortnox_error redirect parameter
const (
	CallbackErrorMissingParams = "missing_params"
	CallbackErrorTokenExchange = "token_exchange"
	CallbackErrorInvalidTokens = "invalid_tokens"
	CallbackErrorDatabase      = "db_error"
)

// IntegrationWriter stores the tokens issued by the callback
type IntegrationWriter interface {
	Upsert(ctx context.Context, integration *models.Integration) error
}

// CallbackParams are the query parameters Fortnox redirects back with
type CallbackParams struct {
	Code  string
	State string
	Error string
}

// Connector completes the authorization-code flow. It only ever produces a redirect URL;
// failures become a fortnox_error code for the frontend to show.
type Connector struct {
	oauth        *OAuth
	integrations IntegrationWriter
	redirectBase string
	logger       ectologger.Logger
}

// NewConnector redirects to appURL joined with integrationsPath
func NewConnector(oauth *OAuth, integrations IntegrationWriter, appURL, integrationsPath string, logger ectologger.Logger) *Connector {
	return &Connector{
		oauth:        oauth,
		integrations: integrations,
		redirectBase: strings.TrimRight(appURL, "/") + "/" + strings.TrimLeft(integrationsPath, "/"),
		logger:       logger,
	}
}

// HandleCallback exchanges the code, stores the tokens for the tenant named by state and
// returns where to send the browser
func (c *Connector) HandleCallback(ctx context.Context, params CallbackParams) string {
	ctx, span := tracing.StartSpan(ctx, "fortnox.Connector.HandleCallback")
	defer span.End()

	if params.Error != "" {
		return c.fail(ctx, params, params.Error, nil)
	}
	if params.Code == "" || params.State == "" {
		return c.fail(ctx, params, CallbackErrorMissingParams, nil)
	}

	pair, err := c.oauth.Exchange(ctx, params.Code)
	if err != nil {
		tracing.RecordError(span, err)
		if errors.Is(err, ErrInvalidTokens) {
			return c.fail(ctx, params, CallbackErrorInvalidTokens, err)
		}
		return c.fail(ctx, params, CallbackErrorTokenExchange, err)
	}

	ctx = appctx.SetTenantID(ctx, params.State)
	integration := &models.Integration{
		Provider:     models.ProviderFortnox,
		AccessToken:  &pair.AccessToken,
		RefreshToken: &pair.RefreshToken,
		Status:       models.IntegrationStatusActive,
	}
	if err := c.integrations.Upsert(ctx, integration); err != nil {
		tracing.RecordError(span, err)
		return c.fail(ctx, params, CallbackErrorDatabase, err)
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":      params.State,
		"integration_id": integration.ID,
	}).Info("Fortnox connected")

	return c.redirect("fortnox_success", "true")
}

func (c *Connector) fail(ctx context.Context, params CallbackParams, code string, err error) string {
	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"fortnox_error": code,
		"tenant_id":     params.State,
	})
	if err != nil {
		log = log.WithError(err)
	}
	log.Warn("Fortnox authorization failed")

	return c.redirect("fortnox_error", code)
}

func (c *Connector) redirect(key, value string) string {
	u, err := url.Parse(c.redirectBase)
	if err != nil {
		return c.redirectBase + "?" + url.Values{key: {value}}.Encode()
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
