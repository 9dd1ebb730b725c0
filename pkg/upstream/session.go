package upstream

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/linqan85-spec/spendo-sub000/pkg/httpclient"
	"github.com/linqan85-spec/spendo-sub000/pkg/metrics"
	"github.com/linqan85-spec/spendo-sub000/pkg/models"
	"github.com/linqan85-spec/spendo-sub000/pkg/tracing"
)

// TokenStore is the part of the token store a session writes to
type TokenStore interface {
	RotateTokens(ctx context.Context, id uuid.UUID, pair models.TokenPair) error
	MarkStatus(ctx context.Context, id uuid.UUID, status models.IntegrationStatus) error
}

// Refresher exchanges a refresh token for a new token pair
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error)
}

// Authorize applies the access token to an outgoing request
type Authorize func(req *http.Request, accessToken string)

// BearerAuth sends the token as an OAuth2 bearer token
func BearerAuth(req *http.Request, accessToken string) {
	req.Header.Set("Authorization", "Bearer "+accessToken)
}

// SessionConfig describes how to talk to one provider
type SessionConfig struct {
	Provider  models.Provider
	BaseURL   string
	Authorize Authorize
	// Refresher is nil for providers with static API tokens
	Refresher Refresher
	// Throttle is optional
	Throttle Throttle
}

// Session is a Caller bound to one integration's credentials. A 401 triggers exactly one
// refresh, persisted through the token store before the single retry; a second 401, a
// failed refresh, or a 401 without a way to refresh marks the integration as errored and
// fails with ErrReconnectRequired. Sessions are not safe for concurrent use.
type Session struct {
	cfg           SessionConfig
	http          *httpclient.Client
	store         TokenStore
	logger        ectologger.Logger
	integrationID uuid.UUID
	tenantID      string
	accessToken   string
	refreshToken  string
}

// NewSession binds cfg to the integration's current tokens
func NewSession(cfg SessionConfig, client *httpclient.Client, store TokenStore, integration *models.Integration, logger ectologger.Logger) *Session {
	if cfg.Authorize == nil {
		cfg.Authorize = BearerAuth
	}

	s := &Session{
		cfg:           cfg,
		http:          client,
		store:         store,
		logger:        logger,
		integrationID: integration.ID,
		tenantID:      integration.CompanyID.String(),
	}
	if integration.AccessToken != nil {
		s.accessToken = *integration.AccessToken
	}
	if integration.RefreshToken != nil {
		s.refreshToken = *integration.RefreshToken
	}
	return s
}

// Call executes req with the refresh-and-retry contract
func (s *Session) Call(ctx context.Context, req Request) (*httpclient.Response, error) {
	ctx, span := tracing.StartSpan(ctx, "upstream.Call",
		attribute.String("provider", string(s.cfg.Provider)),
		attribute.String("path", req.Path),
	)
	defer span.End()

	resp, err := s.do(ctx, req)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	if s.cfg.Refresher == nil || s.refreshToken == "" {
		err := s.reconnect(ctx, fmt.Errorf("%s rejected the access token", s.cfg.Provider))
		tracing.RecordError(span, err)
		return nil, err
	}

	s.logger.WithContext(ctx).WithField("provider", s.cfg.Provider).Info("access token rejected, refreshing")
	if err := s.refresh(ctx); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	resp, err = s.do(ctx, req)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		err := s.reconnect(ctx, fmt.Errorf("%s rejected the refreshed access token", s.cfg.Provider))
		tracing.RecordError(span, err)
		return nil, err
	}
	return resp, nil
}

func (s *Session) refresh(ctx context.Context) error {
	pair, err := s.cfg.Refresher.Refresh(ctx, s.refreshToken)
	if err != nil {
		metrics.RecordTokenRefresh(string(s.cfg.Provider), "failed")
		return s.reconnect(ctx, err)
	}

	if err := s.store.RotateTokens(ctx, s.integrationID, pair); err != nil {
		metrics.RecordTokenRefresh(string(s.cfg.Provider), "persist_failed")
		s.logger.WithContext(ctx).WithError(err).WithField("integration_id", s.integrationID).Error("failed to persist refreshed tokens")
		return fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	s.accessToken = pair.AccessToken
	s.refreshToken = pair.RefreshToken
	metrics.RecordTokenRefresh(string(s.cfg.Provider), "success")
	s.logger.WithContext(ctx).WithField("integration_id", s.integrationID).Info("Refreshed and stored new tokens")
	return nil
}

// reconnect flags the integration so the user is prompted to authorize again
func (s *Session) reconnect(ctx context.Context, cause error) error {
	if err := s.store.MarkStatus(ctx, s.integrationID, models.IntegrationStatusError); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("integration_id", s.integrationID).Error("failed to mark integration as errored")
	}
	s.logger.WithContext(ctx).WithError(cause).WithFields(map[string]any{
		"integration_id": s.integrationID,
		"provider":       s.cfg.Provider,
	}).Warn("integration requires reconnect")
	return fmt.Errorf("%w: %w", ErrReconnectRequired, cause)
}

func (s *Session) do(ctx context.Context, req Request) (*httpclient.Response, error) {
	if s.cfg.Throttle != nil {
		if err := s.cfg.Throttle.Wait(ctx, s.tenantID+":"+string(s.cfg.Provider), string(s.cfg.Provider)); err != nil {
			return nil, err
		}
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := strings.TrimRight(s.cfg.BaseURL, "/") + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	s.cfg.Authorize(httpReq, s.accessToken)

	resp, err := s.http.Do(ctx, httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	return resp, nil
}
