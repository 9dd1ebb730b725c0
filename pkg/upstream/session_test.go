package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linqan85-spec/spendo-sub000/pkg/httpclient"
	"github.com/linqan85-spec/spendo-sub000/pkg/models"
)

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeStore struct {
	rotated  []models.TokenPair
	statuses []models.IntegrationStatus
	rotErr   error
}

func (f *fakeStore) RotateTokens(_ context.Context, _ uuid.UUID, pair models.TokenPair) error {
	if f.rotErr != nil {
		return f.rotErr
	}
	f.rotated = append(f.rotated, pair)
	return nil
}

func (f *fakeStore) MarkStatus(_ context.Context, _ uuid.UUID, status models.IntegrationStatus) error {
	f.statuses = append(f.statuses, status)
	return nil
}

type fakeRefresher struct {
	calls int
	pair  models.TokenPair
	err   error
}

func (f *fakeRefresher) Refresh(_ context.Context, _ string) (models.TokenPair, error) {
	f.calls++
	return f.pair, f.err
}

func strPtr(s string) *string { return &s }

func testIntegration() *models.Integration {
	return &models.Integration{
		ID:           uuid.New(),
		CompanyID:    uuid.New(),
		Provider:     models.ProviderFortnox,
		AccessToken:  strPtr("stale"),
		RefreshToken: strPtr("refresh-1"),
		Status:       models.IntegrationStatusActive,
	}
}

// tokenServer answers 200 only for the accepted bearer token
func tokenServer(t *testing.T, accepted string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		if r.Header.Get("Authorization") != "Bearer "+accepted {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestSession(srv *httptest.Server, refresher Refresher, store TokenStore, integration *models.Integration) *Session {
	client := httpclient.NewClient(httpclient.DefaultConfig(), silentLogger())
	return NewSession(SessionConfig{
		Provider:  models.ProviderFortnox,
		BaseURL:   srv.URL,
		Refresher: refresher,
	}, client, store, integration, silentLogger())
}

func TestSession_PassesThroughWithValidToken(t *testing.T) {
	var hits int32
	srv := tokenServer(t, "stale", &hits)
	refresher := &fakeRefresher{}
	session := newTestSession(srv, refresher, &fakeStore{}, testIntegration())

	resp, err := session.Call(context.Background(), Request{Path: "/companyinformation"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, refresher.calls)
	assert.Equal(t, int32(1), hits)
}

func TestSession_RefreshesOnceThenRetries(t *testing.T) {
	var hits int32
	srv := tokenServer(t, "fresh", &hits)
	refresher := &fakeRefresher{pair: models.TokenPair{AccessToken: "fresh", RefreshToken: "refresh-2"}}
	store := &fakeStore{}
	session := newTestSession(srv, refresher, store, testIntegration())

	resp, err := session.Call(context.Background(), Request{Path: "/companyinformation"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, refresher.calls)
	assert.Equal(t, []models.TokenPair{refresher.pair}, store.rotated)
	assert.Equal(t, int32(2), hits)

	_, err = session.Call(context.Background(), Request{Path: "/supplierinvoices"})
	require.NoError(t, err)
	assert.Equal(t, 1, refresher.calls, "later calls reuse the refreshed token")
}

func TestSession_SecondUnauthorizedRequiresReconnect(t *testing.T) {
	var hits int32
	srv := tokenServer(t, "never", &hits)
	refresher := &fakeRefresher{pair: models.TokenPair{AccessToken: "fresh", RefreshToken: "refresh-2"}}
	store := &fakeStore{}
	session := newTestSession(srv, refresher, store, testIntegration())

	_, err := session.Call(context.Background(), Request{Path: "/companyinformation"})
	assert.ErrorIs(t, err, ErrReconnectRequired)
	assert.Equal(t, 1, refresher.calls, "a second 401 must not loop")
	assert.Equal(t, int32(2), hits)
	assert.Equal(t, []models.IntegrationStatus{models.IntegrationStatusError}, store.statuses)
}

func TestSession_RefreshFailureRequiresReconnect(t *testing.T) {
	var hits int32
	srv := tokenServer(t, "fresh", &hits)
	refresher := &fakeRefresher{err: ErrRefreshFailed}
	store := &fakeStore{}
	session := newTestSession(srv, refresher, store, testIntegration())

	_, err := session.Call(context.Background(), Request{Path: "/companyinformation"})
	assert.ErrorIs(t, err, ErrReconnectRequired)
	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.Empty(t, store.rotated)
	assert.Equal(t, []models.IntegrationStatus{models.IntegrationStatusError}, store.statuses)
	assert.Equal(t, int32(1), hits)
}

func TestSession_StaticTokenUnauthorizedRequiresReconnect(t *testing.T) {
	var hits int32
	srv := tokenServer(t, "other", &hits)
	store := &fakeStore{}
	session := newTestSession(srv, nil, store, testIntegration())

	_, err := session.Call(context.Background(), Request{Path: "/companies/1"})
	assert.ErrorIs(t, err, ErrReconnectRequired)
	assert.Equal(t, []models.IntegrationStatus{models.IntegrationStatusError}, store.statuses)
}

func TestSession_PersistFailureAbortsRetry(t *testing.T) {
	var hits int32
	srv := tokenServer(t, "fresh", &hits)
	refresher := &fakeRefresher{pair: models.TokenPair{AccessToken: "fresh", RefreshToken: "refresh-2"}}
	store := &fakeStore{rotErr: errors.New("db down")}
	session := newTestSession(srv, refresher, store, testIntegration())

	_, err := session.Call(context.Background(), Request{Path: "/companyinformation"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrReconnectRequired)
	assert.Equal(t, int32(1), hits)
}

func TestSession_TransportFailureIsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	session := newTestSession(srv, nil, &fakeStore{}, testIntegration())

	_, err := session.Call(context.Background(), Request{Path: "/companyinformation"})
	assert.ErrorIs(t, err, ErrUpstream)
}

type countingThrottle struct{ keys []string }

func (c *countingThrottle) Wait(_ context.Context, key, _ string) error {
	c.keys = append(c.keys, key)
	return nil
}

func TestSession_ThrottlesEveryAttempt(t *testing.T) {
	var hits int32
	srv := tokenServer(t, "fresh", &hits)
	throttle := &countingThrottle{}
	integration := testIntegration()
	client := httpclient.NewClient(httpclient.DefaultConfig(), silentLogger())
	session := NewSession(SessionConfig{
		Provider:  models.ProviderFortnox,
		BaseURL:   srv.URL,
		Refresher: &fakeRefresher{pair: models.TokenPair{AccessToken: "fresh", RefreshToken: "r"}},
		Throttle:  throttle,
	}, client, &fakeStore{}, integration, silentLogger())

	_, err := session.Call(context.Background(), Request{Path: "/x"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		integration.CompanyID.String() + ":fortnox",
		integration.CompanyID.String() + ":fortnox",
	}, throttle.keys)
}
