package kleer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "github.com/linqan85-spec/spendo-sub000/pkg/context"
	"github.com/linqan85-spec/spendo-sub000/pkg/httpclient"
	"github.com/linqan85-spec/spendo-sub000/pkg/models"
	"github.com/linqan85-spec/spendo-sub000/pkg/repositories/memory"
	"github.com/linqan85-spec/spendo-sub000/pkg/upstream"
)

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

const (
	apiToken  = "kleer-token"
	companyID = "4711"
)

// kleerAPI serves one company and its paged supplier invoices
func kleerAPI(t *testing.T, total int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+apiToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/companies/" + companyID:
			_, _ = w.Write([]byte(`{"id":"4711","name":"Test AB"}`))
		case "/companies/" + companyID + supplierInvoicesPath:
			page, _ := strconv.Atoi(r.URL.Query().Get("page"))
			size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
			rows := []map[string]any{}
			for i := (page - 1) * size; i < page*size && i < total; i++ {
				rows = append(rows, map[string]any{
					"id":           i + 1000,
					"supplierName": "Acme AB",
					"totalAmount":  "250.00",
					"vatAmount":    "50.00",
					"invoiceDate":  "2024-02-10",
				})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": rows})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newProvider(apiURL string, store IntegrationStore) *Provider {
	return NewProvider(Config{APIURL: apiURL, PageSize: 2, VerifyTimeout: time.Second},
		httpclient.NewClient(httpclient.DefaultConfig(), silentLogger()), store, silentLogger())
}

func TestVerify(t *testing.T) {
	api := kleerAPI(t, 0)
	p := newProvider(api.URL, memory.NewStore().Integrations())

	assert.NoError(t, p.Verify(context.Background(), apiToken, companyID))
	assert.ErrorIs(t, p.Verify(context.Background(), apiToken, "9999"), upstream.ErrInvalidCompanyID)

	err := p.Verify(context.Background(), "wrong-token", companyID)
	assert.ErrorIs(t, err, upstream.ErrUpstream)
	assert.NotErrorIs(t, err, upstream.ErrInvalidCompanyID)
}

func TestVerifyTimeout(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		slow.Close()
	})

	p := NewProvider(Config{APIURL: slow.URL, VerifyTimeout: 50 * time.Millisecond},
		httpclient.NewClient(httpclient.DefaultConfig(), silentLogger()), memory.NewStore().Integrations(), silentLogger())

	start := time.Now()
	err := p.Verify(context.Background(), apiToken, companyID)
	assert.ErrorIs(t, err, upstream.ErrUpstream)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestVerifyRequiresAPIURL(t *testing.T) {
	p := newProvider("", memory.NewStore().Integrations())
	assert.ErrorIs(t, p.Verify(context.Background(), apiToken, companyID), upstream.ErrConfiguration)
}

func TestConnectStoresIntegration(t *testing.T) {
	api := kleerAPI(t, 0)
	store := memory.NewStore()
	tenantID := uuid.New()
	ctx := appctx.SetTenantID(context.Background(), tenantID.String())

	integration, err := newProvider(api.URL, store.Integrations()).Connect(ctx, apiToken, companyID)
	require.NoError(t, err)
	assert.Equal(t, models.IntegrationStatusActive, integration.Status)

	stored, ok := store.Integration(tenantID, models.ProviderKleer)
	require.True(t, ok)
	assert.Equal(t, apiToken, *stored.AccessToken)
	assert.Nil(t, stored.RefreshToken)
	assert.Equal(t, companyID, *stored.ExternalCompanyID)
}

func TestConnectRejectsUnknownCompany(t *testing.T) {
	api := kleerAPI(t, 0)
	store := memory.NewStore()
	tenantID := uuid.New()
	ctx := appctx.SetTenantID(context.Background(), tenantID.String())

	_, err := newProvider(api.URL, store.Integrations()).Connect(ctx, apiToken, "missing")
	assert.ErrorIs(t, err, upstream.ErrInvalidCompanyID)
	_, ok := store.Integration(tenantID, models.ProviderKleer)
	assert.False(t, ok)
}

func TestFetchInvoices(t *testing.T) {
	api := kleerAPI(t, 5)
	p := newProvider(api.URL, memory.NewStore().Integrations())

	token, company := apiToken, companyID
	caller := p.Open(&models.Integration{ID: uuid.New(), AccessToken: &token, ExternalCompanyID: &company})
	require.NoError(t, p.Probe(context.Background(), caller))

	invoices, err := p.FetchInvoices(context.Background(), caller)
	require.NoError(t, err)
	require.Len(t, invoices, 5)
	assert.Equal(t, "", invoices[0].Number)
	assert.Equal(t, "1000", invoices[0].Key())
	assert.Equal(t, "Acme AB", invoices[0].SupplierName)
	assert.Equal(t, "250", invoices[0].Total.String())
}

func TestRejectedTokenRequiresReconnect(t *testing.T) {
	api := kleerAPI(t, 0)
	store := memory.NewStore()
	tenantID := uuid.New()
	revoked, company := "revoked", companyID
	integration := models.Integration{
		ID:                uuid.New(),
		CompanyID:         tenantID,
		Provider:          models.ProviderKleer,
		AccessToken:       &revoked,
		ExternalCompanyID: &company,
		Status:            models.IntegrationStatusActive,
	}
	store.AddIntegration(integration)

	p := newProvider(api.URL, store.Integrations())
	ctx := appctx.SetTenantID(context.Background(), tenantID.String())
	err := p.Probe(ctx, p.Open(&integration))
	assert.ErrorIs(t, err, upstream.ErrReconnectRequired)

	stored, _ := store.Integration(tenantID, models.ProviderKleer)
	assert.Equal(t, models.IntegrationStatusError, stored.Status)
}
