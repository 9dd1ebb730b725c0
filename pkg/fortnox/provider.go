package fortnox

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectologger"

	"github.com/linqan85-spec/spendo-sub000/pkg/expressions"
	"github.com/linqan85-spec/spendo-sub000/pkg/httpclient"
	"github.com/linqan85-spec/spendo-sub000/pkg/models"
	"github.com/linqan85-spec/spendo-sub000/pkg/reconcile"
	"github.com/linqan85-spec/spendo-sub000/pkg/tracing"
	"github.com/linqan85-spec/spendo-sub000/pkg/upstream"
)

const (
	companyInformationPath = "/companyinformation"
	supplierInvoicesPath   = "/supplierinvoices"
	supplierInvoicesItems  = "SupplierInvoices"

	DefaultPageSize = 500
)

// ProviderConfig configures the Fortnox data API
type ProviderConfig struct {
	APIURL   string
	PageSize int
	Throttle upstream.Throttle
}

// Provider reads supplier invoices from the Fortnox API
type Provider struct {
	cfg       ProviderConfig
	oauth     *OAuth
	http      *httpclient.Client
	store     upstream.TokenStore
	evaluator *expressions.Evaluator
	logger    ectologger.Logger
}

func NewProvider(cfg ProviderConfig, oauth *OAuth, client *httpclient.Client, store upstream.TokenStore, logger ectologger.Logger) *Provider {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	return &Provider{
		cfg:       cfg,
		oauth:     oauth,
		http:      client,
		store:     store,
		evaluator: expressions.NewEvaluator(),
		logger:    logger,
	}
}

func (p *Provider) Name() models.Provider {
	return models.ProviderFortnox
}

// Validate fails when the OAuth client is not configured; refreshing would be impossible
func (p *Provider) Validate() error {
	return p.oauth.Configured()
}

// Open returns a session that refreshes through the OAuth client on a 401
func (p *Provider) Open(integration *models.Integration) upstream.Caller {
	return upstream.NewSession(upstream.SessionConfig{
		Provider:  models.ProviderFortnox,
		BaseURL:   p.cfg.APIURL,
		Authorize: upstream.BearerAuth,
		Refresher: p.oauth,
		Throttle:  p.cfg.Throttle,
	}, p.http, p.store, integration, p.logger)
}

// Probe calls the company information endpoint. A stale token is refreshed here, before
// paging starts.
func (p *Provider) Probe(ctx context.Context, caller upstream.Caller) error {
	ctx, span := tracing.StartSpan(ctx, "fortnox.Provider.Probe")
	defer span.End()

	resp, err := caller.Call(ctx, upstream.Request{Method: http.MethodGet, Path: companyInformationPath})
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	if !httpclient.IsSuccessStatus(resp.StatusCode) {
		err := fmt.Errorf("%w: company information returned %d", upstream.ErrUpstream, resp.StatusCode)
		tracing.RecordError(span, err)
		return err
	}
	return nil
}

// FetchInvoices pages through every supplier invoice
func (p *Provider) FetchInvoices(ctx context.Context, caller upstream.Caller) ([]reconcile.Invoice, error) {
	ctx, span := tracing.StartSpan(ctx, "fortnox.Provider.FetchInvoices")
	defer span.End()

	rows, err := upstream.FetchAllPages[SupplierInvoice](ctx, caller, p.evaluator, upstream.PageSpec{
		Provider:        string(models.ProviderFortnox),
		Path:            supplierInvoicesPath,
		PageSize:        p.cfg.PageSize,
		PageParam:       "page",
		SizeParam:       "limit",
		ItemsExpression: supplierInvoicesItems,
	}, p.logger)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	invoices := make([]reconcile.Invoice, 0, len(rows))
	for _, row := range rows {
		invoices = append(invoices, row.Invoice())
	}
	return invoices, nil
}
