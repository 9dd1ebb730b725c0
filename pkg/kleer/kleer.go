// Package kleer reads supplier invoices from Kleer. Kleer issues static API tokens per
// company, so there is no refresh grant: a rejected token means the user must reconnect.
package kleer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/linqan85-spec/spendo-sub000/pkg/expressions"
	"github.com/linqan85-spec/spendo-sub000/pkg/httpclient"
	"github.com/linqan85-spec/spendo-sub000/pkg/models"
	"github.com/linqan85-spec/spendo-sub000/pkg/reconcile"
	"github.com/linqan85-spec/spendo-sub000/pkg/tracing"
	"github.com/linqan85-spec/spendo-sub000/pkg/upstream"
)

const (
	supplierInvoicesPath  = "/supplier-invoices"
	supplierInvoicesItems = "data"

	DefaultPageSize      = 100
	DefaultVerifyTimeout = 10 * time.Second
)

// Config configures the Kleer API
type Config struct {
	APIURL        string
	PageSize      int
	VerifyTimeout time.Duration
	Throttle      upstream.Throttle
}

// IntegrationStore is what the provider needs from the token store
type IntegrationStore interface {
	upstream.TokenStore
	Upsert(ctx context.Context, integration *models.Integration) error
}

// Provider verifies Kleer credentials and pages through supplier invoices
type Provider struct {
	cfg       Config
	http      *httpclient.Client
	store     IntegrationStore
	evaluator *expressions.Evaluator
	logger    ectologger.Logger
}

func NewProvider(cfg Config, client *httpclient.Client, store IntegrationStore, logger ectologger.Logger) *Provider {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = DefaultVerifyTimeout
	}
	return &Provider{
		cfg:       cfg,
		http:      client,
		store:     store,
		evaluator: expressions.NewEvaluator(),
		logger:    logger,
	}
}

func (p *Provider) Name() models.Provider {
	return models.ProviderKleer
}

func (p *Provider) Validate() error {
	if p.cfg.APIURL == "" {
		return fmt.Errorf("%w: kleer api url is not set", upstream.ErrConfiguration)
	}
	return nil
}

// Verify checks the token against the company endpoint within the verify timeout. 404 means
// the company id is wrong; every other failure is reported as an upstream error.
func (p *Provider) Verify(ctx context.Context, apiToken, kleerCompanyID string) error {
	ctx, span := tracing.StartSpan(ctx, "kleer.Provider.Verify")
	defer span.End()

	if err := p.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.VerifyTimeout)
	defer cancel()

	target := strings.TrimRight(p.cfg.APIURL, "/") + companyPath(kleerCompanyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	upstream.BearerAuth(req, apiToken)

	resp, err := p.http.Do(ctx, req)
	if err != nil {
		tracing.RecordError(span, err)
		if errors.Is(err, context.DeadlineExceeded) {
			p.logger.WithContext(ctx).WithField("timeout", p.cfg.VerifyTimeout.String()).Warn("kleer verification timed out")
		}
		return fmt.Errorf("%w: %w", upstream.ErrUpstream, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return upstream.ErrInvalidCompanyID
	case !httpclient.IsSuccessStatus(resp.StatusCode):
		err := fmt.Errorf("%w: kleer company lookup returned %d", upstream.ErrUpstream, resp.StatusCode)
		tracing.RecordError(span, err)
		return err
	}
	return nil
}

// Connect verifies the credentials and stores them for the tenant in ctx
func (p *Provider) Connect(ctx context.Context, apiToken, kleerCompanyID string) (*models.Integration, error) {
	ctx, span := tracing.StartSpan(ctx, "kleer.Provider.Connect")
	defer span.End()

	if err := p.Verify(ctx, apiToken, kleerCompanyID); err != nil {
		return nil, err
	}

	integration := &models.Integration{
		Provider:          models.ProviderKleer,
		AccessToken:       &apiToken,
		Status:            models.IntegrationStatusActive,
		ExternalCompanyID: &kleerCompanyID,
	}
	if err := p.store.Upsert(ctx, integration); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"integration_id":   integration.ID,
		"kleer_company_id": kleerCompanyID,
	}).Info("Kleer connected")
	return integration, nil
}

// Open returns a caller scoped to the integration's Kleer company
func (p *Provider) Open(integration *models.Integration) upstream.Caller {
	session := upstream.NewSession(upstream.SessionConfig{
		Provider:  models.ProviderKleer,
		BaseURL:   p.cfg.APIURL,
		Authorize: upstream.BearerAuth,
		Throttle:  p.cfg.Throttle,
	}, p.http, p.store, integration, p.logger)

	companyID := ""
	if integration.ExternalCompanyID != nil {
		companyID = *integration.ExternalCompanyID
	}
	return &companyCaller{caller: session, prefix: companyPath(companyID)}
}

func (p *Provider) Probe(ctx context.Context, caller upstream.Caller) error {
	ctx, span := tracing.StartSpan(ctx, "kleer.Provider.Probe")
	defer span.End()

	resp, err := caller.Call(ctx, upstream.Request{Method: http.MethodGet})
	if err != nil {
		tracing.RecordError(span, err)
		return err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return upstream.ErrInvalidCompanyID
	case !httpclient.IsSuccessStatus(resp.StatusCode):
		return fmt.Errorf("%w: kleer company lookup returned %d", upstream.ErrUpstream, resp.StatusCode)
	}
	return nil
}

func (p *Provider) FetchInvoices(ctx context.Context, caller upstream.Caller) ([]reconcile.Invoice, error) {
	ctx, span := tracing.StartSpan(ctx, "kleer.Provider.FetchInvoices")
	defer span.End()

	rows, err := upstream.FetchAllPages[SupplierInvoice](ctx, caller, p.evaluator, upstream.PageSpec{
		Provider:        string(models.ProviderKleer),
		Path:            supplierInvoicesPath,
		PageSize:        p.cfg.PageSize,
		PageParam:       "page",
		SizeParam:       "pageSize",
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

func companyPath(companyID string) string {
	return "/companies/" + url.PathEscape(companyID)
}

// companyCaller prefixes every request path with the company resource
type companyCaller struct {
	caller upstream.Caller
	prefix string
}

func (c *companyCaller) Call(ctx context.Context, req upstream.Request) (*httpclient.Response, error) {
	req.Path = c.prefix + req.Path
	return c.caller.Call(ctx, req)
}

// SupplierInvoice is one row of a company's supplier-invoices collection
type SupplierInvoice struct {
	ID            upstream.FlexString `json:"id"`
	InvoiceNumber upstream.FlexString `json:"invoiceNumber"`
	SupplierName  string              `json:"supplierName"`
	TotalAmount   upstream.Amount     `json:"totalAmount"`
	VATAmount     upstream.Amount     `json:"vatAmount"`
	Currency      string              `json:"currency"`
	InvoiceDate   string              `json:"invoiceDate"`
}

func (s SupplierInvoice) Invoice() reconcile.Invoice {
	reference := s.InvoiceNumber.String()
	if reference == "" {
		reference = s.ID.String()
	}
	return reconcile.Invoice{
		Number:         s.InvoiceNumber.String(),
		FallbackNumber: s.ID.String(),
		Reference:      reference,
		SupplierName:   strings.TrimSpace(s.SupplierName),
		Total:          s.TotalAmount.OrZero(),
		VAT:            s.VATAmount.NullDecimal,
		Currency:       strings.TrimSpace(s.Currency),
		Date:           upstream.ParseDate(s.InvoiceDate),
	}
}
