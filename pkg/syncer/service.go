// Package syncer runs the sync pipeline: resolve the caller's company, check its
// subscription, load the integration, pull supplier invoices through the provider and
// reconcile them into expenses. Every stage fails fast with its own error.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/attribute"

	appctx "github.com/linqan85-spec/spendo-sub000/pkg/context"
	"github.com/linqan85-spec/spendo-sub000/pkg/kafka"
	"github.com/linqan85-spec/spendo-sub000/pkg/metrics"
	"github.com/linqan85-spec/spendo-sub000/pkg/models"
	"github.com/linqan85-spec/spendo-sub000/pkg/reconcile"
	"github.com/linqan85-spec/spendo-sub000/pkg/repositories"
	"github.com/linqan85-spec/spendo-sub000/pkg/subscription"
	"github.com/linqan85-spec/spendo-sub000/pkg/tracing"
	"github.com/linqan85-spec/spendo-sub000/pkg/upstream"
)

var (
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNoCompany           = errors.New("user has no company")
	ErrNotConnected        = errors.New("integration is not connected")
	ErrUnsupportedProvider = errors.New("unsupported provider")
)

// Provider is one upstream accounting platform
type Provider interface {
	Name() models.Provider
	// Validate reports missing deployment configuration
	Validate() error
	// Open binds a caller to the integration's credentials
	Open(integration *models.Integration) upstream.Caller
	// Probe makes a cheap authenticated call so a stale token is refreshed before paging
	Probe(ctx context.Context, caller upstream.Caller) error
	FetchInvoices(ctx context.Context, caller upstream.Caller) ([]reconcile.Invoice, error)
}

// Publisher announces finished syncs
type Publisher interface {
	PublishSyncEvent(ctx context.Context, event *kafka.SyncEvent) error
}

// Result is the sync response body
type Result struct {
	Success bool `json:"success"`
	reconcile.Summary
}

type Service struct {
	companies    repositories.CompanyRepo
	integrations repositories.IntegrationRepo
	engine       *reconcile.Engine
	publisher    Publisher
	providers    map[models.Provider]Provider
	logger       ectologger.Logger
	now          func() time.Time
}

// NewService builds the pipeline. publisher may be nil.
func NewService(
	companies repositories.CompanyRepo,
	integrations repositories.IntegrationRepo,
	engine *reconcile.Engine,
	publisher Publisher,
	logger ectologger.Logger,
	providers ...Provider,
) *Service {
	byName := make(map[models.Provider]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Service{
		companies:    companies,
		integrations: integrations,
		engine:       engine,
		publisher:    publisher,
		providers:    byName,
		logger:       logger,
		now:          time.Now,
	}
}

// ResolveTenant maps the authenticated user to their company and binds it to ctx
func (s *Service) ResolveTenant(ctx context.Context) (context.Context, *models.Company, error) {
	userID := appctx.GetUserID(ctx)
	if userID == "" {
		return ctx, nil, ErrUnauthorized
	}

	companyID, err := s.companies.GetCompanyIDForUser(ctx, userID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return ctx, nil, ErrNoCompany
		}
		return ctx, nil, err
	}

	ctx = appctx.SetTenantID(ctx, companyID.String())
	company, err := s.companies.GetByID(ctx, companyID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return ctx, nil, ErrNoCompany
		}
		return ctx, nil, err
	}
	return ctx, company, nil
}

// Sync runs the whole pipeline for one provider on behalf of the user in ctx
func (s *Service) Sync(ctx context.Context, provider models.Provider) (result *Result, err error) {
	ctx, span := tracing.StartSpan(ctx, "syncer.Service.Sync", attribute.String("provider", string(provider)))
	defer span.End()

	start := s.now()
	defer func() {
		metrics.RecordSync(string(provider), outcome(err), time.Since(start).Seconds())
		if err != nil {
			tracing.RecordError(span, err)
		}
	}()

	p, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	ctx = appctx.SetProvider(ctx, string(provider))

	ctx, company, err := s.ResolveTenant(ctx)
	if err != nil {
		return nil, err
	}
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": company.ID,
		"provider":  provider,
	})

	if err := subscription.CheckAccess(company, s.now()); err != nil {
		log.WithField("subscription_status", company.SubscriptionStatus).Info("sync blocked by subscription")
		return nil, err
	}

	integration, err := s.integrations.GetByProvider(ctx, provider)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotConnected, provider)
		}
		return nil, err
	}
	if !integration.IsConnected() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotConnected, provider, integration.Status)
	}

	if err := p.Validate(); err != nil {
		log.WithError(err).Error("provider is not configured")
		return nil, err
	}

	caller := p.Open(integration)
	if err := p.Probe(ctx, caller); err != nil {
		return nil, err
	}

	invoices, err := p.FetchInvoices(ctx, caller)
	if err != nil {
		return nil, err
	}
	log.Infof("Fetched %d supplier invoices", len(invoices))

	summary := s.engine.Reconcile(ctx, provider, invoices)

	if err := s.integrations.TouchLastSynced(ctx, integration.ID, s.now().UTC()); err != nil {
		return nil, err
	}

	s.publish(ctx, company, provider, summary)

	log.WithFields(map[string]any{
		"invoices_fetched": summary.InvoicesFetched,
		"vendors_created":  summary.VendorsCreated,
		"expenses_created": summary.ExpensesCreated,
		"expenses_updated": summary.ExpensesUpdated,
	}).Info("Sync completed")

	return &Result{Success: true, Summary: summary}, nil
}

func (s *Service) publish(ctx context.Context, company *models.Company, provider models.Provider, summary reconcile.Summary) {
	if s.publisher == nil {
		return
	}
	event := &kafka.SyncEvent{
		Type:            kafka.EventSyncCompleted,
		TenantID:        company.ID.String(),
		Provider:        string(provider),
		InvoicesFetched: summary.InvoicesFetched,
		VendorsCreated:  summary.VendorsCreated,
		ExpensesCreated: summary.ExpensesCreated,
		ExpensesUpdated: summary.ExpensesUpdated,
		Timestamp:       s.now().UTC(),
	}
	if err := s.publisher.PublishSyncEvent(ctx, event); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("failed to publish sync event")
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, subscription.ErrSubscriptionRequired):
		return "subscription_required"
	case errors.Is(err, upstream.ErrReconnectRequired):
		return "reconnect_required"
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	case errors.Is(err, upstream.ErrUpstream):
		return "upstream_error"
	default:
		return "error"
	}
}
