package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/Gobusters/ectologger"

	"github.com/linqan85-spec/spendo-sub000/pkg/expressions"
	"github.com/linqan85-spec/spendo-sub000/pkg/httpclient"
	"github.com/linqan85-spec/spendo-sub000/pkg/metrics"
	"github.com/linqan85-spec/spendo-sub000/pkg/tracing"
)

// defaultMaxPages stops a provider that ignores the page size from paging forever
const defaultMaxPages = 1000

// PageSpec describes a paginated collection endpoint
type PageSpec struct {
	Provider string
	Path     string
	Query    url.Values
	PageSize int
	// PageParam defaults to "page", SizeParam to "limit"
	PageParam string
	SizeParam string
	// ItemsExpression is a JMESPath expression selecting the page's items
	ItemsExpression string
	MaxPages        int
}

// FetchAllPages requests pages from 1 upward and accumulates their items until a page
// holds fewer than PageSize items. Items that fail to decode are logged and skipped. A non-2xx or unreadable page ends the fetch early and
// the items gathered so far are returned. Credential failures and cancellation are errors.
func FetchAllPages[T any](ctx context.Context, caller Caller, evaluator *expressions.Evaluator, spec PageSpec, logger ectologger.Logger) ([]T, error) {
	ctx, span := tracing.StartSpan(ctx, "upstream.FetchAllPages")
	defer span.End()

	if spec.PageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", spec.PageSize)
	}
	pageParam := spec.PageParam
	if pageParam == "" {
		pageParam = "page"
	}
	sizeParam := spec.SizeParam
	if sizeParam == "" {
		sizeParam = "limit"
	}
	maxPages := spec.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	log := logger.WithContext(ctx).WithFields(map[string]any{
		"provider": spec.Provider,
		"path":     spec.Path,
	})

	var all []T
	for page := 1; page <= maxPages; page++ {
		query := url.Values{}
		for key, values := range spec.Query {
			query[key] = append([]string(nil), values...)
		}
		query.Set(pageParam, strconv.Itoa(page))
		query.Set(sizeParam, strconv.Itoa(spec.PageSize))

		resp, err := caller.Call(ctx, Request{Path: spec.Path, Query: query})
		if err != nil {
			if errors.Is(err, ErrUpstream) && ctx.Err() == nil {
				metrics.RecordPage(spec.Provider, "error")
				log.WithError(err).Warnf("page %d failed, keeping %d items", page, len(all))
				return all, nil
			}
			tracing.RecordError(span, err)
			return nil, err
		}

		if !httpclient.IsSuccessStatus(resp.StatusCode) {
			result := "error"
			if httpclient.IsRateLimitStatus(resp.StatusCode) {
				result = "rate_limited"
			}
			metrics.RecordPage(spec.Provider, result)
			log.WithField("status_code", resp.StatusCode).Warnf("page %d returned %d, keeping %d items", page, resp.StatusCode, len(all))
			return all, nil
		}

		raw, err := pageItems(resp, evaluator, spec.ItemsExpression)
		if err != nil {
			metrics.RecordPage(spec.Provider, "error")
			log.WithError(err).Warnf("page %d could not be read, keeping %d items", page, len(all))
			return all, nil
		}

		metrics.RecordPage(spec.Provider, "ok")
		for i, row := range raw {
			var item T
			if err := expressions.Decode(row, &item); err != nil {
				metrics.RecordPage(spec.Provider, "skipped_item")
				log.WithError(err).Warnf("skipping item %d on page %d", i, page)
				continue
			}
			all = append(all, item)
		}
		log.Debugf("page %d returned %d items", page, len(raw))

		// a skipped row still counts toward a full page
		if len(raw) < spec.PageSize {
			return all, nil
		}
	}

	log.Warnf("stopped after %d pages", maxPages)
	return all, nil
}

func pageItems(resp *httpclient.Response, evaluator *expressions.Evaluator, expression string) ([]any, error) {
	doc, err := httpclient.ParseJSON(resp)
	if err != nil {
		return nil, err
	}
	return evaluator.EvaluateSlice(expression, doc)
}
