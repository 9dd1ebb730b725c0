// Package upstream runs authenticated calls against accounting provider APIs: throttling,
// the refresh-and-retry contract on 401, and paginated collection fetching.
package upstream

import (
	"context"
	"errors"
	"net/url"

	"github.com/linqan85-spec/spendo-sub000/pkg/httpclient"
)

var (
	// ErrUpstream is a provider failure that is not about credentials
	ErrUpstream = errors.New("upstream error")
	// ErrRefreshFailed means the token endpoint rejected the refresh token
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrReconnectRequired means the stored credentials can no longer be used
	ErrReconnectRequired = errors.New("reconnect required")
	// ErrInvalidCompanyID means the provider does not know the external company
	ErrInvalidCompanyID = errors.New("invalid company id")
	// ErrConfiguration means the deployment lacks provider credentials
	ErrConfiguration = errors.New("provider is not configured")
)

// Request is a provider API call, independent of credentials
type Request struct {
	Method string
	// Path is relative to the provider API base URL
	Path  string
	Query url.Values
}

// Caller executes authenticated requests for one integration. Non-2xx responses are
// returned as responses; only transport failures and credential failures are errors.
type Caller interface {
	Call(ctx context.Context, req Request) (*httpclient.Response, error)
}

// Throttle delays a call until the provider's rate limit has room
type Throttle interface {
	Wait(ctx context.Context, key, provider string) error
}
