package fortnox

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Gobusters/ectologger"
	"golang.org/x/oauth2"

	"github.com/linqan85-spec/spendo-sub000/pkg/httpclient"
	"github.com/linqan85-spec/spendo-sub000/pkg/models"
	"github.com/linqan85-spec/spendo-sub000/pkg/tracing"
	"github.com/linqan85-spec/spendo-sub000/pkg/upstream"
)

var (
	// ErrTokenExchange means the token endpoint rejected the authorization code
	ErrTokenExchange = errors.New("token exchange failed")
	// ErrInvalidTokens means the token endpoint answered without an access or refresh token
	ErrInvalidTokens = errors.New("token response is missing tokens")
)

// OAuthConfig holds the Fortnox app registration
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURI  string
	Scopes       []string
}

// OAuth runs the authorization-code and refresh-token grants. Both authenticate to the
// token endpoint with HTTP Basic client credentials.
type OAuth struct {
	config oauth2.Config
	client *httpclient.Client
	logger ectologger.Logger
}

func NewOAuth(cfg OAuthConfig, client *httpclient.Client, logger ectologger.Logger) *OAuth {
	return &OAuth{
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		client: client,
		logger: logger,
	}
}

// ParseScopes splits a space or comma separated scope list
func ParseScopes(scopes string) []string {
	return strings.FieldsFunc(scopes, func(r rune) bool { return r == ' ' || r == ',' })
}

// Configured reports ErrConfiguration when the client credentials are missing
func (o *OAuth) Configured() error {
	if o.config.ClientID == "" {
		return fmt.Errorf("%w: fortnox client id is not set", upstream.ErrConfiguration)
	}
	if o.config.ClientSecret == "" {
		return fmt.Errorf("%w: fortnox client secret is not set", upstream.ErrConfiguration)
	}
	return nil
}

// AuthorizationURL builds the consent URL. The tenant id is the state: it guards the
// callback against forgery and tells the callback which company to store tokens for.
func (o *OAuth) AuthorizationURL(tenantID string) (string, error) {
	if o.config.ClientID == "" {
		return "", fmt.Errorf("%w: fortnox client id is not set", upstream.ErrConfiguration)
	}
	return o.config.AuthCodeURL(tenantID), nil
}

// Exchange trades an authorization code for a token pair
func (o *OAuth) Exchange(ctx context.Context, code string) (models.TokenPair, error) {
	ctx, span := tracing.StartSpan(ctx, "fortnox.OAuth.Exchange")
	defer span.End()

	if err := o.Configured(); err != nil {
		return models.TokenPair{}, err
	}

	token, err := o.config.Exchange(o.clientContext(ctx), code)
	if err != nil {
		tracing.RecordError(span, err)
		return models.TokenPair{}, classifyExchangeError(err)
	}

	if token.AccessToken == "" || token.RefreshToken == "" {
		return models.TokenPair{}, ErrInvalidTokens
	}

	return models.TokenPair{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken}, nil
}

// Refresh exchanges a refresh token for a new pair. Any failure is ErrRefreshFailed; it is
// never retried because a rejected refresh token is almost always revoked.
func (o *OAuth) Refresh(ctx context.Context, refreshToken string) (models.TokenPair, error) {
	ctx, span := tracing.StartSpan(ctx, "fortnox.OAuth.Refresh")
	defer span.End()

	if err := o.Configured(); err != nil {
		return models.TokenPair{}, err
	}

	// A token without an access token is never valid, so the source always refreshes
	source := o.config.TokenSource(o.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		tracing.RecordError(span, err)
		return models.TokenPair{}, fmt.Errorf("%w: %w", upstream.ErrRefreshFailed, err)
	}
	if token.AccessToken == "" || token.RefreshToken == "" {
		return models.TokenPair{}, fmt.Errorf("%w: %w", upstream.ErrRefreshFailed, ErrInvalidTokens)
	}

	return models.TokenPair{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken}, nil
}

// classifyExchangeError separates a rejected or unreachable token endpoint from a 2xx
// response that did not carry a usable token pair
func classifyExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	var urlErr *url.Error
	switch {
	case errors.As(err, &retrieveErr),
		errors.As(err, &urlErr),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTokenExchange, err)
	default:
		return fmt.Errorf("%w: %w", ErrInvalidTokens, err)
	}
}

func (o *OAuth) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, o.client.HTTPClient())
}
