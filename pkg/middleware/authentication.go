package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	appctx "github.com/linqan85-spec/spendo-sub000/pkg/context"
	"github.com/linqan85-spec/spendo-sub000/pkg/tracing"
)

// HeaderUserID is trusted in place of a bearer token when authentication is disabled
const HeaderUserID = "X-User-ID"

// verifyTimeout bounds a single token verification (OIDC may fetch signing keys)
const verifyTimeout = 5 * time.Second

var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier turns a raw bearer token into the authenticated user id.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (string, error)
}

// UserClaims are the claims issued by the hosted auth provider
type UserClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens signed with the auth provider's shared secret.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()),
	}
}

func (v *JWTVerifier) Verify(_ context.Context, rawToken string) (string, error) {
	var claims UserClaims
	token, err := v.parser.ParseWithClaims(rawToken, &claims, func(token *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// OIDCVerifier validates tokens against an OpenID Connect issuer.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc provider: %w", err)
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (string, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if idToken.Subject == "" {
		return "", ErrInvalidToken
	}
	return idToken.Subject, nil
}

// Authentication requires a valid bearer token and stores its subject as the user id.
// A nil verifier trusts the X-User-ID header instead (local development only).
func Authentication(logger ectologger.Logger, verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, span := tracing.StartSpan(c.Request().Context(), "middleware.Authentication")
			defer span.End()

			if verifier == nil {
				userID := c.Request().Header.Get(HeaderUserID)
				if userID == "" {
					return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
				}
				c.SetRequest(c.Request().WithContext(appctx.SetUserID(ctx, userID)))
				return next(c)
			}

			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				logger.WithContext(ctx).Warn("request is missing bearer token")
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			verifyCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
			defer cancel()

			userID, err := verifier.Verify(verifyCtx, raw)
			if err != nil {
				logger.WithContext(ctx).WithError(err).Warn("token is invalid")
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}

			c.SetRequest(c.Request().WithContext(appctx.SetUserID(ctx, userID)))
			return next(c)
		}
	}
}
