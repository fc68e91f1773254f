package auth

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"forkline.io/internal/fault"
)

// Token is the login response payload.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Controller orchestrates the authenticator, the token strategy and the user
// source. One instance is constructed at startup and injected where needed.
type Controller struct {
	authn  Authenticator
	tokens TokenStrategy
	users  UserSource
	log    *zap.Logger
}

// NewController wires the authentication subsystem together.
func NewController(authn Authenticator, tokens TokenStrategy, users UserSource, log *zap.Logger) (*Controller, error) {
	if authn == nil || tokens == nil || users == nil {
		return nil, errors.New("auth: authenticator, token strategy and user source are required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{authn: authn, tokens: tokens, users: users, log: log}, nil
}

// Authenticate delegates to the configured authenticator. A nil user with a
// nil error means the credentials did not match.
func (c *Controller) Authenticate(ctx context.Context, username, password string) (*User, error) {
	return c.authn.Authenticate(ctx, username, password)
}

// CreateToken mints a bearer token for an authenticated principal.
func (c *Controller) CreateToken(user *User) (Token, error) {
	access, err := c.tokens.CreateToken(user)
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: access, TokenType: "bearer"}, nil
}

// VerifyToken validates the bearer token and re-resolves the full user record
// from its subject claim, so authorization always sees current role data. A
// token whose subject no longer exists is treated as invalid.
func (c *Controller) VerifyToken(ctx context.Context, token string) (*User, error) {
	claims, err := c.tokens.VerifyToken(token)
	if err != nil {
		return nil, err
	}
	user, err := c.users.ByEmail(ctx, claims.Subject)
	if err != nil {
		if fault.IsKind(err, fault.NotFound) {
			return nil, fault.Unauthorizedf("invalid or expired token")
		}
		return nil, err
	}
	return user, nil
}

// Gate decides whether the current request may proceed past a route guard.
type Gate func(r *http.Request) error

// Requires builds a per-route guard around filter. The guard resolves the
// request's attached principal (placed there by the authentication middleware
// after a fresh lookup), evaluates the filter, and returns a forbidden fault
// on denial. A filter evaluation error denies the request.
func (c *Controller) Requires(filter Filter) Gate {
	return func(r *http.Request) error {
		user, ok := PrincipalFromContext(r.Context())
		if !ok {
			return fault.Unauthorizedf("authentication required")
		}
		allowed, err := filter.Authorize(r.Context(), user, r)
		if err != nil {
			c.log.Error("authorization filter failed", zap.String("path", r.URL.Path), zap.Error(err))
			return fault.Internalf(err)
		}
		if !allowed {
			return fault.Forbiddenf("not enough permissions")
		}
		return nil
	}
}
