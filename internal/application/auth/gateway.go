// Package auth implements the "user enabled" precondition and the
// admin-route guard, as a narrow OIDC client rather than a full auth
// stack - consistent with treating authentication as an external
// collaborator consumed through a narrow contract. Grounded on the
// teacher's GatewayProvider (internal/application/auth/gateway_provider.go):
// same OIDC discovery and token verification, trimmed to the two
// questions the tree manager asks.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/oasst/treemanager/internal/config"
)

var (
	ErrGatewayNotConfigured = errors.New("auth gateway is not configured")
	ErrInvalidToken         = errors.New("invalid bearer token")
	ErrIdentityMismatch     = errors.New("token identity does not match requested user")
)

// Identity is what a verified bearer token tells us about its caller.
type Identity struct {
	UserID  uuid.UUID
	Email   string
	Roles   []string
	Enabled bool
}

func (id Identity) isAdmin(adminRoles []string) bool {
	for _, role := range id.Roles {
		for _, admin := range adminRoles {
			if strings.EqualFold(role, admin) {
				return true
			}
		}
	}
	return false
}

// Gateway verifies bearer tokens against an OIDC provider and answers the
// enabled/admin questions for whichever identity a request's token names.
type Gateway struct {
	cfg       *config.AuthConfig
	provider  *oidc.Provider
	verifier  *oidc.IDTokenVerifier
	available bool
}

// NewGateway performs OIDC discovery against cfg.IssuerURL. An empty
// IssuerURL yields a Gateway that fails closed - every call returns
// ErrGatewayNotConfigured - so a deployment without an auth backend cannot
// silently treat every worker as enabled.
func NewGateway(cfg *config.AuthConfig) (*Gateway, error) {
	g := &Gateway{cfg: cfg}
	if cfg.IssuerURL == "" {
		return g, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return g, fmt.Errorf("oidc discovery failed: %w", err)
	}

	g.provider = provider
	g.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	g.available = true
	return g, nil
}

// Authenticate verifies rawToken and returns the Identity it names. The
// REST middleware calls this once per request and stashes the result in
// context for IsEnabled/IsAdmin to read back.
func (g *Gateway) Authenticate(ctx context.Context, rawToken string) (Identity, error) {
	if !g.available {
		return Identity{}, ErrGatewayNotConfigured
	}

	var claims struct {
		Subject string   `json:"sub"`
		Email   string   `json:"email"`
		Roles   []string `json:"roles"`
		Groups  []string `json:"groups"`
		Enabled *bool    `json:"enabled"`
	}

	idToken, err := g.verifier.Verify(ctx, rawToken)
	if err != nil {
		userInfo, uiErr := g.provider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: rawToken}))
		if uiErr != nil {
			return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		if err := userInfo.Claims(&claims); err != nil {
			return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		claims.Subject = userInfo.Subject
	} else if err := idToken.Claims(&claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: subject %q is not a uuid", ErrInvalidToken, claims.Subject)
	}

	enabled := true
	if claims.Enabled != nil {
		enabled = *claims.Enabled
	}

	return Identity{
		UserID:  userID,
		Email:   claims.Email,
		Roles:   append(claims.Roles, claims.Groups...),
		Enabled: enabled,
	}, nil
}

// IsEnabled satisfies dispatcher.UserGateway: true only when ctx carries an
// Identity for exactly userID and its Enabled flag is set.
func (g *Gateway) IsEnabled(ctx context.Context, userID uuid.UUID) (bool, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return false, ErrGatewayNotConfigured
	}
	if id.UserID != userID {
		return false, ErrIdentityMismatch
	}
	return id.Enabled, nil
}

// IsAdmin reports whether ctx's Identity holds one of cfg.AdminRoles, for
// the admin-route middleware.
func (g *Gateway) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return false, ErrGatewayNotConfigured
	}
	if id.UserID != userID {
		return false, ErrIdentityMismatch
	}
	return id.isAdmin(g.cfg.AdminRoles), nil
}

type identityKey struct{}

// WithIdentity stores a verified Identity on ctx for downstream IsEnabled/
// IsAdmin calls in the same request.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext retrieves the Identity WithIdentity stored, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
