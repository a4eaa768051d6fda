package rest

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/oasst/treemanager/internal/application/auth"
)

const (
	ContextKeyUserID  = "user_id"
	ContextKeyIsAdmin = "is_admin"
)

// AuthMiddleware verifies the bearer token against auth.Gateway and makes the
// resulting identity available both to gin handlers (via context keys) and
// to the application layer (via auth.WithIdentity on the request context).
type AuthMiddleware struct {
	gateway *auth.Gateway
}

func NewAuthMiddleware(gateway *auth.Gateway) *AuthMiddleware {
	return &AuthMiddleware{gateway: gateway}
}

// RequireAuth rejects requests without a valid bearer token.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := m.authenticate(c)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "authentication required")
			c.Abort()
			return
		}
		m.setContext(c, id)
		c.Next()
	}
}

// RequireAdmin rejects requests without a valid bearer token carrying one of
// the configured admin roles.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := m.authenticate(c)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "authentication required")
			c.Abort()
			return
		}
		m.setContext(c, id)

		isAdmin, err := m.gateway.IsAdmin(c.Request.Context(), id.UserID)
		if err != nil || !isAdmin {
			respondError(c, http.StatusForbidden, "admin privileges required")
			c.Abort()
			return
		}
		c.Set(ContextKeyIsAdmin, true)
		c.Next()
	}
}

func (m *AuthMiddleware) authenticate(c *gin.Context) (auth.Identity, error) {
	token, err := extractBearerToken(c)
	if err != nil {
		return auth.Identity{}, err
	}
	return m.gateway.Authenticate(c.Request.Context(), token)
}

func (m *AuthMiddleware) setContext(c *gin.Context, id auth.Identity) {
	c.Set(ContextKeyUserID, id.UserID.String())
	c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
}

func extractBearerToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", errors.New("no token provided")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("malformed authorization header")
	}
	return parts[1], nil
}

// GetUserID extracts the user id from gin context, set by RequireAuth or
// RequireAdmin earlier in the chain.
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(ContextKeyUserID)
	if !exists {
		return "", false
	}
	return userID.(string), true
}

// GetUserIDAsUUID extracts the user id from gin context as a uuid.UUID.
func GetUserIDAsUUID(c *gin.Context) (uuid.UUID, bool) {
	userIDStr, ok := GetUserID(c)
	if !ok {
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return uuid.Nil, false
	}
	return userID, true
}
