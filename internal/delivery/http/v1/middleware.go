package v1

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dftm/dftm-calendar/internal/models"
	"github.com/dftm/dftm-calendar/internal/services"
)

const (
	userIDCtxKey = "user_id"
	roleCtxKey   = "role"
)

// HandleAuthMiddleware accepts a bearer token or, for browser
// clients, the access token cookie set at login. Every failure is a
// 401 so the front ends force a new login.
//
// The account is reloaded on each request: a deactivated or deleted
// user loses access before the token expires and the role comes from
// the database, not from the claims.
func (h *handlerImpl) HandleAuthMiddleware(c *gin.Context) {
	accessToken, ok := bearerToken(c)
	if !ok {
		h.logger.Error().Msg("authorization header required")
		abort(c, newStatusTextError(http.StatusUnauthorized))
		return
	}

	claims, err := h.auth.ParseJWTToken(accessToken)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to parse token")
		abort(c, newStatusTextError(http.StatusUnauthorized))
		return
	}

	user, err := h.users.GetUserByID(c, claims.Subject)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			h.logger.Warn().
				Str("user_id", claims.Subject).
				Msg("token subject no longer exists")
			abort(c, newStatusTextError(http.StatusUnauthorized))
			return
		}

		h.logger.Error().
			Err(err).
			Str("user_id", claims.Subject).
			Msg("failed to load token subject")
		abort(c, newStatusTextError(http.StatusInternalServerError))
		return
	}
	if !user.Active {
		h.logger.Warn().
			Str("user_id", user.ID).
			Msg("token subject is inactive")
		abort(c, newStatusTextError(http.StatusUnauthorized))
		return
	}
	if user.Role != claims.Role {
		h.logger.Debug().
			Str("user_id", user.ID).
			Str("token_role", string(claims.Role)).
			Str("role", string(user.Role)).
			Msg("role changed since token was issued")
	}

	c.Set(userIDCtxKey, user.ID)
	c.Set(roleCtxKey, user.Role)
	c.Next()
}

// HandleAdminMiddleware must run after HandleAuthMiddleware.
func (h *handlerImpl) HandleAdminMiddleware(c *gin.Context) {
	if !currentRole(c).IsAdmin() {
		h.logger.Warn().
			Str("user_id", currentUserID(c)).
			Str("path", c.FullPath()).
			Msg("admin role required")
		abort(c, newForbiddenError(errForbidden.Error()))
		return
	}
	c.Next()
}

func bearerToken(c *gin.Context) (string, bool) {
	const authHeader = "Authorization"
	header := c.GetHeader(authHeader)
	if header == "" {
		token, err := c.Cookie(accessTokenCookie)
		return token, err == nil && token != ""
	}

	const bearerPrefix = "Bearer"
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != bearerPrefix || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func getStringFromContext(c *gin.Context, key string) (string, bool) {
	value, exists := c.Get(key)
	if !exists {
		return "", false
	}
	str, ok := value.(string)
	return str, ok
}

func currentUserID(c *gin.Context) string {
	userID, _ := getStringFromContext(c, userIDCtxKey)
	return userID
}

func currentRole(c *gin.Context) models.Role {
	value, _ := c.Get(roleCtxKey)
	role, _ := value.(models.Role)
	return role
}
