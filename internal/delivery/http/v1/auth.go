package v1

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dftm/dftm-calendar/internal/models"
	"github.com/dftm/dftm-calendar/internal/services"
)

const accessTokenCookie = "access_token"

type loginRequest struct {
	Email    string `json:"email" form:"email" binding:"required,email,max=255"`
	Password string `json:"password" form:"password" binding:"required,max=255"`
}

type loginResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresAt   time.Time   `json:"expires_at"`
	UserID      string      `json:"user_id"`
	Role        models.Role `json:"role"`
}

func (h *handlerImpl) HandleLogin(c *gin.Context) {
	var req loginRequest
	err := c.ShouldBind(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind request body")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	result, err := h.auth.Login(c, services.LoginParams{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to login")
		switch {
		case errors.Is(err, services.ErrUserNotFound),
			errors.Is(err, services.ErrUserPasswordMismatch):
			abort(c, newUnauthorizedError("invalid email or password"))
		case errors.Is(err, services.ErrUserInactive):
			abort(c, newForbiddenError(services.ErrUserInactive.Error()))
		default:
			abort(c, newStatusTextError(http.StatusInternalServerError))
		}
		return
	}

	setAccessTokenCookie(c, result.AccessToken, result.AccessTokenExpiresAt.Sub(h.now()))

	c.JSON(http.StatusOK, loginResponse{
		AccessToken: result.AccessToken,
		ExpiresAt:   result.AccessTokenExpiresAt,
		UserID:      result.UserID,
		Role:        result.Role,
	})
}

func (h *handlerImpl) HandleMe(c *gin.Context) {
	user, err := h.users.GetUserByID(c, currentUserID(c))
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("user_id", currentUserID(c)).
			Msg("failed to get current user")
		if errors.Is(err, services.ErrUserNotFound) {
			// The account was deleted after the token was issued.
			abort(c, newUnauthorizedError(services.ErrUserNotFound.Error()))
			return
		}
		abort(c, toAPIError(err))
		return
	}

	c.JSON(http.StatusOK, newUserResponse(user))
}

func setAccessTokenCookie(c *gin.Context, token string, maxAge time.Duration) {
	// httpOnly must be false to allow client-side JavaScript
	// to read the cookie and send it in the Authorization header.
	const secure, httpOnly = false, false
	c.SetCookie(accessTokenCookie, token, int(maxAge.Seconds()),
		"/", "", secure, httpOnly)
}
