package v1

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dftm/dftm-calendar/internal/models"
	"github.com/dftm/dftm-calendar/internal/services"
	"github.com/dftm/dftm-calendar/internal/workflow"
)

type getUserResponse struct {
	ID                string          `json:"id"`
	FirstName         string          `json:"first_name"`
	LastName          string          `json:"last_name"`
	DisplayName       string          `json:"display_name"`
	Email             string          `json:"email"`
	Role              models.Role     `json:"role"`
	Active            bool            `json:"active"`
	PreferredLanguage models.Language `json:"preferred_language"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func newUserResponse(user *models.User) getUserResponse {
	return getUserResponse{
		ID:                user.ID,
		FirstName:         user.FirstName,
		LastName:          user.LastName,
		DisplayName:       user.DisplayName(),
		Email:             user.Email,
		Role:              user.Role,
		Active:            user.Active,
		PreferredLanguage: user.PreferredLanguage,
		CreatedAt:         user.CreatedAt,
		UpdatedAt:         user.UpdatedAt,
	}
}

func (h *handlerImpl) HandleGetUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to list users")
		abort(c, toAPIError(err))
		return
	}

	response := make([]getUserResponse, len(users))
	for i := range users {
		response[i] = newUserResponse(&users[i])
	}
	c.JSON(http.StatusOK, response)
}

type createUserRequest struct {
	FirstName         string `json:"first_name" binding:"max=255"`
	LastName          string `json:"last_name" binding:"max=255"`
	Email             string `json:"email" binding:"required,email,max=255"`
	Password          string `json:"password" binding:"required,min=6,max=255"`
	Role              string `json:"role"`
	PreferredLanguage string `json:"preferred_language"`
}

func (h *handlerImpl) HandleCreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	params := services.CreateUserParams{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
		Role:      models.RoleUser,
		Language:  h.translator.Fallback(),
	}

	if req.Role != "" {
		role, apiErr := h.parseGrantableRole(c, req.Role)
		if apiErr != nil {
			abort(c, *apiErr)
			return
		}
		params.Role = role
	}
	if req.PreferredLanguage != "" {
		lang, ok := models.ParseLanguage(req.PreferredLanguage)
		if !ok {
			abort(c, toAPIError(invalidLanguage(req.PreferredLanguage)))
			return
		}
		params.Language = lang
	}

	user, err := h.users.CreateUser(c, params)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("email", req.Email).
			Msg("failed to create user")
		abort(c, toAPIError(err))
		return
	}
	c.JSON(http.StatusCreated, newUserResponse(user))
}

func (h *handlerImpl) HandleGetUser(c *gin.Context) {
	user, err := h.users.GetUserByID(c, c.Param("id"))
	if err != nil {
		abort(c, toAPIError(err))
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

type updateUserRequest struct {
	FirstName         *string `json:"first_name,omitempty" binding:"omitempty,max=255"`
	LastName          *string `json:"last_name,omitempty" binding:"omitempty,max=255"`
	Password          *string `json:"password,omitempty" binding:"omitempty,min=6,max=255"`
	Role              *string `json:"role,omitempty"`
	Active            *bool   `json:"active,omitempty"`
	PreferredLanguage *string `json:"preferred_language,omitempty"`
}

func (h *handlerImpl) HandleUpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	userID := c.Param("id")
	if userID == currentUserID(c) && (req.Role != nil || (req.Active != nil && !*req.Active)) {
		abort(c, newConflictError("cannot change own role or deactivate own account"))
		return
	}
	if !h.mayManageUser(c, userID) {
		return
	}

	params, ok := h.updateParams(c, userID, req)
	if !ok {
		return
	}
	if req.Role != nil {
		role, apiErr := h.parseGrantableRole(c, *req.Role)
		if apiErr != nil {
			abort(c, *apiErr)
			return
		}
		params.Role = &role
	}
	params.Active = req.Active

	h.updateUser(c, params)
}

type updateProfileRequest struct {
	FirstName         *string `json:"first_name,omitempty" binding:"omitempty,max=255"`
	LastName          *string `json:"last_name,omitempty" binding:"omitempty,max=255"`
	Password          *string `json:"password,omitempty" binding:"omitempty,min=6,max=255"`
	PreferredLanguage *string `json:"preferred_language,omitempty"`
}

// HandleUpdateProfile lets any user edit their own name, language and password.
func (h *handlerImpl) HandleUpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	params, ok := h.updateParams(c, currentUserID(c), updateUserRequest{
		FirstName:         req.FirstName,
		LastName:          req.LastName,
		Password:          req.Password,
		PreferredLanguage: req.PreferredLanguage,
	})
	if !ok {
		return
	}

	h.updateUser(c, params)
}

func (h *handlerImpl) updateParams(c *gin.Context, userID string, req updateUserRequest) (services.UpdateUserParams, bool) {
	params := services.UpdateUserParams{
		ID:        userID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	}
	if req.PreferredLanguage != nil {
		lang, ok := models.ParseLanguage(*req.PreferredLanguage)
		if !ok {
			abort(c, toAPIError(invalidLanguage(*req.PreferredLanguage)))
			return params, false
		}
		params.Language = &lang
	}
	return params, true
}

func (h *handlerImpl) updateUser(c *gin.Context, params services.UpdateUserParams) {
	user, err := h.users.UpdateUser(c, params)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("user_id", params.ID).
			Msg("failed to update user")
		abort(c, toAPIError(err))
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

func (h *handlerImpl) HandleDeleteUser(c *gin.Context) {
	userID := c.Param("id")
	if userID == currentUserID(c) {
		abort(c, newConflictError("cannot delete own account"))
		return
	}
	if !h.mayManageUser(c, userID) {
		return
	}

	err := h.users.DeleteUser(c, userID)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("user_id", userID).
			Msg("failed to delete user")
		abort(c, toAPIError(err))
		return
	}

	h.logger.Info().
		Str("user_id", userID).
		Msg("deleted user")
	c.Status(http.StatusNoContent)
}

// mayManageUser loads the target account and aborts unless the
// caller outranks or equals it: only a SUPERADMIN may edit or
// delete another SUPERADMIN.
func (h *handlerImpl) mayManageUser(c *gin.Context, userID string) bool {
	target, err := h.users.GetUserByID(c, userID)
	if err != nil {
		if !errors.Is(err, services.ErrUserNotFound) {
			h.logger.Error().
				Err(err).
				Str("user_id", userID).
				Msg("failed to get user")
		}
		abort(c, toAPIError(err))
		return false
	}

	if target.Role == models.RoleSuperAdmin && currentRole(c) != models.RoleSuperAdmin {
		h.logger.Warn().
			Str("user_id", currentUserID(c)).
			Str("target_id", userID).
			Msg("superadmin can only be managed by a superadmin")
		abort(c, newForbiddenError(errForbidden.Error()))
		return false
	}
	return true
}

// parseGrantableRole normalizes raw and refuses to let an
// ADMIN hand out SUPERADMIN.
func (h *handlerImpl) parseGrantableRole(c *gin.Context, raw string) (models.Role, *apiError) {
	role, ok := models.ParseRole(raw)
	if !ok {
		e := toAPIError(&workflow.ValidationError{Field: "role", Value: raw, Reason: "unknown role"})
		return "", &e
	}
	if role == models.RoleSuperAdmin && currentRole(c) != models.RoleSuperAdmin {
		e := newForbiddenError(errForbidden.Error())
		return "", &e
	}
	return role, nil
}

func invalidLanguage(raw string) error {
	return &workflow.ValidationError{Field: "preferred_language", Value: raw, Reason: "unsupported language"}
}
