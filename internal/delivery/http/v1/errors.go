package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dftm/dftm-calendar/internal/services"
	"github.com/dftm/dftm-calendar/internal/workflow"
)

var (
	errInvalidRequestBody = errors.New("invalid request body")
	errInvalidQuery       = errors.New("invalid query parameter")
	errForbidden          = errors.New("insufficient role")
	errExportDisabled     = errors.New("calendar export is disabled")
)

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	// Set for workflow failures so clients can tell which guard failed.
	Field  string `json:"field,omitempty"`
	Action string `json:"action,omitempty"`
}

func newAPIError(code int, message string) apiError {
	return apiError{
		Code:    code,
		Message: message,
	}
}

func (e apiError) Error() string {
	return e.Message
}

func abort(c *gin.Context, err apiError) {
	body := gin.H{"error": err.Message}
	if err.Field != "" {
		body["field"] = err.Field
	}
	if err.Action != "" {
		body["action"] = err.Action
	}
	c.AbortWithStatusJSON(err.Code, body)
}

func newStatusTextError(status int) apiError {
	return newAPIError(status, http.StatusText(status))
}

func newBadRequestError(message string) apiError {
	return newAPIError(http.StatusBadRequest, message)
}

func newUnauthorizedError(message string) apiError {
	return newAPIError(http.StatusUnauthorized, message)
}

func newForbiddenError(message string) apiError {
	return newAPIError(http.StatusForbidden, message)
}

func newNotFoundError(message string) apiError {
	return newAPIError(http.StatusNotFound, message)
}

func newConflictError(message string) apiError {
	return newAPIError(http.StatusConflict, message)
}

// toAPIError maps service and workflow errors to responses. Validation
// is checked first because an unknown assignee is both a validation
// and a not-found error.
func toAPIError(err error) apiError {
	var (
		validationErr   *workflow.ValidationError
		preconditionErr *workflow.PreconditionError
	)
	switch {
	case errors.As(err, &validationErr):
		e := newBadRequestError(validationErr.Error())
		e.Field = validationErr.Field
		return e
	case errors.As(err, &preconditionErr):
		e := newConflictError(preconditionErr.Error())
		e.Action = string(preconditionErr.Action)
		return e
	case errors.Is(err, services.ErrTaskStatusChanged):
		return newConflictError(services.ErrTaskStatusChanged.Error())
	case errors.Is(err, services.ErrTaskNotFound):
		return newNotFoundError(services.ErrTaskNotFound.Error())
	case errors.Is(err, services.ErrUserNotFound):
		return newNotFoundError(services.ErrUserNotFound.Error())
	case errors.Is(err, workflow.ErrNotFound):
		return newNotFoundError(err.Error())
	case errors.Is(err, services.ErrUserAlreadyExists):
		return newConflictError(services.ErrUserAlreadyExists.Error())
	default:
		return newStatusTextError(http.StatusInternalServerError)
	}
}
