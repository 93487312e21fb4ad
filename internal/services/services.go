package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dftm/dftm-calendar/internal/calendar"
	"github.com/dftm/dftm-calendar/internal/models"
	"github.com/dftm/dftm-calendar/internal/workflow"
)

var (
	ErrTaskNotFound         = fmt.Errorf("task %w", workflow.ErrNotFound)
	ErrTaskStatusChanged    = errors.New("task status changed")
	ErrUserNotFound         = fmt.Errorf("user %w", workflow.ErrNotFound)
	ErrUserAlreadyExists    = errors.New("user already exists")
	ErrUserPasswordMismatch = errors.New("user password mismatch")
	ErrUserInactive         = errors.New("user is inactive")
)

type TaskService interface {
	// CreateTask stores a new PENDING task and returns it with
	// its generated ID and timestamps.
	CreateTask(ctx context.Context, params CreateTaskParams) (*models.Task, error)

	// GetTask returns ErrTaskNotFound if no task has the given ID.
	GetTask(ctx context.Context, taskID string) (*models.Task, error)

	// ListTasks returns the tasks matching the filter, newest first.
	// An empty result is not an error.
	ListTasks(ctx context.Context, filter TaskFilter) ([]models.Task, error)

	// SaveTask persists the workflow fields of task: status,
	// priority, assignee, assigner, due date and update time.
	// The row is only written while its status is still expected.
	//
	// It returns ErrTaskNotFound if the task doesn't exist or
	// ErrTaskStatusChanged if another request moved it first.
	SaveTask(ctx context.Context, task models.Task, expected models.Status) (*models.Task, error)

	// UpdateTask changes the non-nil content fields of params.
	UpdateTask(ctx context.Context, params UpdateTaskParams) (*models.Task, error)

	// SetArchived archives or restores a task.
	SetArchived(ctx context.Context, taskID string, archived bool) (*models.Task, error)

	DeleteTask(ctx context.Context, taskID string) error
}

type CommentService interface {
	// CreateComment returns ErrTaskNotFound if the task doesn't exist.
	CreateComment(ctx context.Context, params CreateCommentParams) (*models.Comment, error)

	// ListComments returns the comments of a task, oldest first.
	ListComments(ctx context.Context, taskID string) ([]models.Comment, error)
}

type UserService interface {
	// CreateUser hashes the password and stores the user.
	//
	// It returns ErrUserAlreadyExists if the email is taken.
	CreateUser(ctx context.Context, params CreateUserParams) (*models.User, error)

	GetUserByID(ctx context.Context, userID string) (*models.User, error)

	// GetUserByEmail matches the email case-insensitively.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	ListUsers(ctx context.Context) ([]models.User, error)

	// UpdateUser changes the non-nil fields of params.
	UpdateUser(ctx context.Context, params UpdateUserParams) (*models.User, error)

	DeleteUser(ctx context.Context, userID string) error

	// LookupUser lets the approval workflow resolve assignees.
	LookupUser(ctx context.Context, userID string) (models.User, error)
}

type AuthService interface {
	// Login authenticates the user by email and password and
	// issues a signed access token carrying the user's role.
	//
	// It returns ErrUserNotFound if the user with the given
	// email doesn't exist, ErrUserPasswordMismatch if the
	// password doesn't match or ErrUserInactive if the account
	// is disabled.
	Login(ctx context.Context, params LoginParams) (*LoginResult, error)

	// ParseJWTToken parses the given JWT token and returns its
	// claims or jwt.ErrTokenExpired if the token is expired.
	ParseJWTToken(token string) (*Claims, error)
}

type CreateTaskParams struct {
	Title       string
	Description models.LocalizedText
	Priority    models.Priority
	Reporter    string
	AssignerID  string
	DueDate     *time.Time
}

type UpdateTaskParams struct {
	ID          string
	Title       *string
	Description *models.LocalizedText
	Reporter    *string
}

type CreateCommentParams struct {
	TaskID   string
	AuthorID string
	Text     models.LocalizedText
}

type TaskFilter struct {
	Statuses   []models.Status
	AssigneeID string
	// nil lists archived and active tasks.
	Archived *bool

	// From and To bound the date selected by Field, To exclusive.
	Field calendar.DateField
	From  *time.Time
	To    *time.Time

	Limit  uint32
	Offset uint32
}

type CreateUserParams struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      models.Role
	Language  models.Language
}

type UpdateUserParams struct {
	ID        string
	FirstName *string
	LastName  *string
	Role      *models.Role
	Active    *bool
	Language  *models.Language
	Password  *string
}

type LoginParams struct {
	Email    string
	Password string
}

type LoginResult struct {
	UserID               string
	Role                 models.Role
	AccessToken          string
	AccessTokenExpiresAt time.Time
}

type Claims struct {
	jwt.RegisteredClaims
	Role models.Role `json:"role"`
}
