package v1

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/dftm/dftm-calendar/internal/gcal"
	"github.com/dftm/dftm-calendar/internal/i18n"
	"github.com/dftm/dftm-calendar/internal/models"
	"github.com/dftm/dftm-calendar/internal/services"
	"github.com/dftm/dftm-calendar/internal/workflow"
)

type Handler interface {
	HandleLogin(c *gin.Context)
	HandleMe(c *gin.Context)
	HandleAuthMiddleware(c *gin.Context)
	HandleAdminMiddleware(c *gin.Context)

	HandleCreateTask(c *gin.Context)
	HandleGetTasks(c *gin.Context)
	HandleGetPendingTasks(c *gin.Context)
	HandleGetTask(c *gin.Context)
	HandleUpdateTask(c *gin.Context)
	HandleDeleteTask(c *gin.Context)
	HandleArchiveTask(c *gin.Context)
	HandleUnarchiveTask(c *gin.Context)
	HandleGetTaskActions(c *gin.Context)

	HandleCreateComment(c *gin.Context)
	HandleGetComments(c *gin.Context)

	HandleAssignTask(c *gin.Context)
	HandleApproveTask(c *gin.Context)
	HandleRejectTask(c *gin.Context)
	HandleSetTaskStatus(c *gin.Context)
	HandleSetTaskPriority(c *gin.Context)
	HandleRescheduleTask(c *gin.Context)

	HandleGetCalendar(c *gin.Context)
	HandleExportCalendar(c *gin.Context)

	HandleGetUsers(c *gin.Context)
	HandleCreateUser(c *gin.Context)
	HandleGetUser(c *gin.Context)
	HandleUpdateUser(c *gin.Context)
	HandleDeleteUser(c *gin.Context)
	HandleUpdateProfile(c *gin.Context)
}

// CalendarPublisher pushes approved tasks to an external calendar.
type CalendarPublisher interface {
	Publish(ctx context.Context, tasks []models.Task) (gcal.Result, error)
}

type handlerImpl struct {
	logger     zerolog.Logger
	auth       services.AuthService
	users      services.UserService
	tasks      services.TaskService
	comments   services.CommentService
	workflow   *workflow.Workflow
	translator *i18n.Translator
	// nil when export is disabled.
	publisher CalendarPublisher
	location  *time.Location
	now       func() time.Time
}

func New(
	logger zerolog.Logger,
	authService services.AuthService,
	userService services.UserService,
	taskService services.TaskService,
	commentService services.CommentService,
	translator *i18n.Translator,
	publisher CalendarPublisher,
	location *time.Location,
) Handler {
	if location == nil {
		location = time.UTC
	}
	return &handlerImpl{
		logger:     logger,
		auth:       authService,
		users:      userService,
		tasks:      taskService,
		comments:   commentService,
		workflow:   workflow.New(userService, time.Now),
		translator: translator,
		publisher:  publisher,
		location:   location,
		now:        time.Now,
	}
}

// RegisterRoutes mounts the v1 API under router.
func RegisterRoutes(router gin.IRouter, h Handler) {
	router = router.Group("/api/v1")

	authRouter := router.Group("/auth")
	authRouter.POST("/login", h.HandleLogin)
	authRouter.GET("/me", h.HandleAuthMiddleware, h.HandleMe)

	protected := router.Group("", h.HandleAuthMiddleware)
	admin := protected.Group("", h.HandleAdminMiddleware)

	protected.GET("/tasks", h.HandleGetTasks)
	admin.POST("/tasks", h.HandleCreateTask)
	admin.GET("/tasks/pending", h.HandleGetPendingTasks)
	protected.GET("/tasks/:id", h.HandleGetTask)
	admin.PUT("/tasks/:id", h.HandleUpdateTask)
	admin.PATCH("/tasks/:id", h.HandleUpdateTask)
	admin.DELETE("/tasks/:id", h.HandleDeleteTask)
	admin.PUT("/tasks/:id/archive", h.HandleArchiveTask)
	admin.PUT("/tasks/:id/unarchive", h.HandleUnarchiveTask)
	protected.GET("/tasks/:id/actions", h.HandleGetTaskActions)
	protected.GET("/tasks/:id/comments", h.HandleGetComments)
	protected.POST("/tasks/:id/comments", h.HandleCreateComment)

	admin.PATCH("/tasks/:id/assign", h.HandleAssignTask)
	admin.POST("/tasks/:id/approve", h.HandleApproveTask)
	admin.POST("/tasks/:id/reject", h.HandleRejectTask)
	protected.PATCH("/tasks/:id/status", h.HandleSetTaskStatus)
	admin.PATCH("/tasks/:id/priority", h.HandleSetTaskPriority)
	protected.PUT("/tasks/:id/date", h.HandleRescheduleTask)

	protected.GET("/calendar", h.HandleGetCalendar)
	admin.POST("/calendar/export", h.HandleExportCalendar)

	admin.GET("/users", h.HandleGetUsers)
	admin.POST("/users", h.HandleCreateUser)
	admin.GET("/users/:id", h.HandleGetUser)
	admin.PUT("/users/:id", h.HandleUpdateUser)
	admin.DELETE("/users/:id", h.HandleDeleteUser)
	protected.PUT("/profile", h.HandleUpdateProfile)
}
