package v1

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dftm/dftm-calendar/internal/calendar"
	"github.com/dftm/dftm-calendar/internal/models"
	"github.com/dftm/dftm-calendar/internal/services"
	"github.com/dftm/dftm-calendar/internal/workflow"
)

const dateLayout = "2006-01-02"

type getTaskResponse struct {
	ID                      string                     `json:"id"`
	Title                   string                     `json:"title"`
	Description             string                     `json:"description"`
	DescriptionLanguage     models.Language            `json:"description_language,omitempty"`
	DescriptionTranslations map[models.Language]string `json:"description_translations,omitempty"`
	Status                  models.Status              `json:"status"`
	StatusLabel             string                     `json:"status_label"`
	Priority                models.Priority            `json:"priority"`
	PriorityLabel           string                     `json:"priority_label"`
	AssigneeID              string                     `json:"assignee_id,omitempty"`
	AssignerID              string                     `json:"assigner_id,omitempty"`
	Reporter                string                     `json:"reporter,omitempty"`
	DueDate                 *string                    `json:"due_date"`
	Archived                bool                       `json:"archived"`
	CreatedAt               time.Time                  `json:"created_at"`
	UpdatedAt               time.Time                  `json:"updated_at"`
}

func (h *handlerImpl) newGetTaskResponse(task *models.Task, lang models.Language) getTaskResponse {
	resp := getTaskResponse{
		ID:                      task.ID,
		Title:                   task.Title,
		Description:             task.Description.Resolve(lang, h.translator.Fallback()),
		DescriptionLanguage:     task.Description.Original,
		DescriptionTranslations: task.Description.Translations,
		Status:                  task.Status,
		StatusLabel:             h.translator.StatusLabel(lang, task.Status),
		Priority:                task.Priority,
		PriorityLabel:           h.translator.PriorityLabel(lang, task.Priority),
		AssigneeID:              task.AssigneeID,
		AssignerID:              task.AssignerID,
		Reporter:                task.Reporter,
		Archived:                task.Archived,
		CreatedAt:               task.CreatedAt,
		UpdatedAt:               task.UpdatedAt,
	}
	if task.DueDate != nil && !task.DueDate.IsZero() {
		due := task.DueDate.Format(dateLayout)
		resp.DueDate = &due
	}
	return resp
}

func (h *handlerImpl) respondTask(c *gin.Context, status int, task *models.Task) {
	c.JSON(status, h.newGetTaskResponse(task, h.requestLanguage(c)))
}

func (h *handlerImpl) respondTasks(c *gin.Context, tasks []models.Task) {
	lang := h.requestLanguage(c)

	response := make([]getTaskResponse, len(tasks))
	for i := range tasks {
		response[i] = h.newGetTaskResponse(&tasks[i], lang)
	}
	c.JSON(http.StatusOK, response)
}

type createTaskRequest struct {
	Title               string            `json:"title" binding:"required,max=255"`
	Description         string            `json:"description"`
	DescriptionLanguage string            `json:"description_language"`
	Translations        map[string]string `json:"description_translations"`
	Priority            string            `json:"priority"`
	Reporter            string            `json:"reporter" binding:"max=255"`
	DueDate             string            `json:"due_date"`
}

func (h *handlerImpl) HandleCreateTask(c *gin.Context) {
	var req createTaskRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	params := services.CreateTaskParams{
		Reporter:   req.Reporter,
		AssignerID: currentUserID(c),
	}

	params.Title, err = parseTitle(req.Title)
	if err != nil {
		abort(c, toAPIError(err))
		return
	}

	params.Description, err = parseDescription(req.Description, req.DescriptionLanguage, req.Translations)
	if err != nil {
		abort(c, toAPIError(err))
		return
	}

	if req.Priority != "" {
		priority, ok := models.ParsePriority(req.Priority)
		if !ok {
			abort(c, toAPIError(&workflow.ValidationError{
				Field:  "priority",
				Value:  req.Priority,
				Reason: "unknown priority",
			}))
			return
		}
		params.Priority = priority
	}

	if req.DueDate != "" {
		due, err := h.parseDueDate(c, req.DueDate)
		if err != nil {
			abort(c, toAPIError(err))
			return
		}
		params.DueDate = &due
	}

	task, err := h.tasks.CreateTask(c, params)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to create task")
		abort(c, toAPIError(err))
		return
	}

	h.logger.Info().
		Str("task_id", task.ID).
		Msg("created task")
	h.respondTask(c, http.StatusCreated, task)
}

func parseTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", &workflow.ValidationError{
			Field:  "title",
			Value:  raw,
			Reason: "must not be blank",
		}
	}
	return title, nil
}

func parseDescription(description, language string, translations map[string]string) (models.LocalizedText, error) {
	return parseLocalizedText("description", description, language, translations)
}

// parseLocalizedText validates the language tags of a user text.
// field prefixes the names reported in validation errors.
func parseLocalizedText(field, raw, language string, translations map[string]string) (models.LocalizedText, error) {
	text := models.PlainText(raw)
	if language != "" {
		lang, ok := models.ParseLanguage(language)
		if !ok {
			return text, &workflow.ValidationError{
				Field:  field + "_language",
				Value:  language,
				Reason: "unsupported language",
			}
		}
		text.Original = lang
	}

	if len(translations) > 0 {
		text.Translations = make(map[models.Language]string, len(translations))
		for raw, translated := range translations {
			lang, ok := models.ParseLanguage(raw)
			if !ok {
				return text, &workflow.ValidationError{
					Field:  field + "_translations",
					Value:  raw,
					Reason: "unsupported language",
				}
			}
			text.Translations[lang] = translated
		}
	}
	return text, nil
}

type updateTaskRequest struct {
	Title               *string           `json:"title" binding:"omitempty,max=255"`
	Description         *string           `json:"description"`
	DescriptionLanguage string            `json:"description_language"`
	Translations        map[string]string `json:"description_translations"`
	Reporter            *string           `json:"reporter" binding:"omitempty,max=255"`
}

// HandleUpdateTask edits the content of a task. Workflow fields
// only change through their own endpoints.
func (h *handlerImpl) HandleUpdateTask(c *gin.Context) {
	var req updateTaskRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	params := services.UpdateTaskParams{
		ID:       c.Param("id"),
		Reporter: req.Reporter,
	}

	if req.Title != nil {
		title, err := parseTitle(*req.Title)
		if err != nil {
			abort(c, toAPIError(err))
			return
		}
		params.Title = &title
	}

	if req.Description != nil {
		description, err := parseDescription(*req.Description, req.DescriptionLanguage, req.Translations)
		if err != nil {
			abort(c, toAPIError(err))
			return
		}
		params.Description = &description
	}

	task, err := h.tasks.UpdateTask(c, params)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("task_id", params.ID).
			Msg("failed to update task")
		abort(c, toAPIError(err))
		return
	}

	h.logger.Info().
		Str("task_id", task.ID).
		Msg("updated task")
	h.respondTask(c, http.StatusOK, task)
}

func (h *handlerImpl) HandleGetTasks(c *gin.Context) {
	filter := services.TaskFilter{
		AssigneeID: c.Query("assignee"),
	}

	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status, ok := models.ParseStatus(part)
			if !ok {
				abort(c, newBadRequestError(errInvalidQuery.Error()+": status"))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}

	switch raw := c.Query("archived"); raw {
	case "all":
	case "", "false":
		archived := false
		filter.Archived = &archived
	case "true":
		archived := true
		filter.Archived = &archived
	default:
		abort(c, newBadRequestError(errInvalidQuery.Error()+": archived"))
		return
	}

	var err error
	if filter.Limit, err = queryUint32(c, "limit"); err != nil {
		abort(c, newBadRequestError(errInvalidQuery.Error()+": limit"))
		return
	}
	if filter.Offset, err = queryUint32(c, "offset"); err != nil {
		abort(c, newBadRequestError(errInvalidQuery.Error()+": offset"))
		return
	}

	if !currentRole(c).IsAdmin() {
		filter.AssigneeID = currentUserID(c)
	}

	tasks, err := h.tasks.ListTasks(c, filter)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to list tasks")
		abort(c, toAPIError(err))
		return
	}

	h.logger.Debug().
		Int("count", len(tasks)).
		Msg("fetched tasks")
	h.respondTasks(c, tasks)
}

func (h *handlerImpl) HandleGetPendingTasks(c *gin.Context) {
	archived := false
	tasks, err := h.tasks.ListTasks(c, services.TaskFilter{
		Statuses: []models.Status{models.StatusPending},
		Archived: &archived,
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to list pending tasks")
		abort(c, toAPIError(err))
		return
	}
	h.respondTasks(c, tasks)
}

// loadTask fetches the :id task. Tasks assigned to someone else
// are reported as missing to non-admins.
func (h *handlerImpl) loadTask(c *gin.Context) (*models.Task, bool) {
	taskID := c.Param("id")
	task, err := h.tasks.GetTask(c, taskID)
	if err != nil {
		if !errors.Is(err, services.ErrTaskNotFound) {
			h.logger.Error().
				Err(err).
				Str("task_id", taskID).
				Msg("failed to get task")
		}
		abort(c, toAPIError(err))
		return nil, false
	}

	if !currentRole(c).IsAdmin() && task.AssigneeID != currentUserID(c) {
		h.logger.Warn().
			Str("task_id", taskID).
			Str("user_id", currentUserID(c)).
			Msg("task is not assigned to user")
		abort(c, newNotFoundError(services.ErrTaskNotFound.Error()))
		return nil, false
	}
	return task, true
}

func (h *handlerImpl) HandleGetTask(c *gin.Context) {
	task, ok := h.loadTask(c)
	if !ok {
		return
	}
	h.respondTask(c, http.StatusOK, task)
}

func (h *handlerImpl) HandleDeleteTask(c *gin.Context) {
	taskID := c.Param("id")
	err := h.tasks.DeleteTask(c, taskID)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Msg("failed to delete task")
		abort(c, toAPIError(err))
		return
	}

	h.logger.Info().
		Str("task_id", taskID).
		Msg("deleted task")
	c.Status(http.StatusNoContent)
}

func (h *handlerImpl) HandleArchiveTask(c *gin.Context) {
	h.setArchived(c, true)
}

func (h *handlerImpl) HandleUnarchiveTask(c *gin.Context) {
	h.setArchived(c, false)
}

func (h *handlerImpl) setArchived(c *gin.Context, archived bool) {
	taskID := c.Param("id")
	task, err := h.tasks.SetArchived(c, taskID, archived)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Bool("archived", archived).
			Msg("failed to set task archived flag")
		abort(c, toAPIError(err))
		return
	}
	h.respondTask(c, http.StatusOK, task)
}

type getTaskActionsResponse struct {
	Actions []workflow.Action `json:"actions"`
}

func (h *handlerImpl) HandleGetTaskActions(c *gin.Context) {
	task, ok := h.loadTask(c)
	if !ok {
		return
	}

	actions := h.workflow.AllowedActions(*task)
	if !currentRole(c).IsAdmin() {
		actions = userActions(actions)
	}
	c.JSON(http.StatusOK, getTaskActionsResponse{Actions: actions})
}

// userActions drops the actions only admins may perform.
func userActions(actions []workflow.Action) []workflow.Action {
	out := make([]workflow.Action, 0, len(actions))
	for _, a := range actions {
		if a == workflow.ActionUpdateStatus || a == workflow.ActionReschedule {
			out = append(out, a)
		}
	}
	return out
}

type assignTaskRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *handlerImpl) HandleAssignTask(c *gin.Context) {
	var req assignTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	task, ok := h.loadTask(c)
	if !ok {
		return
	}

	updated, err := h.workflow.Assign(c, *task, req.UserID)
	if err != nil {
		h.abortTransition(c, task, workflow.ActionAssign, err)
		return
	}
	updated.AssignerID = currentUserID(c)

	h.saveTransition(c, updated, task.Status, workflow.ActionAssign)
}

type approveTaskRequest struct {
	AssigneeID string `json:"assignee_id"`
	DueDate    string `json:"due_date"`
}

func (h *handlerImpl) HandleApproveTask(c *gin.Context) {
	var req approveTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	task, ok := h.loadTask(c)
	if !ok {
		return
	}

	var dueDate *time.Time
	if req.DueDate != "" {
		due, err := h.parseDueDate(c, req.DueDate)
		if err != nil {
			abort(c, toAPIError(err))
			return
		}
		dueDate = &due
	}

	updated, err := h.workflow.Approve(c, *task, req.AssigneeID, dueDate)
	if err != nil {
		h.abortTransition(c, task, workflow.ActionApprove, err)
		return
	}
	if updated.AssigneeID != task.AssigneeID {
		updated.AssignerID = currentUserID(c)
	}

	h.saveTransition(c, updated, task.Status, workflow.ActionApprove)
}

func (h *handlerImpl) HandleRejectTask(c *gin.Context) {
	task, ok := h.loadTask(c)
	if !ok {
		return
	}

	updated, err := h.workflow.Reject(*task)
	if err != nil {
		h.abortTransition(c, task, workflow.ActionReject, err)
		return
	}

	h.saveTransition(c, updated, task.Status, workflow.ActionReject)
}

type setTaskStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *handlerImpl) HandleSetTaskStatus(c *gin.Context) {
	var req setTaskStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	task, ok := h.loadTask(c)
	if !ok {
		return
	}

	status, known := models.ParseStatus(req.Status)
	if !known {
		status = models.Status(req.Status)
	}

	updated, err := h.workflow.UpdateStatus(*task, status)
	if err != nil {
		h.abortTransition(c, task, workflow.ActionUpdateStatus, err)
		return
	}

	h.saveTransition(c, updated, task.Status, workflow.ActionUpdateStatus)
}

type setTaskPriorityRequest struct {
	Priority string `json:"priority" binding:"required"`
}

func (h *handlerImpl) HandleSetTaskPriority(c *gin.Context) {
	var req setTaskPriorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	task, ok := h.loadTask(c)
	if !ok {
		return
	}

	priority, known := models.ParsePriority(req.Priority)
	if !known {
		priority = models.Priority(req.Priority)
	}

	updated, err := h.workflow.UpdatePriority(*task, priority)
	if err != nil {
		h.abortTransition(c, task, workflow.ActionUpdatePriority, err)
		return
	}

	h.saveTransition(c, updated, task.Status, workflow.ActionUpdatePriority)
}

type rescheduleTaskRequest struct {
	DueDate string `json:"due_date" binding:"required"`
}

func (h *handlerImpl) HandleRescheduleTask(c *gin.Context) {
	var req rescheduleTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	task, ok := h.loadTask(c)
	if !ok {
		return
	}

	due, err := h.parseDueDate(c, req.DueDate)
	if err != nil {
		abort(c, toAPIError(err))
		return
	}

	updated, err := h.workflow.Reschedule(*task, due)
	if err != nil {
		h.abortTransition(c, task, workflow.ActionReschedule, err)
		return
	}

	h.saveTransition(c, updated, task.Status, workflow.ActionReschedule)
}

// parseDueDate reads raw in the viewer's calendar and keeps only
// the calendar day, stored at midnight UTC.
func (h *handlerImpl) parseDueDate(c *gin.Context, raw string) (time.Time, error) {
	loc, err := h.requestLocation(c)
	if err != nil {
		return time.Time{}, &workflow.ValidationError{Field: "tz", Value: c.Query("tz"), Reason: "unknown time zone"}
	}

	t, ok := calendar.ParseDate(raw, loc)
	if !ok {
		return time.Time{}, &workflow.ValidationError{Field: "due_date", Value: raw, Reason: "unparsable date"}
	}
	return calendar.CivilDate(t, loc), nil
}

func (h *handlerImpl) abortTransition(c *gin.Context, task *models.Task, action workflow.Action, err error) {
	h.logger.Warn().
		Err(err).
		Str("task_id", task.ID).
		Str("status", string(task.Status)).
		Str("action", string(action)).
		Msg("workflow transition refused")
	abort(c, toAPIError(err))
}

// saveTransition stores task unless its status moved away from
// expected since it was loaded.
func (h *handlerImpl) saveTransition(c *gin.Context, task models.Task, expected models.Status, action workflow.Action) {
	saved, err := h.tasks.SaveTask(c, task, expected)
	if errors.Is(err, services.ErrTaskStatusChanged) {
		h.logger.Warn().
			Err(err).
			Str("task_id", task.ID).
			Str("action", string(action)).
			Msg("lost concurrent workflow transition")
		abort(c, toAPIError(&workflow.PreconditionError{
			Action: action,
			Status: expected,
			Reason: "task status changed concurrently",
		}))
		return
	}
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("task_id", task.ID).
			Str("action", string(action)).
			Msg("failed to save task")
		abort(c, toAPIError(err))
		return
	}

	h.logger.Info().
		Str("task_id", saved.ID).
		Str("action", string(action)).
		Str("status", string(saved.Status)).
		Msg("applied workflow transition")
	h.respondTask(c, http.StatusOK, saved)
}
