package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dftm/dftm-calendar/internal/models"
	"github.com/dftm/dftm-calendar/internal/services"
	"github.com/dftm/dftm-calendar/internal/workflow"
)

type getCommentResponse struct {
	ID               string                     `json:"id"`
	TaskID           string                     `json:"task_id"`
	AuthorID         string                     `json:"author_id,omitempty"`
	Text             string                     `json:"text"`
	TextLanguage     models.Language            `json:"text_language,omitempty"`
	TextTranslations map[models.Language]string `json:"text_translations,omitempty"`
	CreatedAt        time.Time                  `json:"created_at"`
}

func (h *handlerImpl) newGetCommentResponse(comment *models.Comment, lang models.Language) getCommentResponse {
	return getCommentResponse{
		ID:               comment.ID,
		TaskID:           comment.TaskID,
		AuthorID:         comment.AuthorID,
		Text:             comment.Text.Resolve(lang, h.translator.Fallback()),
		TextLanguage:     comment.Text.Original,
		TextTranslations: comment.Text.Translations,
		CreatedAt:        comment.CreatedAt,
	}
}

type createCommentRequest struct {
	Text         string            `json:"text" binding:"required,max=4000"`
	Language     string            `json:"text_language"`
	Translations map[string]string `json:"text_translations"`
}

// HandleCreateComment is open to everyone who can see the task.
func (h *handlerImpl) HandleCreateComment(c *gin.Context) {
	var req createCommentRequest
	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("failed to bind json")
		abort(c, newBadRequestError(errInvalidRequestBody.Error()))
		return
	}

	if strings.TrimSpace(req.Text) == "" {
		abort(c, toAPIError(&workflow.ValidationError{
			Field:  "text",
			Value:  req.Text,
			Reason: "must not be blank",
		}))
		return
	}

	text, err := parseLocalizedText("text", strings.TrimSpace(req.Text), req.Language, req.Translations)
	if err != nil {
		abort(c, toAPIError(err))
		return
	}

	task, ok := h.loadTask(c)
	if !ok {
		return
	}

	comment, err := h.comments.CreateComment(c, services.CreateCommentParams{
		TaskID:   task.ID,
		AuthorID: currentUserID(c),
		Text:     text,
	})
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("task_id", task.ID).
			Msg("failed to create comment")
		abort(c, toAPIError(err))
		return
	}

	h.logger.Info().
		Str("task_id", task.ID).
		Str("comment_id", comment.ID).
		Msg("created comment")
	c.JSON(http.StatusCreated, h.newGetCommentResponse(comment, h.requestLanguage(c)))
}

func (h *handlerImpl) HandleGetComments(c *gin.Context) {
	task, ok := h.loadTask(c)
	if !ok {
		return
	}

	comments, err := h.comments.ListComments(c, task.ID)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("task_id", task.ID).
			Msg("failed to list comments")
		abort(c, toAPIError(err))
		return
	}

	lang := h.requestLanguage(c)
	response := make([]getCommentResponse, len(comments))
	for i := range comments {
		response[i] = h.newGetCommentResponse(&comments[i], lang)
	}
	c.JSON(http.StatusOK, response)
}
