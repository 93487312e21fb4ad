package v1

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dftm/dftm-calendar/internal/calendar"
	"github.com/dftm/dftm-calendar/internal/gcal"
	"github.com/dftm/dftm-calendar/internal/i18n"
	"github.com/dftm/dftm-calendar/internal/models"
	"github.com/dftm/dftm-calendar/internal/services"
)

type calendarCellResponse struct {
	Date           *string           `json:"date"`
	IsCurrentMonth bool              `json:"is_current_month"`
	Tasks          []getTaskResponse `json:"tasks"`
}

type getCalendarResponse struct {
	Month    string                 `json:"month"`
	Title    string                 `json:"title"`
	Previous string                 `json:"previous"`
	Next     string                 `json:"next"`
	Weekdays []string               `json:"weekdays"`
	Labels   i18n.Labels            `json:"labels"`
	Cells    []calendarCellResponse `json:"cells"`
}

type calendarQuery struct {
	month  calendar.YearMonth
	loc    *time.Location
	field  calendar.DateField
	filter calendar.Filter
}

func (h *handlerImpl) parseCalendarQuery(c *gin.Context) (calendarQuery, error) {
	var (
		q   calendarQuery
		err error
	)

	q.loc, err = h.requestLocation(c)
	if err != nil {
		return q, fmt.Errorf("tz: %w", err)
	}

	if raw := c.Query("month"); raw != "" {
		q.month, err = calendar.ParseYearMonth(raw)
		if err != nil {
			return q, fmt.Errorf("month: %w", err)
		}
	} else {
		q.month = calendar.MonthOf(h.now().In(q.loc))
	}

	var ok bool
	q.field, ok = calendar.ParseDateField(c.Query("date_field"))
	if !ok {
		return q, fmt.Errorf("date_field: unknown value %q", c.Query("date_field"))
	}

	q.filter.Assignee = c.Query("assignee")
	if raw := c.Query("priority"); raw != "" {
		q.filter.Priority, ok = models.ParsePriority(raw)
		if !ok {
			return q, fmt.Errorf("priority: unknown value %q", raw)
		}
	}
	if q.filter.ShowCompleted, err = queryBool(c, "show_completed", false); err != nil {
		return q, fmt.Errorf("show_completed: %w", err)
	}
	if q.filter.ShowArchived, err = queryBool(c, "show_archived", false); err != nil {
		return q, fmt.Errorf("show_archived: %w", err)
	}

	if !currentRole(c).IsAdmin() {
		q.filter.Assignee = currentUserID(c)
	}
	return q, nil
}

func (h *handlerImpl) monthTasks(c *gin.Context, q calendarQuery, statuses ...models.Status) ([]models.Task, error) {
	// Due dates are stored at midnight UTC, creation times are
	// instants seen from the viewer's zone.
	loc := time.UTC
	if q.field == calendar.CreatedAtField {
		loc = q.loc
	}
	from := q.month.First(loc)
	to := q.month.Next().First(loc)
	return h.tasks.ListTasks(c, services.TaskFilter{
		Statuses:   statuses,
		AssigneeID: q.filter.Assignee,
		Field:      q.field,
		From:       &from,
		To:         &to,
	})
}

func (h *handlerImpl) HandleGetCalendar(c *gin.Context) {
	q, err := h.parseCalendarQuery(c)
	if err != nil {
		h.logger.Error().
			Err(err).
			Msg("invalid calendar query")
		abort(c, newBadRequestError(errInvalidQuery.Error()+": "+err.Error()))
		return
	}

	tasks, err := h.monthTasks(c, q)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("month", q.month.String()).
			Msg("failed to list month tasks")
		abort(c, toAPIError(err))
		return
	}

	cells := calendar.BuildGrid(q.month, tasks,
		calendar.WithLocation(q.loc),
		calendar.WithDateField(q.field),
		calendar.WithFilter(q.filter.Predicate()),
	)

	lang := h.requestLanguage(c)
	resp := getCalendarResponse{
		Month:    q.month.String(),
		Title:    fmt.Sprintf("%s %d", h.translator.MonthName(lang, q.month.Month), q.month.Year),
		Previous: q.month.Previous().String(),
		Next:     q.month.Next().String(),
		Weekdays: h.translator.Weekdays(lang, true),
		Labels:   h.translator.Labels(lang),
		Cells:    make([]calendarCellResponse, len(cells)),
	}
	for i, cell := range cells {
		out := calendarCellResponse{
			IsCurrentMonth: cell.IsCurrentMonth,
			Tasks:          make([]getTaskResponse, len(cell.Tasks)),
		}
		if cell.Date != nil {
			date := cell.Date.Format(dateLayout)
			out.Date = &date
		}
		for j := range cell.Tasks {
			out.Tasks[j] = h.newGetTaskResponse(&cell.Tasks[j], lang)
		}
		resp.Cells[i] = out
	}

	h.logger.Debug().
		Str("month", resp.Month).
		Int("tasks", len(tasks)).
		Msg("built calendar")
	c.JSON(http.StatusOK, resp)
}

func (h *handlerImpl) HandleExportCalendar(c *gin.Context) {
	if h.publisher == nil {
		abort(c, newAPIError(http.StatusServiceUnavailable, errExportDisabled.Error()))
		return
	}

	q, err := h.parseCalendarQuery(c)
	if err != nil {
		abort(c, newBadRequestError(errInvalidQuery.Error()+": "+err.Error()))
		return
	}
	q.field = calendar.DueDateField

	tasks, err := h.monthTasks(c, q, models.StatusApproved)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("month", q.month.String()).
			Msg("failed to list approved tasks")
		abort(c, toAPIError(err))
		return
	}

	result, err := h.publisher.Publish(c, tasks)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("month", q.month.String()).
			Msg("failed to export calendar")
		abort(c, newAPIError(http.StatusBadGateway, "calendar export failed"))
		return
	}

	c.JSON(http.StatusOK, struct {
		Month string `json:"month"`
		gcal.Result
	}{Month: q.month.String(), Result: result})
}
