package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/dftm/dftm-calendar/internal/calendar"
	"github.com/dftm/dftm-calendar/internal/models"
)

const defaultTaskLimit = 500

const taskColumns = `id,
       title,
       description,
       description_language,
       description_translations,
       status,
       priority,
       COALESCE(assignee_id, ''),
       COALESCE(assigner_id, ''),
       reporter,
       due_date,
       archived,
       created_at,
       updated_at`

type taskServiceImpl struct {
	logger zerolog.Logger
	pgPool *pgxpool.Pool
}

func NewTaskService(
	logger zerolog.Logger,
	pgPool *pgxpool.Pool,
) TaskService {
	return &taskServiceImpl{
		logger: logger,
		pgPool: pgPool,
	}
}

func (s *taskServiceImpl) CreateTask(ctx context.Context, params CreateTaskParams) (*models.Task, error) {
	now := time.Now()
	task := &models.Task{
		Title:       params.Title,
		Description: params.Description,
		Status:      models.StatusPending,
		Priority:    params.Priority,
		AssignerID:  params.AssignerID,
		Reporter:    params.Reporter,
		DueDate:     params.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}

	taskUUID, err := uuid.NewV7()
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to generate task uuid")
		return nil, err
	}
	task.ID = taskUUID.String()

	const insertTaskQuery = `
INSERT INTO tasks (id,
                   title,
                   description,
                   description_language,
                   description_translations,
                   status,
                   priority,
                   assigner_id,
                   reporter,
                   due_date,
                   created_at,
                   updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12)
`
	_, err = s.pgPool.Exec(
		ctx,
		insertTaskQuery,
		task.ID,
		task.Title,
		task.Description.Text,
		task.Description.Original,
		task.Description.Translations,
		task.Status,
		task.Priority,
		task.AssignerID,
		task.Reporter,
		task.DueDate,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to insert task")
		return nil, err
	}

	s.logger.Info().
		Str("task_id", task.ID).
		Str("priority", string(task.Priority)).
		Msg("created task")
	return task, nil
}

func (s *taskServiceImpl) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	const selectTaskByIDQuery = `
SELECT ` + taskColumns + `
FROM tasks
WHERE id = $1
`
	task, err := scanTask(s.pgPool.QueryRow(ctx, selectTaskByIDQuery, taskID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Debug().
				Str("task_id", taskID).
				Msg("task not found")
			return nil, ErrTaskNotFound
		}

		s.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Msg("failed to select task by id")
		return nil, err
	}
	return task, nil
}

func (s *taskServiceImpl) ListTasks(ctx context.Context, filter TaskFilter) ([]models.Task, error) {
	query, args := buildListTasksQuery(filter)

	rows, err := s.pgPool.Query(ctx, query, args...)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to select tasks")
		return nil, err
	}
	defer rows.Close()

	tasks := make([]models.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			s.logger.Error().
				Err(err).
				Msg("failed to scan task")
			return nil, err
		}
		tasks = append(tasks, *task)
	}

	err = rows.Err()
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to iterate over rows")
		return nil, err
	}

	s.logger.Debug().
		Int("count", len(tasks)).
		Str("assignee_id", filter.AssigneeID).
		Msg("selected tasks")
	return tasks, nil
}

// The status guard turns concurrent transitions of one task into
// a lost race for all but the first writer.
const updateTaskWorkflowQuery = `
UPDATE tasks
SET status = $1,
    priority = $2,
    assignee_id = NULLIF($3, ''),
    assigner_id = NULLIF($4, ''),
    due_date = $5,
    updated_at = $6
WHERE id = $7
  AND status = $8
RETURNING ` + taskColumns + `
`

func (s *taskServiceImpl) SaveTask(ctx context.Context, task models.Task, expected models.Status) (*models.Task, error) {
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = time.Now()
	}

	saved, err := scanTask(s.pgPool.QueryRow(
		ctx,
		updateTaskWorkflowQuery,
		task.Status,
		task.Priority,
		task.AssigneeID,
		task.AssignerID,
		task.DueDate,
		task.UpdatedAt,
		task.ID,
		expected,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, s.explainMissedSave(ctx, task.ID, expected)
		}

		s.logger.Error().
			Err(err).
			Str("task_id", task.ID).
			Msg("failed to update task")
		return nil, err
	}

	s.logger.Info().
		Str("task_id", saved.ID).
		Str("status", string(saved.Status)).
		Str("assignee_id", saved.AssigneeID).
		Msg("saved task")
	return saved, nil
}

// explainMissedSave tells a deleted task from one whose status
// moved on after the caller loaded it.
func (s *taskServiceImpl) explainMissedSave(ctx context.Context, taskID string, expected models.Status) error {
	const selectTaskStatusQuery = `
SELECT status
FROM tasks
WHERE id = $1
`
	var current models.Status
	err := s.pgPool.QueryRow(ctx, selectTaskStatusQuery, taskID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Error().
				Str("task_id", taskID).
				Msg("task not found")
			return ErrTaskNotFound
		}

		s.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Msg("failed to select task status")
		return err
	}

	s.logger.Warn().
		Str("task_id", taskID).
		Str("expected_status", string(expected)).
		Str("status", string(current)).
		Msg("task status changed before save")
	return fmt.Errorf("%w: now %s", ErrTaskStatusChanged, current)
}

func (s *taskServiceImpl) UpdateTask(ctx context.Context, params UpdateTaskParams) (*models.Task, error) {
	var description, language *string
	var translations map[models.Language]string
	if params.Description != nil {
		description = &params.Description.Text
		lang := string(params.Description.Original)
		language = &lang
		translations = params.Description.Translations
	}

	const updateTaskContentQuery = `
UPDATE tasks
SET title = COALESCE($1, title),
    description = COALESCE($2, description),
    description_language = COALESCE($3, description_language),
    description_translations = CASE WHEN $2::TEXT IS NULL THEN description_translations ELSE $4 END,
    reporter = COALESCE($5, reporter),
    updated_at = $6
WHERE id = $7
RETURNING ` + taskColumns + `
`
	task, err := scanTask(s.pgPool.QueryRow(
		ctx,
		updateTaskContentQuery,
		params.Title,
		description,
		language,
		translations,
		params.Reporter,
		time.Now(),
		params.ID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Error().
				Str("task_id", params.ID).
				Msg("task not found")
			return nil, ErrTaskNotFound
		}

		s.logger.Error().
			Err(err).
			Str("task_id", params.ID).
			Msg("failed to update task")
		return nil, err
	}

	s.logger.Info().
		Str("task_id", task.ID).
		Msg("updated task")
	return task, nil
}

func (s *taskServiceImpl) SetArchived(ctx context.Context, taskID string, archived bool) (*models.Task, error) {
	const updateArchivedQuery = `
UPDATE tasks
SET archived = $1,
    updated_at = $2
WHERE id = $3
RETURNING ` + taskColumns + `
`
	task, err := scanTask(s.pgPool.QueryRow(
		ctx,
		updateArchivedQuery,
		archived,
		time.Now(),
		taskID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Error().
				Str("task_id", taskID).
				Msg("task not found")
			return nil, ErrTaskNotFound
		}

		s.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Msg("failed to update task archived flag")
		return nil, err
	}

	s.logger.Info().
		Str("task_id", taskID).
		Bool("archived", archived).
		Msg("updated task archived flag")
	return task, nil
}

func (s *taskServiceImpl) DeleteTask(ctx context.Context, taskID string) error {
	const deleteTaskQuery = `
DELETE FROM tasks
WHERE id = $1
`
	tag, err := s.pgPool.Exec(
		ctx,
		deleteTaskQuery,
		taskID,
	)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Msg("failed to delete task")
		return err
	}
	if tag.RowsAffected() == 0 {
		s.logger.Error().
			Str("task_id", taskID).
			Msg("task not found")
		return ErrTaskNotFound
	}

	s.logger.Info().
		Str("task_id", taskID).
		Msg("deleted task")
	return nil
}

// buildListTasksQuery turns the filter into a parameterized query.
func buildListTasksQuery(filter TaskFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, st := range filter.Statuses {
			statuses = append(statuses, string(st))
		}
		where = append(where, "status = ANY("+arg(statuses)+")")
	}
	if filter.AssigneeID != "" {
		where = append(where, "assignee_id = "+arg(filter.AssigneeID))
	}
	if filter.Archived != nil {
		where = append(where, "archived = "+arg(*filter.Archived))
	}

	column := "due_date"
	if filter.Field == calendar.CreatedAtField {
		column = "created_at"
	}
	if filter.From != nil {
		where = append(where, column+" >= "+arg(*filter.From))
	}
	if filter.To != nil {
		where = append(where, column+" < "+arg(*filter.To))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(taskColumns)
	b.WriteString("\nFROM tasks")
	if len(where) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(where, "\n  AND "))
	}
	b.WriteString("\nORDER BY created_at DESC")

	limit := filter.Limit
	if limit == 0 {
		limit = defaultTaskLimit
	}
	b.WriteString("\nLIMIT " + arg(limit))
	b.WriteString(" OFFSET " + arg(filter.Offset))

	return b.String(), args
}

func scanTask(row pgx.Row) (*models.Task, error) {
	task := new(models.Task)
	err := row.Scan(
		&task.ID,
		&task.Title,
		&task.Description.Text,
		&task.Description.Original,
		&task.Description.Translations,
		&task.Status,
		&task.Priority,
		&task.AssigneeID,
		&task.AssignerID,
		&task.Reporter,
		&task.DueDate,
		&task.Archived,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return task, nil
}
