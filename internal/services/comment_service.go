package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/dftm/dftm-calendar/internal/models"
)

const commentColumns = `id,
       task_id,
       COALESCE(author_id, ''),
       text,
       text_language,
       text_translations,
       created_at`

type commentServiceImpl struct {
	logger zerolog.Logger
	pgPool *pgxpool.Pool
}

func NewCommentService(
	logger zerolog.Logger,
	pgPool *pgxpool.Pool,
) CommentService {
	return &commentServiceImpl{
		logger: logger,
		pgPool: pgPool,
	}
}

func (s *commentServiceImpl) CreateComment(ctx context.Context, params CreateCommentParams) (*models.Comment, error) {
	comment := &models.Comment{
		TaskID:    params.TaskID,
		AuthorID:  params.AuthorID,
		Text:      params.Text,
		CreatedAt: time.Now(),
	}

	commentUUID, err := uuid.NewV7()
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to generate comment uuid")
		return nil, err
	}
	comment.ID = commentUUID.String()

	const insertCommentQuery = `
INSERT INTO comments (id,
                      task_id,
                      author_id,
                      text,
                      text_language,
                      text_translations,
                      created_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
`
	_, err = s.pgPool.Exec(
		ctx,
		insertCommentQuery,
		comment.ID,
		comment.TaskID,
		comment.AuthorID,
		comment.Text.Text,
		comment.Text.Original,
		comment.Text.Translations,
		comment.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			s.logger.Error().
				Str("task_id", comment.TaskID).
				Msg("task not found")
			return nil, ErrTaskNotFound
		}

		s.logger.Error().
			Err(err).
			Str("task_id", comment.TaskID).
			Msg("failed to insert comment")
		return nil, err
	}

	s.logger.Info().
		Str("comment_id", comment.ID).
		Str("task_id", comment.TaskID).
		Msg("created comment")
	return comment, nil
}

func (s *commentServiceImpl) ListComments(ctx context.Context, taskID string) ([]models.Comment, error) {
	const selectCommentsByTaskQuery = `
SELECT ` + commentColumns + `
FROM comments
WHERE task_id = $1
ORDER BY created_at
`
	rows, err := s.pgPool.Query(ctx, selectCommentsByTaskQuery, taskID)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("task_id", taskID).
			Msg("failed to select comments")
		return nil, err
	}
	defer rows.Close()

	comments := make([]models.Comment, 0)
	for rows.Next() {
		var c models.Comment
		err = rows.Scan(
			&c.ID,
			&c.TaskID,
			&c.AuthorID,
			&c.Text.Text,
			&c.Text.Original,
			&c.Text.Translations,
			&c.CreatedAt,
		)
		if err != nil {
			s.logger.Error().
				Err(err).
				Msg("failed to scan comment")
			return nil, err
		}
		comments = append(comments, c)
	}

	err = rows.Err()
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("failed to iterate over rows")
		return nil, err
	}
	return comments, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation
}
