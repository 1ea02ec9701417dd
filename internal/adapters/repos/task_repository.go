package repos

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/architeacher/svc-event-bus/internal/domain"
	"github.com/architeacher/svc-event-bus/internal/ports"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const tasksTable = "tasks"

type (
	TaskRepository struct {
		conn *sqlx.DB
	}

	taskRow struct {
		ID           string         `db:"id"`
		Type         string         `db:"type"`
		UserID       string         `db:"user_id"`
		Params       []byte         `db:"params"`
		Output       []byte         `db:"output"`
		Phase        string         `db:"phase"`
		Progress     float64        `db:"progress"`
		Step         sql.NullString `db:"step"`
		Retries      int            `db:"retries"`
		ErrorMessage sql.NullString `db:"error_message"`
		CreatedAt    time.Time      `db:"created_at"`
		UpdatedAt    time.Time      `db:"updated_at"`
	}
)

var _ ports.TaskRepository = (*TaskRepository)(nil)

func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{
		conn: db,
	}
}

func (r *TaskRepository) Find(ctx context.Context, taskID uuid.UUID) (*domain.Task, error) {
	query, args, err := psql.Select("id", "type", "user_id", "params", "output", "phase", "progress",
		"step", "retries", "error_message", "created_at", "updated_at").
		From(tasksTable).
		Where(sq.Eq{"id": taskID.String()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var row taskRow
	if err := r.conn.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewTaskNotFoundError(taskID.String())
		}

		return nil, fmt.Errorf("failed to query task: %w", err)
	}

	return row.toDomain()
}

func (r *TaskRepository) UpdateStatusInTx(ctx context.Context, tx *sqlx.Tx, task *domain.Task) error {
	var output any
	if len(task.Output) > 0 {
		output = []byte(task.Output)
	}

	query, args, err := psql.Update(tasksTable).
		SetMap(map[string]any{
			"phase":         task.Status.Phase,
			"progress":      task.Status.Progress,
			"step":          nullString(task.Status.Step),
			"retries":       task.Status.Retries,
			"error_message": nullString(task.Status.ErrorMessage),
			"output":        output,
			"updated_at":    task.Status.UpdatedAt,
		}).
		Where(sq.Eq{"id": task.ID.String()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return domain.NewTaskNotFoundError(task.ID.String())
	}

	return nil
}

func (row taskRow) toDomain() (*domain.Task, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse task id: %w", err)
	}

	return &domain.Task{
		ID:     id,
		Type:   row.Type,
		UserID: row.UserID,
		Params: json.RawMessage(row.Params),
		Output: json.RawMessage(row.Output),
		Status: domain.TaskStatus{
			Phase:        domain.TaskPhase(row.Phase),
			Progress:     row.Progress,
			Step:         row.Step.String,
			Retries:      row.Retries,
			ErrorMessage: row.ErrorMessage.String,
			UpdatedAt:    row.UpdatedAt,
		},
		CreatedAt: row.CreatedAt,
	}, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
