package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/taskmanager/taskmanager-go/internal/model"
)

var ErrTaskNotFound = errors.New("task not found")

// sortColumns maps sortable task fields to their columns.
var sortColumns = map[string]string{
	model.SortByDescription: "description",
	model.SortByCompleted:   "completed",
	model.SortByCreatedAt:   "created_at",
	model.SortByUpdatedAt:   "updated_at",
}

// maxRows is MySQL's idiom for "no limit" when only an offset is wanted.
const maxRows = "18446744073709551615"

// TaskRepository handles task persistence operations.
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const selectTask = `SELECT id, owner_id, description, completed, created_at, updated_at FROM tasks`

func scanTask(row interface{ Scan(...any) error }, t *model.Task) error {
	return row.Scan(&t.ID, &t.Owner, &t.Description, &t.Completed, &t.CreatedAt, &t.UpdatedAt)
}

// Create inserts a new task.
func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	query := `INSERT INTO tasks (id, owner_id, description, completed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		task.ID, task.Owner, task.Description, task.Completed, task.CreatedAt, task.UpdatedAt,
	)
	return err
}

// List retrieves the owner's tasks, filtered, ordered and paged by q.
func (r *TaskRepository) List(ctx context.Context, ownerID string, q model.TaskQuery) ([]model.Task, error) {
	query, args := buildListQuery(ownerID, q)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		var t model.Task
		if err := scanTask(rows, &t); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}

func buildListQuery(ownerID string, q model.TaskQuery) (string, []any) {
	var b strings.Builder
	b.WriteString(selectTask)
	b.WriteString(` WHERE owner_id = ?`)
	args := []any{ownerID}

	if q.Completed != nil {
		b.WriteString(` AND completed = ?`)
		args = append(args, *q.Completed)
	}

	b.WriteString(` ORDER BY `)
	if col, ok := sortColumns[q.SortField]; ok {
		b.WriteString(col)
		if q.SortDesc {
			b.WriteString(` DESC`)
		} else {
			b.WriteString(` ASC`)
		}
		b.WriteString(`, `)
	}
	b.WriteString(`created_at ASC, id ASC`)

	switch {
	case q.Limit > 0:
		b.WriteString(` LIMIT ? OFFSET ?`)
		args = append(args, q.Limit, q.Skip)
	case q.Skip > 0:
		b.WriteString(` LIMIT ` + maxRows + ` OFFSET ?`)
		args = append(args, q.Skip)
	}

	return b.String(), args
}

// GetByID retrieves a task by ID, provided it belongs to ownerID.
func (r *TaskRepository) GetByID(ctx context.Context, ownerID, taskID string) (*model.Task, error) {
	task := &model.Task{}
	err := scanTask(r.db.QueryRowContext(ctx, selectTask+` WHERE id = ? AND owner_id = ?`, taskID, ownerID), task)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	return task, nil
}

// Update writes description, completed and updatedAt of an owned task.
// It returns ErrTaskNotFound if the task is gone.
func (r *TaskRepository) Update(ctx context.Context, task *model.Task) error {
	query := `UPDATE tasks SET description = ?, completed = ?, updated_at = ? WHERE id = ? AND owner_id = ?`

	result, err := r.db.ExecContext(ctx, query,
		task.Description, task.Completed, task.UpdatedAt, task.ID, task.Owner,
	)
	if err != nil {
		return err
	}
	return expectRows(result, ErrTaskNotFound)
}

// Delete removes an owned task and returns the removed row.
func (r *TaskRepository) Delete(ctx context.Context, ownerID, taskID string) (*model.Task, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	task := &model.Task{}
	row := tx.QueryRowContext(ctx, selectTask+` WHERE id = ? AND owner_id = ? FOR UPDATE`, taskID, ownerID)
	if err := scanTask(row, task); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND owner_id = ?`, taskID, ownerID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return task, nil
}
