package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-task-go/internal/task/entity"
)

var ErrNotFound = errors.New("task not found")

// TaskRepo provides data access for tasks table using sqlx. Every read and
// write is scoped to the owning user.
type TaskRepo struct {
	db *sqlx.DB
}

func NewTaskRepo(db *sqlx.DB) *TaskRepo { return &TaskRepo{db: db} }

const taskColumns = `id, user_id, title, description, status, created_at, updated_at`

func (r *TaskRepo) Create(ctx context.Context, t *entity.Task) error {
	const q = `INSERT INTO tasks (id, user_id, title, description, status, created_at, updated_at)
		VALUES (:id, :user_id, :title, :description, :status, :created_at, :updated_at)`
	_, err := r.db.NamedExecContext(ctx, q, t)
	return err
}

// List returns the user's tasks newest first.
func (r *TaskRepo) List(ctx context.Context, userID int64, f entity.Filter) ([]entity.Task, error) {
	var (
		sb   strings.Builder
		args = []any{userID}
	)
	sb.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE user_id=$1`)
	if f.Status != "" {
		args = append(args, f.Status)
		fmt.Fprintf(&sb, ` AND status=$%d`, len(args))
	}
	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		fmt.Fprintf(&sb, ` AND (title ILIKE $%[1]d OR description ILIKE $%[1]d)`, len(args))
	}
	sb.WriteString(` ORDER BY created_at DESC, id DESC`)

	tasks := []entity.Task{}
	if err := r.db.SelectContext(ctx, &tasks, sb.String(), args...); err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *TaskRepo) Get(ctx context.Context, id, userID int64) (*entity.Task, error) {
	const q = `SELECT ` + taskColumns + ` FROM tasks WHERE id=$1 AND user_id=$2`
	var t entity.Task
	if err := r.db.GetContext(ctx, &t, q, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepo) Update(ctx context.Context, t *entity.Task) error {
	const q = `UPDATE tasks SET title=:title, description=:description, status=:status, updated_at=:updated_at
		WHERE id=:id AND user_id=:user_id`
	res, err := r.db.NamedExecContext(ctx, q, t)
	if err != nil {
		return err
	}
	return expectOne(res)
}

func (r *TaskRepo) Delete(ctx context.Context, id, userID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	return expectOne(res)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string { return likeEscaper.Replace(s) }

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
