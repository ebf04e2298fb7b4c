package tasks

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const taskColumns = `id, title, description, status, priority, due_date, created_at, updated_at`

type PostgresRepository struct {
	Pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{Pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, task Task) (Task, error) {
	row := r.Pool.QueryRow(ctx,
		`INSERT INTO tasks (title, description, status, priority, due_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+taskColumns,
		task.Title, task.Description, task.Status, task.Priority, task.DueDate, task.CreatedAt, task.UpdatedAt,
	)
	created, err := scanTask(row)
	if err != nil {
		return Task{}, storageErr("create task", err)
	}
	return created, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (Task, error) {
	task, err := scanTask(r.Pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Task{}, &NotFoundError{ID: id}
		}
		return Task{}, storageErr("get task", err)
	}
	return task, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]Task, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != nil {
		args = append(args, *filter.Status)
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if filter.Priority != nil {
		args = append(args, *filter.Priority)
		where = append(where, "priority = $"+strconv.Itoa(len(args)))
	}
	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list tasks", err)
	}
	defer rows.Close()

	result := make([]Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, storageErr("list tasks", err)
		}
		result = append(result, task)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list tasks", err)
	}
	return result, nil
}

// Update locks the row, applies changes and writes it back in one
// transaction, so the returned Previous is exactly the state that was
// replaced.
func (r *PostgresRepository) Update(ctx context.Context, id int64, changes Changes, now time.Time) (UpdateResult, error) {
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return UpdateResult{}, storageErr("begin update", err)
	}
	defer tx.Rollback(ctx)

	previous, err := scanTask(tx.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UpdateResult{}, &NotFoundError{ID: id}
		}
		return UpdateResult{}, storageErr("lock task", err)
	}

	current := previous.clone()
	changes.Apply(&current, now)

	current, err = scanTask(tx.QueryRow(ctx,
		`UPDATE tasks
		 SET title = $2, description = $3, status = $4, priority = $5, due_date = $6, updated_at = $7
		 WHERE id = $1
		 RETURNING `+taskColumns,
		id, current.Title, current.Description, current.Status, current.Priority, current.DueDate, current.UpdatedAt,
	))
	if err != nil {
		return UpdateResult{}, storageErr("update task", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return UpdateResult{}, storageErr("commit update", err)
	}
	return UpdateResult{Previous: previous, Current: current}, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return storageErr("delete task", err)
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{ID: id}
	}
	return nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	if err := r.Pool.Ping(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	if err := row.Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&t.Status,
		&t.Priority,
		&t.DueDate,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return Task{}, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	if t.DueDate != nil {
		due := t.DueDate.UTC()
		t.DueDate = &due
	}
	return t, nil
}

// storageErr wraps engine failures. Constraint violations that slipped past
// input validation are still the client's fault and are reported as such.
func storageErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "22001":
			return invalid(columnOf(pgErr), "is too long")
		case "23514":
			return invalid(columnOf(pgErr), "violates constraint "+pgErr.ConstraintName)
		}
	}
	return &StorageError{Op: op, Err: err}
}

func columnOf(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	return "task"
}
