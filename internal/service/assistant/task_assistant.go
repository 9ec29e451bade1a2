package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"smartdesk/internal/models"
)

// CreateTask inserts a to-do item for the user.
func (s *Service) CreateTask(ctx context.Context, userID int64, title, description string, dueDate *time.Time) (*models.Task, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("title cannot be empty")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (user_id, title, description, completed, due_date, created_at, updated_at) VALUES (?, ?, ?, 0, ?, ?, ?)`,
		userID, title, description, dueDate, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("task id: %w", err)
	}
	return &models.Task{
		ID: id, UserID: userID, Title: title, Description: description,
		DueDate: dueDate, CreatedAt: now, UpdatedAt: now,
	}, nil
}

// ListTasks returns the user's tasks, optionally filtered by completion.
func (s *Service) ListTasks(ctx context.Context, userID int64, completed *bool) ([]models.Task, error) {
	query := `SELECT id, user_id, title, description, completed, due_date, created_at, updated_at FROM tasks WHERE user_id = ?`
	args := []any{userID}
	if completed != nil {
		query += ` AND completed = ?`
		args = append(args, *completed)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var t models.Task
		var due sql.NullTime
		if err := rows.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Completed, &due, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		if due.Valid {
			t.DueDate = &due.Time
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTask replaces the mutable fields of a task the user owns.
func (s *Service) UpdateTask(ctx context.Context, userID, taskID int64, title, description string, completed bool, dueDate *time.Time) error {
	if taskID <= 0 {
		return errors.New("invalid task id")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title cannot be empty")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, completed = ?, due_date = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		title, description, completed, dueDate, time.Now().UTC(), taskID, userID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteTask removes a task the user owns.
func (s *Service) DeleteTask(ctx context.Context, userID, taskID int64) error {
	if taskID <= 0 {
		return errors.New("invalid task id")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, taskID, userID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
