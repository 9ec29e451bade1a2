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

// CreatePrompt stores a reusable prompt template for the user.
func (s *Service) CreatePrompt(ctx context.Context, userID int64, title, prompt string) (*models.Prompt, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	title = strings.TrimSpace(title)
	prompt = strings.TrimSpace(prompt)
	if title == "" || prompt == "" {
		return nil, errors.New("title and prompt are required")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO prompts (user_id, title, prompt, created_at) VALUES (?, ?, ?, ?)`,
		userID, title, prompt, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create prompt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("prompt id: %w", err)
	}
	return &models.Prompt{ID: id, UserID: userID, Title: title, Prompt: prompt, CreatedAt: now}, nil
}

// ListPrompts returns the user's prompt templates, newest first.
func (s *Service) ListPrompts(ctx context.Context, userID int64) ([]models.Prompt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, prompt, created_at FROM prompts WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	var prompts []models.Prompt
	for rows.Next() {
		var p models.Prompt
		if err := rows.Scan(&p.ID, &p.UserID, &p.Title, &p.Prompt, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prompt: %w", err)
		}
		prompts = append(prompts, p)
	}
	return prompts, rows.Err()
}

// UpdatePrompt replaces a prompt's title and body.
func (s *Service) UpdatePrompt(ctx context.Context, userID, promptID int64, title, prompt string) error {
	if promptID <= 0 {
		return errors.New("invalid prompt id")
	}
	title = strings.TrimSpace(title)
	prompt = strings.TrimSpace(prompt)
	if title == "" || prompt == "" {
		return errors.New("title and prompt are required")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE prompts SET title = ?, prompt = ? WHERE id = ? AND user_id = ?`,
		title, prompt, promptID, userID,
	)
	if err != nil {
		return fmt.Errorf("update prompt: %w", err)
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

// DeletePrompt removes a prompt the user owns.
func (s *Service) DeletePrompt(ctx context.Context, userID, promptID int64) error {
	if promptID <= 0 {
		return errors.New("invalid prompt id")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM prompts WHERE id = ? AND user_id = ?`, promptID, userID)
	if err != nil {
		return fmt.Errorf("delete prompt: %w", err)
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
