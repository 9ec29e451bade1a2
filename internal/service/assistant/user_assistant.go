package assistant

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"smartdesk/internal/models"
)

// Service handles user lifecycle and the persistence behind conversations,
// notes, tasks, prompts, news queries, and the dashboard layout.
type Service struct {
	db *sql.DB
}

// NewService returns a Service backed by db.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// DB exposes the underlying handle for collaborators that share it.
func (s *Service) DB() *sql.DB {
	return s.db
}

// RegisterUser creates an account. Usernames are unique.
func (s *Service) RegisterUser(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}

	hash := hashPassword(password)
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, hash, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	return &models.User{ID: id, Username: username, PasswordHash: hash, CreatedAt: now}, nil
}

// Login checks the credentials and returns the matching user.
func (s *Service) Login(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return nil, errors.New("username and password are required")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username,
	)
	var user models.User
	if err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.New("invalid credentials")
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	if user.PasswordHash != hashPassword(password) {
		return nil, errors.New("invalid credentials")
	}
	return &user, nil
}

// DeleteUser drops the account; FK cascades remove the user's data.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid user id")
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
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

func hashPassword(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
