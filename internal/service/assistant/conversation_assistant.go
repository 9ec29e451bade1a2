package assistant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"smartdesk/internal/models"
)

// CreateConversation inserts a new conversation for the given user.
func (s *Service) CreateConversation(ctx context.Context, userID int64, title, windowID string) (*models.Conversation, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "New Conversation"
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (user_id, title, window_id, created_at) VALUES (?, ?, ?, ?)`,
		userID, title, windowID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("conversation id: %w", err)
	}
	return &models.Conversation{ID: id, UserID: userID, Title: title, WindowID: windowID, CreatedAt: now}, nil
}

// ListConversations returns all conversations for a user, newest first.
func (s *Service) ListConversations(ctx context.Context, userID int64) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, window_id, created_at FROM conversations WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.WindowID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// VerifyConversation confirms the conversation exists and belongs to the
// user. Returns sql.ErrNoRows otherwise.
func (s *Service) VerifyConversation(ctx context.Context, userID, conversationID int64) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM conversations WHERE id = ? AND user_id = ?)`,
		conversationID, userID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("verify conversation: %w", err)
	}
	if !exists {
		return sql.ErrNoRows
	}
	return nil
}

// ListMessages returns every message in the conversation oldest-first,
// after verifying ownership.
func (s *Service) ListMessages(ctx context.Context, userID, conversationID int64) ([]*models.Message, error) {
	if err := s.VerifyConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender, text, search_results, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// RecentMessages returns at most limit latest messages, oldest-first.
func (s *Service) RecentMessages(ctx context.Context, conversationID int64, limit int) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender, text, search_results, created_at FROM (
			SELECT id, conversation_id, sender, text, search_results, created_at
			FROM messages WHERE conversation_id = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		 ) latest ORDER BY created_at ASC, id ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// CreateMessage validates and stores a message.
func (s *Service) CreateMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	var resultsJSON sql.NullString
	if len(msg.SearchResults) > 0 {
		raw, err := json.Marshal(msg.SearchResults)
		if err != nil {
			return nil, fmt.Errorf("encode search results: %w", err)
		}
		resultsJSON = sql.NullString{String: string(raw), Valid: true}
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, sender, text, search_results, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ConversationID, msg.Sender, msg.Text, resultsJSON, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	msg.ID = id
	msg.CreatedAt = now
	return &msg, nil
}

// DeleteConversation removes a conversation and its messages for the user.
func (s *Service) DeleteConversation(ctx context.Context, userID, conversationID int64) error {
	if conversationID <= 0 {
		return errors.New("invalid conversation id")
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = ? AND user_id = ?`,
		conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
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

func scanMessages(rows *sql.Rows) ([]*models.Message, error) {
	var messages []*models.Message
	for rows.Next() {
		m := new(models.Message)
		var resultsJSON sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Text, &resultsJSON, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if resultsJSON.Valid && resultsJSON.String != "" {
			if err := json.Unmarshal([]byte(resultsJSON.String), &m.SearchResults); err != nil {
				// A corrupt blob hides the results, not the message.
				log.Printf("decode search results for message %d: %v", m.ID, err)
				m.SearchResults = nil
			}
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
