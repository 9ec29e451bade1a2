package models

import (
	"fmt"
	"time"
)

// Sender identifies who produced a message. It is a closed set; code that
// branches on a Sender must match every constant explicitly.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderAI     Sender = "ai"
	SenderSystem Sender = "system"
)

// Valid reports whether s is one of the known sender values.
func (s Sender) Valid() bool {
	switch s {
	case SenderUser, SenderAI, SenderSystem:
		return true
	default:
		return false
	}
}

// Message is an immutable entry in a conversation. SearchResults holds the
// denormalized web results that informed an AI reply, kept for audit/display.
type Message struct {
	ID             int64          `json:"id"`
	ConversationID int64          `json:"conversation_id"`
	Sender         Sender         `json:"sender"`
	Text           string         `json:"text"`
	SearchResults  []SearchResult `json:"search_results,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Validate checks the fields required before persistence.
func (m Message) Validate() error {
	if m.ConversationID <= 0 {
		return fmt.Errorf("conversation_id is required")
	}
	if !m.Sender.Valid() {
		return fmt.Errorf("unknown sender %q", string(m.Sender))
	}
	if m.Text == "" {
		return fmt.Errorf("text cannot be empty")
	}
	return nil
}
