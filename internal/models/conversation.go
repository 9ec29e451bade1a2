package models

import "time"

// Conversation is a titled thread of messages owned by one user. A
// conversation may be bound to a dashboard window via WindowID.
type Conversation struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Title     string    `json:"title"`
	WindowID  string    `json:"window_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
