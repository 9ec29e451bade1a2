package models

import "time"

// NewsQuery is a saved topic monitored for a dashboard window. One query per
// (user, window); saving again replaces the topic and reactivates it.
type NewsQuery struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Topic       string     `json:"topic"`
	WindowID    string     `json:"window_id"`
	Active      bool       `json:"active"`
	LastFetched *time.Time `json:"last_fetched,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Notification records a fresh article surfaced by the news monitor.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	QueryID   int64     `json:"query_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	URL       string    `json:"url,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
