package models

import "time"

// DashboardLayout is the per-user dashboard state: open windows and pinned
// items. It is an explicit model serialized at one storage boundary rather
// than opaque client-side state.
type DashboardLayout struct {
	UserID    int64             `json:"user_id"`
	Windows   []DashboardWindow `json:"windows"`
	Pins      []string          `json:"pins"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// DashboardWindow describes one window on the dashboard.
type DashboardWindow struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"` // chat | notes | news | tasks
	Title string `json:"title"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	W     int    `json:"w"`
	H     int    `json:"h"`
}
