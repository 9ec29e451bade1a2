package models

import "time"

// MainNoteWindowID identifies the user's primary block note; window-bound
// notes carry the window's own id instead.
const MainNoteWindowID = "block-note-main"

// Note is a multi-page notebook, optionally bound to a dashboard window.
type Note struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	WindowID  string     `json:"window_id"`
	Pages     []NotePage `json:"pages"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NotePage is a single titled page inside a note.
type NotePage struct {
	ID        int64     `json:"id"`
	NoteID    int64     `json:"note_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
