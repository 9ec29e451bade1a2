package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"smartdesk/internal/models"

	"github.com/cloudwego/eino-ext/components/document/loader/file"
	"github.com/cloudwego/eino/components/document"
	"github.com/cloudwego/eino/components/document/parser"
)

// FindOrCreateNote returns the user's note bound to windowID, creating it
// with one empty page on first access. The main block note uses
// models.MainNoteWindowID.
func (s *Service) FindOrCreateNote(ctx context.Context, userID int64, windowID string) (*models.Note, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	windowID = strings.TrimSpace(windowID)
	if windowID == "" {
		windowID = models.MainNoteWindowID
	}

	note, err := s.noteByWindow(ctx, userID, windowID)
	if err == nil {
		return note, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notes (user_id, window_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		userID, windowID, now, now,
	)
	if err != nil {
		// Concurrent first access can lose the insert race; re-read.
		if existing, readErr := s.noteByWindow(ctx, userID, windowID); readErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("note id: %w", err)
	}
	page, err := s.CreateNotePage(ctx, userID, id, "Page 1", "")
	if err != nil {
		return nil, err
	}
	return &models.Note{
		ID:        id,
		UserID:    userID,
		WindowID:  windowID,
		Pages:     []models.NotePage{*page},
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetNote returns one note with its pages.
func (s *Service) GetNote(ctx context.Context, userID, noteID int64) (*models.Note, error) {
	var note models.Note
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, window_id, created_at, updated_at FROM notes WHERE id = ? AND user_id = ?`,
		noteID, userID,
	).Scan(&note.ID, &note.UserID, &note.WindowID, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get note: %w", err)
	}
	pages, err := s.notePages(ctx, note.ID)
	if err != nil {
		return nil, err
	}
	note.Pages = pages
	return &note, nil
}

// CreateNotePage appends a page to a note the user owns.
func (s *Service) CreateNotePage(ctx context.Context, userID, noteID int64, title, content string) (*models.NotePage, error) {
	if err := s.verifyNote(ctx, userID, noteID); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Untitled"
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO note_pages (note_id, title, content, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		noteID, title, content, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create note page: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("note page id: %w", err)
	}
	s.touchNote(ctx, noteID, now)
	return &models.NotePage{ID: id, NoteID: noteID, Title: title, Content: content, CreatedAt: now, UpdatedAt: now}, nil
}

// UpdateNotePage replaces a page's title and content.
func (s *Service) UpdateNotePage(ctx context.Context, userID, noteID, pageID int64, title, content string) error {
	if err := s.verifyNote(ctx, userID, noteID); err != nil {
		return err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("title cannot be empty")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE note_pages SET title = ?, content = ?, updated_at = ? WHERE id = ? AND note_id = ?`,
		title, content, now, pageID, noteID,
	)
	if err != nil {
		return fmt.Errorf("update note page: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	s.touchNote(ctx, noteID, now)
	return nil
}

// DeleteNotePage removes a page from a note the user owns.
func (s *Service) DeleteNotePage(ctx context.Context, userID, noteID, pageID int64) error {
	if err := s.verifyNote(ctx, userID, noteID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM note_pages WHERE id = ? AND note_id = ?`, pageID, noteID,
	)
	if err != nil {
		return fmt.Errorf("delete note page: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	s.touchNote(ctx, noteID, time.Now().UTC())
	return nil
}

// ImportNotePage extracts text from an uploaded document and stores it as a
// new page titled after the file. Supported formats are whatever the ext
// parser handles, with a plain-text fallback.
func (s *Service) ImportNotePage(ctx context.Context, userID, noteID int64, filename string, r io.Reader) (*models.NotePage, error) {
	if err := s.verifyNote(ctx, userID, noteID); err != nil {
		return nil, err
	}
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." {
		return nil, errors.New("filename is required")
	}

	tmpDir, err := os.MkdirTemp("", "smartdesk-import-*")
	if err != nil {
		return nil, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)
	tmpPath := filepath.Join(tmpDir, filename)
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	f.Close()

	text, err := extractDocumentText(ctx, tmpPath)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSuffix(filename, filepath.Ext(filename))
	return s.CreateNotePage(ctx, userID, noteID, title, text)
}

func extractDocumentText(ctx context.Context, path string) (string, error) {
	parserExt, err := parser.NewExtParser(ctx, &parser.ExtParserConfig{
		FallbackParser: parser.TextParser{},
	})
	if err != nil {
		return "", fmt.Errorf("init parser: %w", err)
	}
	loader, err := file.NewFileLoader(ctx, &file.FileLoaderConfig{
		UseNameAsID: true,
		Parser:      parserExt,
	})
	if err != nil {
		return "", fmt.Errorf("init loader: %w", err)
	}
	docs, err := loader.Load(ctx, document.Source{URI: path})
	if err != nil {
		return "", fmt.Errorf("load document: %w", err)
	}
	var b strings.Builder
	for _, doc := range docs {
		content := strings.TrimSpace(doc.Content)
		if content == "" {
			continue
		}
		b.WriteString(content)
		b.WriteString("\n\n")
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errors.New("document has no readable text content")
	}
	return text, nil
}

func (s *Service) noteByWindow(ctx context.Context, userID int64, windowID string) (*models.Note, error) {
	var note models.Note
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, window_id, created_at, updated_at FROM notes WHERE user_id = ? AND window_id = ?`,
		userID, windowID,
	).Scan(&note.ID, &note.UserID, &note.WindowID, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("note by window: %w", err)
	}
	pages, err := s.notePages(ctx, note.ID)
	if err != nil {
		return nil, err
	}
	note.Pages = pages
	return &note, nil
}

func (s *Service) notePages(ctx context.Context, noteID int64) ([]models.NotePage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, note_id, title, content, created_at, updated_at FROM note_pages WHERE note_id = ? ORDER BY created_at ASC, id ASC`,
		noteID,
	)
	if err != nil {
		return nil, fmt.Errorf("list note pages: %w", err)
	}
	defer rows.Close()

	var pages []models.NotePage
	for rows.Next() {
		var p models.NotePage
		if err := rows.Scan(&p.ID, &p.NoteID, &p.Title, &p.Content, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan note page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (s *Service) verifyNote(ctx context.Context, userID, noteID int64) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM notes WHERE id = ? AND user_id = ?)`,
		noteID, userID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("verify note: %w", err)
	}
	if !exists {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Service) touchNote(ctx context.Context, noteID int64, now time.Time) {
	if _, err := s.db.ExecContext(ctx, `UPDATE notes SET updated_at = ? WHERE id = ?`, now, noteID); err != nil {
		log.Printf("touch note %d: %v", noteID, err)
	}
}
