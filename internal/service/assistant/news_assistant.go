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

// SaveNewsQuery upserts the monitored topic for a dashboard window. Saving
// again for the same window replaces the topic, reactivates the query, and
// clears last_fetched so the monitor refreshes promptly.
func (s *Service) SaveNewsQuery(ctx context.Context, userID int64, topic, windowID string) (*models.NewsQuery, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	topic = strings.TrimSpace(topic)
	windowID = strings.TrimSpace(windowID)
	if topic == "" || windowID == "" {
		return nil, errors.New("topic and window_id are required")
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE news_queries SET topic = ?, active = 1, last_fetched = NULL, updated_at = ? WHERE user_id = ? AND window_id = ?`,
		topic, now, userID, windowID,
	)
	if err != nil {
		return nil, fmt.Errorf("update news query: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		ins, err := s.db.ExecContext(ctx,
			`INSERT INTO news_queries (user_id, topic, window_id, active, created_at, updated_at) VALUES (?, ?, ?, 1, ?, ?)`,
			userID, topic, windowID, now, now,
		)
		if err != nil {
			return nil, fmt.Errorf("create news query: %w", err)
		}
		id, err := ins.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("news query id: %w", err)
		}
		return &models.NewsQuery{ID: id, UserID: userID, Topic: topic, WindowID: windowID, Active: true, CreatedAt: now, UpdatedAt: now}, nil
	}
	return s.newsQueryByWindow(ctx, userID, windowID)
}

// ListNewsQueries returns the user's saved queries, active first.
func (s *Service) ListNewsQueries(ctx context.Context, userID int64) ([]models.NewsQuery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, topic, window_id, active, last_fetched, created_at, updated_at
		 FROM news_queries WHERE user_id = ? ORDER BY active DESC, updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list news queries: %w", err)
	}
	defer rows.Close()
	return scanNewsQueries(rows)
}

// DeactivateNewsQuery stops monitoring the topic bound to a window without
// deleting its history.
func (s *Service) DeactivateNewsQuery(ctx context.Context, userID int64, windowID string) error {
	windowID = strings.TrimSpace(windowID)
	if windowID == "" {
		return errors.New("window_id is required")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE news_queries SET active = 0, updated_at = ? WHERE user_id = ? AND window_id = ?`,
		time.Now().UTC(), userID, windowID,
	)
	if err != nil {
		return fmt.Errorf("deactivate news query: %w", err)
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

// ListActiveQueriesDue returns active queries whose last fetch is older than
// the cutoff (or never happened), across all users.
func (s *Service) ListActiveQueriesDue(ctx context.Context, cutoff time.Time) ([]models.NewsQuery, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, topic, window_id, active, last_fetched, created_at, updated_at
		 FROM news_queries WHERE active = 1 AND (last_fetched IS NULL OR last_fetched < ?)`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("list due news queries: %w", err)
	}
	defer rows.Close()
	return scanNewsQueries(rows)
}

// StampQueryFetched records the fetch time for a query.
func (s *Service) StampQueryFetched(ctx context.Context, queryID int64, at time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE news_queries SET last_fetched = ? WHERE id = ?`, at.UTC(), queryID,
	); err != nil {
		return fmt.Errorf("stamp news query: %w", err)
	}
	return nil
}

// CreateNotification records one fresh article for the query's owner.
func (s *Service) CreateNotification(ctx context.Context, n models.Notification) (*models.Notification, error) {
	if n.UserID <= 0 || n.QueryID <= 0 {
		return nil, errors.New("user_id and query_id are required")
	}
	if strings.TrimSpace(n.Title) == "" {
		return nil, errors.New("title cannot be empty")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, query_id, title, body, url, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		n.UserID, n.QueryID, n.Title, n.Body, n.URL, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("notification id: %w", err)
	}
	n.ID = id
	n.CreatedAt = now
	return &n, nil
}

// HasNotificationURL reports whether the query already surfaced this URL.
func (s *Service) HasNotificationURL(ctx context.Context, queryID int64, url string) (bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM notifications WHERE query_id = ? AND url = ?)`,
		queryID, url,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check notification url: %w", err)
	}
	return exists, nil
}

// ListNotifications returns the user's notifications, newest first. When
// unreadOnly is set, read ones are omitted.
func (s *Service) ListNotifications(ctx context.Context, userID int64, unreadOnly bool) ([]models.Notification, error) {
	query := `SELECT id, user_id, query_id, title, body, url, ` + readColumn + `, created_at FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND ` + readColumn + ` = 0`
	}
	query += ` ORDER BY created_at DESC LIMIT 200`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var notes []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.QueryID, &n.Title, &n.Body, &n.URL, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// MarkNotificationRead flags one notification as seen.
func (s *Service) MarkNotificationRead(ctx context.Context, userID, notificationID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notifications SET `+readColumn+` = 1 WHERE id = ? AND user_id = ?`,
		notificationID, userID,
	)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
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

// readColumn is quoted because READ is reserved in mysql; the backtick form
// is also valid sqlite.
const readColumn = "`read`"

func (s *Service) newsQueryByWindow(ctx context.Context, userID int64, windowID string) (*models.NewsQuery, error) {
	var q models.NewsQuery
	var fetched sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, topic, window_id, active, last_fetched, created_at, updated_at
		 FROM news_queries WHERE user_id = ? AND window_id = ?`,
		userID, windowID,
	).Scan(&q.ID, &q.UserID, &q.Topic, &q.WindowID, &q.Active, &fetched, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("news query by window: %w", err)
	}
	if fetched.Valid {
		q.LastFetched = &fetched.Time
	}
	return &q, nil
}

func scanNewsQueries(rows *sql.Rows) ([]models.NewsQuery, error) {
	var queries []models.NewsQuery
	for rows.Next() {
		var q models.NewsQuery
		var fetched sql.NullTime
		if err := rows.Scan(&q.ID, &q.UserID, &q.Topic, &q.WindowID, &q.Active, &fetched, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan news query: %w", err)
		}
		if fetched.Valid {
			q.LastFetched = &fetched.Time
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}
