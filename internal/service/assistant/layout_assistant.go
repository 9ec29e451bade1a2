package assistant

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"smartdesk/internal/models"

	"github.com/google/uuid"
)

// layoutRecord is the stored shape of a dashboard layout. Serialization
// happens only here; everything else works with models.DashboardLayout.
type layoutRecord struct {
	Windows []models.DashboardWindow `json:"windows"`
	Pins    []string                 `json:"pins"`
}

// GetDashboardLayout returns the user's saved layout, or an empty one when
// nothing has been saved yet.
func (s *Service) GetDashboardLayout(ctx context.Context, userID int64) (*models.DashboardLayout, error) {
	var raw string
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT layout, updated_at FROM dashboard_layouts WHERE user_id = ?`, userID,
	).Scan(&raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.DashboardLayout{UserID: userID, Windows: []models.DashboardWindow{}, Pins: []string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get layout: %w", err)
	}

	var rec layoutRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode layout: %w", err)
	}
	layout := &models.DashboardLayout{
		UserID:    userID,
		Windows:   rec.Windows,
		Pins:      rec.Pins,
		UpdatedAt: updatedAt,
	}
	if layout.Windows == nil {
		layout.Windows = []models.DashboardWindow{}
	}
	if layout.Pins == nil {
		layout.Pins = []string{}
	}
	return layout, nil
}

// SaveDashboardLayout replaces the user's layout. Windows without an id get
// one assigned so other window-bound records can reference them.
func (s *Service) SaveDashboardLayout(ctx context.Context, userID int64, layout models.DashboardLayout) (*models.DashboardLayout, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	for i := range layout.Windows {
		if layout.Windows[i].ID == "" {
			layout.Windows[i].ID = uuid.NewString()
		}
		switch layout.Windows[i].Kind {
		case "chat", "notes", "news", "tasks":
		default:
			return nil, fmt.Errorf("unknown window kind %q", layout.Windows[i].Kind)
		}
	}

	raw, err := json.Marshal(layoutRecord{Windows: layout.Windows, Pins: layout.Pins})
	if err != nil {
		return nil, fmt.Errorf("encode layout: %w", err)
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE dashboard_layouts SET layout = ?, updated_at = ? WHERE user_id = ?`,
		string(raw), now, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("update layout: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO dashboard_layouts (user_id, layout, updated_at) VALUES (?, ?, ?)`,
			userID, string(raw), now,
		); err != nil {
			return nil, fmt.Errorf("insert layout: %w", err)
		}
	}

	layout.UserID = userID
	layout.UpdatedAt = now
	if layout.Windows == nil {
		layout.Windows = []models.DashboardWindow{}
	}
	if layout.Pins == nil {
		layout.Pins = []string{}
	}
	return &layout, nil
}
