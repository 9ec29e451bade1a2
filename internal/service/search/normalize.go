package search

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"smartdesk/internal/models"
)

// rawResult accepts the field spellings seen across search backends.
type rawResult struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Snippet     string `json:"snippet"`
	Summary     string `json:"summary"`
	URL         string `json:"url"`
	Link        string `json:"link"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at"`
	Date        string `json:"date"`
}

type rawEnvelope struct {
	Results []rawResult `json:"results"`
	Items   []rawResult `json:"items"`
	Data    *struct {
		Items []rawResult `json:"items"`
	} `json:"data"`
}

// normalizeResults converts a backend response document into normalized
// records, capped at count. Backends disagree on envelope and field names;
// every known spelling is tried before giving up.
func normalizeResults(raw []byte, count int) ([]models.SearchResult, error) {
	var items []rawResult

	var envelope rawEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil {
		switch {
		case len(envelope.Results) > 0:
			items = envelope.Results
		case len(envelope.Items) > 0:
			items = envelope.Items
		case envelope.Data != nil && len(envelope.Data.Items) > 0:
			items = envelope.Data.Items
		}
	}
	if items == nil {
		var list []rawResult
		if err := json.Unmarshal(raw, &list); err == nil {
			items = list
		}
	}
	if items == nil {
		return nil, errors.New("unrecognized response structure")
	}

	results := make([]models.SearchResult, 0, count)
	for _, item := range items {
		if len(results) >= count {
			break
		}
		url := strings.TrimSpace(firstNonEmpty(item.URL, item.Link))
		title := strings.TrimSpace(item.Title)
		if url == "" && title == "" {
			continue
		}
		if title == "" {
			title = "No Title"
		}
		results = append(results, models.SearchResult{
			Title:       title,
			Description: strings.TrimSpace(firstNonEmpty(item.Description, item.Snippet, item.Summary)),
			URL:         url,
			Source:      strings.TrimSpace(item.Source),
			PublishedAt: parseResultTime(firstNonEmpty(item.PublishedAt, item.Date)),
		})
	}
	return results, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseResultTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}
