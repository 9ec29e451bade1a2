package models

import "time"

// SearchResult is the normalized record produced by a search provider.
// Provider response schemas never leak past this shape.
type SearchResult struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	URL         string     `json:"url"`
	Source      string     `json:"source,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}
