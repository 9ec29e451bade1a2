package search

import (
	"testing"
	"time"
)

func TestNormalizeResultsEnvelopes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"results envelope", `{"results":[{"title":"A","description":"d","url":"https://a"}]}`},
		{"items envelope", `{"items":[{"title":"A","snippet":"d","link":"https://a"}]}`},
		{"data items envelope", `{"data":{"items":[{"title":"A","summary":"d","url":"https://a"}]}}`},
		{"bare array", `[{"title":"A","description":"d","url":"https://a"}]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			results, err := normalizeResults([]byte(tc.raw), 3)
			if err != nil {
				t.Fatalf("normalizeResults: %v", err)
			}
			if len(results) != 1 {
				t.Fatalf("expected 1 result, got %d", len(results))
			}
			r := results[0]
			if r.Title != "A" || r.Description != "d" || r.URL != "https://a" {
				t.Fatalf("fields not normalized: %+v", r)
			}
		})
	}
}

func TestNormalizeResultsCapAndSkips(t *testing.T) {
	raw := `{"results":[
		{"title":"first","url":"https://1"},
		{"title":"","url":""},
		{"url":"https://3"},
		{"title":"fourth","url":"https://4"},
		{"title":"fifth","url":"https://5"}
	]}`
	results, err := normalizeResults([]byte(raw), 3)
	if err != nil {
		t.Fatalf("normalizeResults: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected cap of 3, got %d", len(results))
	}
	if results[1].Title != "No Title" {
		t.Errorf("untitled result should get placeholder, got %q", results[1].Title)
	}
}

func TestNormalizeResultsUnrecognized(t *testing.T) {
	if _, err := normalizeResults([]byte(`"just a string"`), 3); err == nil {
		t.Fatalf("expected error for unrecognized structure")
	}
}

func TestParseResultTime(t *testing.T) {
	if got := parseResultTime("2026-08-30T10:00:00Z"); got == nil || got.Year() != 2026 {
		t.Fatalf("rfc3339 not parsed: %v", got)
	}
	if got := parseResultTime("2026-08-30"); got == nil || got.Month() != time.August {
		t.Fatalf("date-only not parsed: %v", got)
	}
	if got := parseResultTime("yesterday"); got != nil {
		t.Fatalf("unparseable input should yield nil, got %v", got)
	}
	if got := parseResultTime(""); got != nil {
		t.Fatalf("empty input should yield nil, got %v", got)
	}
}
