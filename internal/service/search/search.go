package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"smartdesk/internal/config"
	"smartdesk/internal/models"
)

// Provider is one web/news search backend returning normalized records.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, count int) ([]models.SearchResult, error)
}

// ErrNoProvider is returned when no configured provider succeeded.
var ErrNoProvider = errors.New("no search provider succeeded")

const defaultMaxResults = 5

// Service runs queries against a configured provider chain, falling back to
// the next provider when one fails. Which backend answered never leaks to
// callers beyond the normalized result shape.
type Service struct {
	chain      []Provider
	maxResults int
}

// NewService builds the provider chain from configuration. The preferred
// provider goes first; every other available provider is a fallback.
func NewService(cfg *config.Config) (*Service, error) {
	available := map[string]Provider{}
	if g := newGoogleProvider(); g != nil {
		available["google"] = g
	}
	if d := newDuckDuckGoProvider(); d != nil {
		available["duckduckgo"] = d
	}
	if len(available) == 0 {
		return nil, errors.New("no search providers available")
	}

	preferred := strings.TrimSpace(cfg.Search.Provider)
	if preferred == "" {
		preferred = "duckduckgo"
	}
	var chain []Provider
	if p, ok := available[preferred]; ok {
		chain = append(chain, p)
		delete(available, preferred)
	} else {
		log.Printf("search provider %q unavailable, using fallbacks only", preferred)
	}
	for _, name := range []string{"duckduckgo", "google"} {
		if p, ok := available[name]; ok {
			chain = append(chain, p)
		}
	}

	maxResults := cfg.Search.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	return &Service{chain: chain, maxResults: maxResults}, nil
}

// Search queries the chain and returns at most count normalized results.
func (s *Service) Search(ctx context.Context, query string, count int) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query must not be empty")
	}
	if count <= 0 || count > s.maxResults {
		count = s.maxResults
	}

	var lastErr error
	for _, provider := range s.chain {
		results, err := provider.Search(ctx, query, count)
		if err != nil {
			log.Printf("%s search failed: %v", provider.Name(), err)
			lastErr = err
			continue
		}
		if len(results) > count {
			results = results[:count]
		}
		return results, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoProvider, lastErr)
	}
	return nil, ErrNoProvider
}
