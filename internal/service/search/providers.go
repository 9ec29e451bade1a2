package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"smartdesk/internal/models"

	"github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"
)

// toolProvider adapts an eino invokable search tool to the Provider
// interface. Tool output is a JSON document whose exact schema varies per
// backend, so normalization is lenient.
type toolProvider struct {
	name  string
	inner tool.InvokableTool
}

func (p *toolProvider) Name() string {
	return p.name
}

func (p *toolProvider) Search(ctx context.Context, query string, count int) ([]models.SearchResult, error) {
	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, fmt.Errorf("marshal search params: %w", err)
	}
	raw, err := p.inner.InvokableRun(ctx, string(payload))
	if err != nil {
		return nil, fmt.Errorf("%s search: %w", p.name, err)
	}
	results, err := normalizeResults([]byte(raw), count)
	if err != nil {
		return nil, fmt.Errorf("normalize %s response: %w", p.name, err)
	}
	return results, nil
}

// newDuckDuckGoProvider builds the keyless default provider.
func newDuckDuckGoProvider() Provider {
	duckConfig := &duckduckgo.Config{
		ToolName:   "web_search_ddg",
		ToolDesc:   "DuckDuckGo Search Tool (no token required)",
		MaxResults: 10,
		Region:     duckduckgo.RegionWT,
		Timeout:    10 * time.Second,
	}
	duckTool, err := duckduckgo.NewTextSearchTool(context.Background(), duckConfig)
	if err != nil {
		log.Printf("duckduckgo provider disabled: %v", err)
		return nil
	}
	return &toolProvider{name: "duckduckgo", inner: duckTool}
}

// newGoogleProvider builds the Google provider when credentials are present.
func newGoogleProvider() Provider {
	googleAPIKey := os.Getenv("GOOGLE_API_KEY")
	googleSearchEngineID := os.Getenv("GOOGLE_SEARCH_ENGINE_ID")
	if googleAPIKey == "" || googleSearchEngineID == "" {
		log.Printf("google search provider disabled: missing GOOGLE_API_KEY or GOOGLE_SEARCH_ENGINE_ID")
		return nil
	}
	googleTool, err := googlesearch.NewTool(context.Background(), &googlesearch.Config{
		ToolName:       "web_search_google",
		ToolDesc:       "Google Search Tool",
		APIKey:         googleAPIKey,
		SearchEngineID: googleSearchEngineID,
		Lang:           "en",
		Num:            10,
	})
	if err != nil {
		log.Printf("google search provider disabled: %v", err)
		return nil
	}
	return &toolProvider{name: "google", inner: googleTool}
}
