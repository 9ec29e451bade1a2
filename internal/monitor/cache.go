package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"smartdesk/internal/models"
	"smartdesk/internal/redis"
)

const (
	redisInvalidateChannel = "news:invalidate"
	redisArticlesTTL       = 30 * time.Minute
)

// invalidateMessage tells other instances to drop a query's cached
// articles. Published on query save/deactivate.
type invalidateMessage struct {
	UserID  int64 `json:"user_id"`
	QueryID int64 `json:"query_id"`
}

// ArticleCache stores the latest fetched articles per news query in redis.
// All methods degrade to no-ops without a client so the monitor keeps
// working when redis is down.
type ArticleCache struct {
	client *redis.Client
}

// NewArticleCache wraps the shared redis client.
func NewArticleCache(client *redis.Client) *ArticleCache {
	return &ArticleCache{client: client}
}

func articlesKey(queryID int64) string {
	return fmt.Sprintf("news:articles:%d", queryID)
}

// StoreArticles caches the fetched articles for the query.
func (c *ArticleCache) StoreArticles(ctx context.Context, queryID int64, articles []models.SearchResult) {
	if c == nil || c.client == nil || queryID <= 0 {
		return
	}
	data, err := json.Marshal(articles)
	if err != nil {
		log.Printf("encode cached articles for query %d: %v", queryID, err)
		return
	}
	if err := c.client.Set(ctx, articlesKey(queryID), data, redisArticlesTTL); err != nil {
		log.Printf("cache articles for query %d: %v", queryID, err)
	}
}

// Articles returns the cached articles, or nil on miss or error.
func (c *ArticleCache) Articles(ctx context.Context, queryID int64) []models.SearchResult {
	if c == nil || c.client == nil || queryID <= 0 {
		return nil
	}
	raw, err := c.client.Get(ctx, articlesKey(queryID))
	if err != nil {
		if err != redis.ErrCacheMiss {
			log.Printf("read cached articles for query %d: %v", queryID, err)
		}
		return nil
	}
	var articles []models.SearchResult
	if err := json.Unmarshal([]byte(raw), &articles); err != nil {
		log.Printf("decode cached articles for query %d: %v", queryID, err)
		return nil
	}
	return articles
}

// Invalidate drops the query's cached articles locally and broadcasts the
// invalidation to other instances.
func (c *ArticleCache) Invalidate(ctx context.Context, userID, queryID int64) {
	if c == nil || c.client == nil || queryID <= 0 {
		return
	}
	if err := c.client.Del(ctx, articlesKey(queryID)); err != nil {
		log.Printf("drop cached articles for query %d: %v", queryID, err)
	}
	payload, err := json.Marshal(invalidateMessage{UserID: userID, QueryID: queryID})
	if err != nil {
		log.Printf("news invalidation marshal failed: %v", err)
		return
	}
	if err := c.client.Publish(ctx, redisInvalidateChannel, payload); err != nil {
		log.Printf("news publish invalidation failed: %v", err)
	}
}

// startListener subscribes to the invalidation channel and drops cached
// articles named by incoming messages.
func (c *ArticleCache) startListener(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	ch, closeSub, err := c.client.Subscribe(ctx, redisInvalidateChannel)
	if err != nil {
		log.Printf("news invalidation subscribe failed: %v", err)
		return
	}
	go func() {
		defer closeSub()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var inv invalidateMessage
				if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
					log.Printf("news invalidation decode failed: %v", err)
					continue
				}
				if err := c.client.Del(ctx, articlesKey(inv.QueryID)); err != nil {
					log.Printf("drop cached articles for query %d: %v", inv.QueryID, err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
