// Package monitor polls saved news queries in the background and records
// notifications for fresh articles.
package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"smartdesk/internal/models"
)

const (
	fetchTimeout      = 30 * time.Second
	articlesPerFetch  = 5
	defaultRefreshGap = 15 * time.Minute
)

// Store is the persistence the monitor needs.
type Store interface {
	ListActiveQueriesDue(ctx context.Context, cutoff time.Time) ([]models.NewsQuery, error)
	StampQueryFetched(ctx context.Context, queryID int64, at time.Time) error
	CreateNotification(ctx context.Context, n models.Notification) (*models.Notification, error)
	HasNotificationURL(ctx context.Context, queryID int64, url string) (bool, error)
}

// Searcher runs one topic search.
type Searcher interface {
	Search(ctx context.Context, query string, count int) ([]models.SearchResult, error)
}

// Monitor periodically refreshes every active news query. Fetches run on a
// bounded worker pool; a failed fetch is logged and retried on the next
// tick, never fatal.
type Monitor struct {
	store    Store
	searcher Searcher
	cache    *ArticleCache
	pool     *fetchPool
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// inFlight keeps a query from being dispatched twice when a fetch
	// outlives the next tick.
	mu       sync.Mutex
	inFlight map[int64]bool
}

// Options sizes the monitor. Zero values fall back to defaults.
type Options struct {
	Interval   time.Duration
	MinWorkers int
	MaxWorkers int
	WorkerIdle time.Duration
}

// New builds a monitor. The cache may be nil.
func New(store Store, searcher Searcher, cache *ArticleCache, opts Options) *Monitor {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultRefreshGap
	}
	return &Monitor{
		store:    store,
		searcher: searcher,
		cache:    cache,
		pool:     newFetchPool(opts.MinWorkers, opts.MaxWorkers, opts.WorkerIdle),
		interval: interval,
		inFlight: make(map[int64]bool),
	}
}

// Cache exposes the article cache for the REST layer.
func (m *Monitor) Cache() *ArticleCache {
	return m.cache
}

// Start launches the poll loop. Call Stop to shut it down.
func (m *Monitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.cache.startListener(ctx)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		m.tick(ctx)
		for {
			select {
			case <-ticker.C:
				m.tick(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the poll loop and drains the pool.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.pool.shutdown()
}

// tick dispatches a fetch for every query due for refresh.
func (m *Monitor) tick(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-m.interval)
	queries, err := m.store.ListActiveQueriesDue(ctx, cutoff)
	if err != nil {
		log.Printf("news monitor: list due queries: %v", err)
		return
	}
	for _, q := range queries {
		query := q
		if !m.claim(query.ID) {
			continue
		}
		m.pool.submit(fetchJob{
			queryID: query.ID,
			run: func() {
				defer m.unclaim(query.ID)
				m.fetch(ctx, query)
			},
		})
	}
}

// fetch refreshes one query: search, cache, notify, stamp.
func (m *Monitor) fetch(ctx context.Context, q models.NewsQuery) {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	results, err := m.searcher.Search(fetchCtx, q.Topic, articlesPerFetch)
	if err != nil {
		log.Printf("news monitor: fetch %q for user %d failed: %v", q.Topic, q.UserID, err)
		return
	}

	m.cache.StoreArticles(fetchCtx, q.ID, results)

	for _, r := range results {
		if r.URL == "" {
			continue
		}
		seen, err := m.store.HasNotificationURL(fetchCtx, q.ID, r.URL)
		if err != nil {
			log.Printf("news monitor: dedupe check for query %d: %v", q.ID, err)
			continue
		}
		if seen {
			continue
		}
		if _, err := m.store.CreateNotification(fetchCtx, models.Notification{
			UserID:  q.UserID,
			QueryID: q.ID,
			Title:   r.Title,
			Body:    r.Description,
			URL:     r.URL,
		}); err != nil {
			log.Printf("news monitor: record notification for query %d: %v", q.ID, err)
		}
	}

	if err := m.store.StampQueryFetched(fetchCtx, q.ID, time.Now().UTC()); err != nil {
		log.Printf("news monitor: stamp query %d: %v", q.ID, err)
	}
}

func (m *Monitor) claim(queryID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight[queryID] {
		return false
	}
	m.inFlight[queryID] = true
	return true
}

func (m *Monitor) unclaim(queryID int64) {
	m.mu.Lock()
	delete(m.inFlight, queryID)
	m.mu.Unlock()
}
