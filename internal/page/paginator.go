// Package page pulls execution history from the upstream REST surface one
// page at a time and merges it into the shared record cache. The pagination
// path and the realtime path converge through the same upsert contract, so a
// record seen on both ends up as a single entry.
package page

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"exec-feed-sync/internal/cache"
	"exec-feed-sync/internal/record"
	"exec-feed-sync/internal/upstream"
)

// Source supplies pages of execution history.
type Source interface {
	FetchExecutions(ctx context.Context, q upstream.ExecutionQuery) (upstream.PageResult, error)
}

// Result reports the outcome of one load.
type Result struct {
	Merged  int  `json:"merged"`
	HasMore bool `json:"hasMore"`
}

// Paginator tracks the page cursor for one feed. LoadNext is a no-op while a
// load is in flight or when the source is exhausted; a failed fetch leaves the
// cursor unchanged so the next call retries the same page.
type Paginator struct {
	source   Source
	cache    *cache.Store[record.Record]
	pageSize int
	logger   zerolog.Logger

	mu       sync.Mutex
	page     int
	hasMore  bool
	inFlight bool
	gen      uint64
}

// NewPaginator constructs a paginator over the shared record cache.
func NewPaginator(source Source, store *cache.Store[record.Record], pageSize int, logger zerolog.Logger) *Paginator {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Paginator{
		source:   source,
		cache:    store,
		pageSize: pageSize,
		logger:   logger.With().Str("component", "paginator").Logger(),
		page:     1,
		hasMore:  true,
	}
}

// LoadNext fetches the next page and merges it into the cache. It resolves
// immediately with Merged=0 when a load is already in flight or no more pages
// remain. The network call runs outside the lock.
func (p *Paginator) LoadNext(ctx context.Context) (Result, error) {
	p.mu.Lock()
	if p.inFlight || !p.hasMore {
		res := Result{Merged: 0, HasMore: p.hasMore}
		p.mu.Unlock()
		return res, nil
	}
	p.inFlight = true
	pageNum := p.page
	gen := p.gen
	p.mu.Unlock()

	fetched, err := p.source.FetchExecutions(ctx, upstream.ExecutionQuery{
		Page:     pageNum,
		PageSize: p.pageSize,
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false

	if gen != p.gen {
		// The feed was reset while this fetch was in the air; applying it
		// would resurrect evicted data.
		p.logger.Debug().Int("page", pageNum).Msg("discarding stale page response")
		return Result{Merged: 0, HasMore: p.hasMore}, nil
	}
	if err != nil {
		// Cursor untouched: the next LoadNext retries this page.
		return Result{Merged: 0, HasMore: p.hasMore}, err
	}

	merged := p.cache.UpsertMany(fetched.Records)
	p.page++
	p.hasMore = fetched.HasNext

	p.logger.Debug().Int("page", pageNum).Int("merged", merged).Bool("has_more", p.hasMore).Msg("page merged")
	return Result{Merged: merged, HasMore: p.hasMore}, nil
}

// Reset rewinds the cursor to the first page and invalidates any in-flight
// fetch. Cached records are left intact; a refresh merges over them.
func (p *Paginator) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.page = 1
	p.hasMore = true
	p.gen++
}

// HasMore reports whether the source has pages left.
func (p *Paginator) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// Page returns the next page number to be fetched.
func (p *Paginator) Page() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.page
}
