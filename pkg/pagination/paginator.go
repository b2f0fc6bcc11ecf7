// Package pagination turns an offset/limit page fetch into one lazy item sequence
package pagination

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/richardjlyon/ayda/pkg/failure"
	"github.com/richardjlyon/ayda/pkg/logging"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config holds paginator configuration
type Config struct {
	// PageSize is the limit requested for every page
	PageSize int
	// MaxConcurrency is the number of pages fetched at once.
	// 1 fetches sequentially; higher values reorder pages before yielding.
	MaxConcurrency int
	// Timeout per page fetch (0 = no per-page timeout)
	Timeout time.Duration
}

// DefaultConfig returns a sequential configuration with 100 items per page
func DefaultConfig() Config {
	return Config{
		PageSize:       100,
		MaxConcurrency: 1,
		Timeout:        30 * time.Second,
	}
}

// Page is one page of a paginated collection.
// Total is the size of the whole collection as declared by the source.
type Page[T any] struct {
	Items []T
	Total int
}

// PageFetcher fetches the page of endpoint starting at offset.
type PageFetcher[T any] interface {
	FetchPage(ctx context.Context, endpoint string, offset, limit int) (Page[T], error)
}

// FetcherFunc adapts a function to PageFetcher.
type FetcherFunc[T any] func(ctx context.Context, endpoint string, offset, limit int) (Page[T], error)

// FetchPage implements PageFetcher.
func (f FetcherFunc[T]) FetchPage(ctx context.Context, endpoint string, offset, limit int) (Page[T], error) {
	return f(ctx, endpoint, offset, limit)
}

// Paginator drives repeated page fetches for one endpoint
type Paginator[T any] struct {
	fetcher PageFetcher[T]
	config  Config
	logger  zerolog.Logger
}

// New creates a paginator
func New[T any](fetcher PageFetcher[T], config Config) *Paginator[T] {
	if config.PageSize <= 0 {
		config.PageSize = 100
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 1
	}

	return &Paginator[T]{
		fetcher: fetcher,
		config:  config,
		logger:  logging.NewLogger("pagination"),
	}
}

// FetchAll returns the items of endpoint in page order.
//
// The first page is requested at offset 0 and its Total is frozen for the
// rest of the run. A failed page ends the sequence with a single
// *failure.FetchError; pages are never retried. The sequence is not
// restartable: ranging over it twice fetches everything twice.
func (p *Paginator[T]) FetchAll(ctx context.Context, endpoint string) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		start := time.Now()

		first, err := p.fetchPage(ctx, endpoint, 0, -1)
		if err != nil {
			yield(zero, err)
			return
		}
		total := first.Total

		p.logger.Info().
			Str("endpoint", endpoint).
			Int("total", total).
			Int("page_size", p.config.PageSize).
			Int("concurrency", p.config.MaxConcurrency).
			Msg("Starting paginated fetch")

		for _, it := range first.Items {
			if !yield(it, nil) {
				return
			}
		}

		if total <= p.config.PageSize {
			p.logComplete(endpoint, total, start)
			return
		}

		var ok bool
		if p.config.MaxConcurrency > 1 {
			ok = p.fetchConcurrent(ctx, endpoint, total, yield)
		} else {
			ok = p.fetchSequential(ctx, endpoint, total, yield)
		}
		if ok {
			p.logComplete(endpoint, total, start)
		}
	}
}

// Collect drains seq into a slice, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

// fetchSequential fetches the remaining pages one at a time.
// It returns false if iteration stopped early or failed.
func (p *Paginator[T]) fetchSequential(ctx context.Context, endpoint string, total int, yield func(T, error) bool) bool {
	var zero T
	for offset := p.config.PageSize; offset < total; offset += p.config.PageSize {
		page, err := p.fetchPage(ctx, endpoint, offset, total)
		if err != nil {
			yield(zero, err)
			return false
		}
		for _, it := range page.Items {
			if !yield(it, nil) {
				return false
			}
		}
		p.logProgress(endpoint, offset+len(page.Items), total)
	}
	return true
}

type indexedPage[T any] struct {
	index int
	items []T
}

// fetchConcurrent fetches the remaining pages with up to MaxConcurrency
// requests in flight and yields them in request order.
func (p *Paginator[T]) fetchConcurrent(ctx context.Context, endpoint string, total int, yield func(T, error) bool) bool {
	var zero T
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.MaxConcurrency)

	results := make(chan indexedPage[T])
	var groupErr error

	go func() {
		index := 0
		for offset := p.config.PageSize; offset < total; offset += p.config.PageSize {
			if gctx.Err() != nil {
				break
			}
			index++
			idx, off := index, offset
			g.Go(func() error {
				page, err := p.fetchPage(gctx, endpoint, off, total)
				if err != nil {
					return err
				}
				select {
				case results <- indexedPage[T]{index: idx, items: page.Items}:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		groupErr = g.Wait()
		close(results)
	}()

	// Pages that arrived ahead of the next expected index wait here.
	pending := make(map[int][]T)
	next := 1
	stopped := false
	emitted := p.config.PageSize

	for r := range results {
		if stopped {
			continue
		}
		pending[r.index] = r.items
		for !stopped {
			items, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			for _, it := range items {
				if !yield(it, nil) {
					stopped = true
					cancel()
					break
				}
			}
			emitted += len(items)
			p.logProgress(endpoint, emitted, total)
		}
	}

	if stopped {
		return false
	}
	if groupErr != nil {
		yield(zero, failure.Fetch(groupErr, endpoint, -1))
		return false
	}
	return true
}

// fetchPage fetches and validates one page. total < 0 means the page is the
// first one and declares the total itself.
func (p *Paginator[T]) fetchPage(ctx context.Context, endpoint string, offset, total int) (Page[T], error) {
	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	page, err := p.fetcher.FetchPage(ctx, endpoint, offset, p.config.PageSize)
	if err != nil {
		pagesFetched.WithLabelValues("error").Inc()
		p.logger.Warn().
			Err(err).
			Str("endpoint", endpoint).
			Int("offset", offset).
			Msg("Page fetch failed")
		return Page[T]{}, failure.Fetch(err, endpoint, offset)
	}

	if total < 0 {
		total = page.Total
	}
	if err := validatePage(len(page.Items), page.Total, offset, p.config.PageSize, total); err != nil {
		pagesFetched.WithLabelValues("invalid").Inc()
		return Page[T]{}, &failure.FetchError{
			Kind:     failure.KindProtocol,
			Endpoint: endpoint,
			Offset:   offset,
			Message:  err.Error(),
		}
	}

	pagesFetched.WithLabelValues("ok").Inc()
	itemsFetched.Add(float64(len(page.Items)))
	return page, nil
}

// validatePage checks a page against the frozen total.
func validatePage(n, declared, offset, limit, total int) error {
	if declared < 0 {
		return fmt.Errorf("negative total %d", declared)
	}
	if offset+n > total {
		return fmt.Errorf("page at offset %d has %d items, exceeding total %d", offset, n, total)
	}
	if want := min(limit, total-offset); n < want {
		return fmt.Errorf("short page at offset %d: got %d items, want %d", offset, n, want)
	}
	return nil
}

func (p *Paginator[T]) logProgress(endpoint string, fetched, total int) {
	p.logger.Debug().
		Str("endpoint", endpoint).
		Int("fetched", fetched).
		Int("total", total).
		Float64("progress_pct", float64(fetched)/float64(total)*100).
		Msg("Fetch progress")
}

func (p *Paginator[T]) logComplete(endpoint string, total int, start time.Time) {
	p.logger.Info().
		Str("endpoint", endpoint).
		Int("items", total).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")
}
