// Package fetch retrieves BibTeX entries for records from an ordered list
// of sources using a bounded worker pool.
package fetch

import (
	"context"
	"sync"

	"github.com/matsen/snowball/internal/article"
	"github.com/matsen/snowball/internal/resilience"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// ErrNotFound is returned by a Source that has no entry for a record. The
// fetcher moves on to the next source without retrying.
var ErrNotFound = eris.New("bibtex not found")

const (
	DefaultWorkers   = 3
	DefaultBatchSize = 20
)

// Source produces the raw BibTeX entry for a record.
type Source interface {
	Name() string
	FetchBibTeX(ctx context.Context, rec article.Record) (string, error)
}

// Store persists fetched entries. Implementations must never replace an
// entry with a worse one.
type Store interface {
	UpdateBibTeX(ctx context.Context, iteration int, entries map[string]string) (int, error)
}

// Fetcher fills the bibtex column of one iteration.
type Fetcher struct {
	Sources   []Source
	Workers   int
	BatchSize int
	Retry     resilience.RetryConfig
	// Limiter throttles source calls across all workers. Nil means no limit.
	Limiter *rate.Limiter
	// Prefer reports whether an entry is good enough to stop at. Entries it
	// rejects are kept as a fallback while later sources are tried.
	Prefer func(raw string) bool
}

// Result counts the outcome of a Run.
type Result struct {
	Attempted int            `json:"attempted"`
	Found     int            `json:"found"`
	Missing   int            `json:"missing"`
	Skipped   int            `json:"skipped"`
	Written   int            `json:"written"`
	Batches   int            `json:"batches"`
	BySource  map[string]int `json:"by_source"`
}

// Run fetches entries for recs and writes them back after each batch.
// Records that already hold an entry are skipped. A record no source can
// serve gets the NO_BIBTEX sentinel. Completion order within a batch is
// not guaranteed.
func (f *Fetcher) Run(ctx context.Context, store Store, iteration int, recs []article.Record) (Result, error) {
	res := Result{BySource: make(map[string]int)}
	if len(f.Sources) == 0 {
		return res, eris.New("no bibtex sources configured")
	}
	workers := f.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	size := f.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}

	var todo []article.Record
	for _, r := range recs {
		if article.StateOf(r.BibTeX) == article.Present {
			res.Skipped++
			continue
		}
		todo = append(todo, r)
	}

	for start := 0; start < len(todo); start += size {
		end := min(start+size, len(todo))
		batch := todo[start:end]

		var mu sync.Mutex
		found := make(map[string]string, len(batch))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, rec := range batch {
			g.Go(func() error {
				raw, source, err := f.lookup(gctx, rec)
				if err != nil {
					return err
				}
				mu.Lock()
				defer mu.Unlock()
				found[rec.ID] = raw
				res.Attempted++
				if source == "" {
					res.Missing++
				} else {
					res.Found++
					res.BySource[source]++
				}
				return nil
			})
		}
		runErr := g.Wait()

		// Keep whatever finished before a cancellation.
		if len(found) > 0 {
			n, err := store.UpdateBibTeX(context.WithoutCancel(ctx), iteration, found)
			if err != nil {
				return res, eris.Wrapf(err, "writing bibtex batch %d", res.Batches+1)
			}
			res.Written += n
		}
		res.Batches++
		zap.L().Info("bibtex batch written",
			zap.Int("iteration", iteration),
			zap.Int("batch", res.Batches),
			zap.Int("done", end),
			zap.Int("total", len(todo)))
		if runErr != nil {
			return res, runErr
		}
	}
	return res, nil
}

// lookup tries each source in order. It returns the entry and the name of
// the source that produced it, or the sentinel and an empty name. The only
// error is cancellation.
func (f *Fetcher) lookup(ctx context.Context, rec article.Record) (string, string, error) {
	var fallback, fallbackSource string
	for _, src := range f.Sources {
		cfg := f.Retry
		if cfg.ShouldRetry == nil {
			cfg.ShouldRetry = func(err error) bool { return !eris.Is(err, ErrNotFound) }
		}
		if cfg.OnRetry == nil {
			cfg.OnRetry = resilience.RetryLogger(src.Name(), rec.ID)
		}
		raw, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (string, error) {
			if f.Limiter != nil {
				if err := f.Limiter.Wait(ctx); err != nil {
					return "", err
				}
			}
			return src.FetchBibTeX(ctx, rec)
		})
		if ctx.Err() != nil {
			return "", "", eris.Wrap(ctx.Err(), "fetching bibtex")
		}
		if err != nil {
			if !eris.Is(err, ErrNotFound) {
				zap.L().Warn("bibtex source failed",
					zap.String("source", src.Name()),
					zap.String("id", rec.ID),
					zap.Error(err))
			}
			continue
		}
		if article.StateOf(raw) != article.Present {
			continue
		}
		if f.Prefer == nil || f.Prefer(raw) {
			return raw, src.Name(), nil
		}
		if fallback == "" {
			fallback, fallbackSource = raw, src.Name()
		}
	}
	if fallback != "" {
		return fallback, fallbackSource, nil
	}
	return article.NoBibTeX, "", nil
}
