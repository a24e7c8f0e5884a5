package priorartsearch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joelkehle/priorart-assistant/internal/patentsearch"
	"github.com/joelkehle/priorart-assistant/internal/telemetry"
)

// Retriever fans one search call per unique term across a bounded pool and
// merges the hits by normalized identifier.
type Retriever struct {
	searcher    patentsearch.Searcher
	concurrency int
	pageSize    int
	logger      *zap.Logger
	metrics     *telemetry.Metrics
}

func NewRetriever(searcher patentsearch.Searcher, concurrency, pageSize int, logger *zap.Logger, metrics *telemetry.Metrics) *Retriever {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Retriever{searcher: searcher, concurrency: concurrency, pageSize: pageSize, logger: logger, metrics: metrics}
}

// Retrieve never fails: per-term errors are logged and the pool always drains.
// The returned count is the number of search calls attempted.
func (r *Retriever) Retrieve(ctx context.Context, terms []string) (RecordMap, int) {
	records := RecordMap{}
	if len(terms) == 0 {
		return records, 0
	}
	r.metrics.SearchTerms(len(terms))

	var (
		mu    sync.Mutex
		calls int64
		g     errgroup.Group
	)
	g.SetLimit(r.concurrency)
	for _, term := range terms {
		term := term
		g.Go(func() error {
			atomic.AddInt64(&calls, 1)
			start := time.Now()
			resp, err := r.searcher.Search(ctx, term, 0, r.pageSize)
			if err != nil {
				r.logger.Warn("search_term_failed", zap.String("term", term), zap.Int64("elapsed_ms", time.Since(start).Milliseconds()), zap.Error(err))
				return nil
			}
			if len(resp.Results) == 0 {
				r.logger.Info("search_term_empty", zap.String("term", term))
				return nil
			}

			mu.Lock()
			added := merge(records, resp.Results)
			mu.Unlock()

			r.logger.Debug("search_term_done",
				zap.String("term", term),
				zap.Int("results", len(resp.Results)),
				zap.Int("new_records", added),
				zap.Bool("cached", resp.Cached),
				zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
			)
			return nil
		})
	}
	_ = g.Wait()

	r.logger.Info("retrieval_complete", zap.Int("terms", len(terms)), zap.Int64("calls", calls), zap.Int("records", len(records)))
	return records, int(calls)
}

// merge inserts results the map has not seen yet; the first record for an id wins.
func merge(records RecordMap, results []patentsearch.Result) int {
	added := 0
	for _, res := range results {
		id := patentsearch.NormalizeID(res.ID)
		if id == "" {
			continue
		}
		if _, ok := records[id]; ok {
			continue
		}
		records[id] = PatentRecord{
			RawID:           res.ID,
			ID:              id,
			Title:           res.Title,
			PublicationDate: res.PublicationDate,
			Assignee:        res.Assignee,
			Inventor:        res.Inventor,
			Snippet:         res.Snippet,
			URL:             patentsearch.PatentURL(id),
			PDFSuffix:       res.PDFSuffix,
		}
		added++
	}
	return added
}
