package priorartsearch

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/joelkehle/priorart-assistant/internal/llm"
	"github.com/joelkehle/priorart-assistant/internal/logging"
	"github.com/joelkehle/priorart-assistant/internal/patentsearch"
	"github.com/joelkehle/priorart-assistant/internal/telemetry"
)

type Options struct {
	Concurrency  int
	PageSize     int
	MaxShortlist int
}

// Pipeline runs keyword extraction, retrieval, ranking and deep-dive analysis
// and always yields a markdown report.
type Pipeline struct {
	extractor *Extractor
	retriever *Retriever
	ranker    *Ranker
	analyzer  *Analyzer
	logger    *zap.Logger
	metrics   *telemetry.Metrics
}

func NewPipeline(gen llm.Generator, searcher patentsearch.Searcher, fetcher patentsearch.DocumentFetcher, opts Options, logger *zap.Logger, metrics *telemetry.Metrics) *Pipeline {
	logger = logging.OrNop(logger)
	return &Pipeline{
		extractor: NewExtractor(gen, logger.Named("extractor")),
		retriever: NewRetriever(searcher, opts.Concurrency, opts.PageSize, logger.Named("retrieval"), metrics),
		ranker:    NewRanker(gen, opts.MaxShortlist, logger.Named("ranker")),
		analyzer:  NewAnalyzer(gen, fetcher, logger.Named("deep_dive")),
		logger:    logger,
		metrics:   metrics,
	}
}

// Keywords runs only the extractor and returns its raw report.
func (p *Pipeline) Keywords(ctx context.Context, d Disclosure) string {
	var raw string
	err := p.stage(ctx, "keywords", func(ctx context.Context) error {
		var err error
		raw, _, err = p.extractor.Extract(ctx, d)
		return err
	})
	if err != nil {
		return KeywordFailureReport(failureReason(err))
	}
	return raw
}

func (p *Pipeline) Run(ctx context.Context, d Disclosure) string {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.run")
	defer span.End()
	start := time.Now()

	var (
		keywords string
		concepts ConceptSet
	)
	err := p.stage(ctx, "keywords", func(ctx context.Context) error {
		var err error
		keywords, concepts, err = p.extractor.Extract(ctx, d)
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error("pipeline_aborted", zap.String("stage", StageNameFromError(err)), zap.Error(err))
		return KeywordFailureReport(failureReason(err))
	}

	report := Report{FocusArea: d.focus(), Keywords: keywords}
	terms := concepts.UniqueTerms()
	report.Summary.UniqueTerms = len(terms)
	if len(terms) == 0 {
		report.Ranking = RetrievalSkippedNotice
		p.logger.Warn("retrieval_skipped", zap.String("reason", "no_terms"))
		return Assemble(report)
	}

	var records RecordMap
	_ = p.stage(ctx, "retrieval", func(ctx context.Context) error {
		records, report.Summary.SearchCalls = p.retriever.Retrieve(ctx, terms)
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("retrieval.records", len(records)))
		return nil
	})
	report.Summary.Records = len(records)

	var ranked RankResult
	err = p.stage(ctx, "ranking", func(ctx context.Context) error {
		var err error
		ranked, err = p.ranker.Rank(ctx, d, concepts.Descriptions(), records)
		return err
	})
	if err != nil {
		report.Ranking = RankingFailedNotice(failureReason(err))
		return Assemble(report)
	}
	report.Ranking = ranked.Text

	shortlist := p.ranker.Shortlist(ranked.Entries, records)
	report.Summary.Shortlisted = len(shortlist)
	if len(shortlist) > 0 {
		_ = p.stage(ctx, "deep_dive", func(ctx context.Context) error {
			report.Analyses = p.analyzer.AnalyzeAll(ctx, d, shortlist)
			return nil
		})
	}

	p.logger.Info("pipeline_complete",
		zap.Int("unique_terms", report.Summary.UniqueTerms),
		zap.Int("search_calls", report.Summary.SearchCalls),
		zap.Int("records", report.Summary.Records),
		zap.Int("shortlisted", report.Summary.Shortlisted),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return Assemble(report)
}

func (p *Pipeline) stage(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	ctx, span := telemetry.Tracer().Start(ctx, "stage."+name)
	defer span.End()
	start := time.Now()
	p.logger.Info("stage_start", zap.String("stage", name))
	err := fn(ctx)
	elapsed := time.Since(start)
	p.metrics.ObserveStage(name, elapsed)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Warn("stage_failed", zap.String("stage", name), zap.Int64("elapsed_ms", elapsed.Milliseconds()), zap.Error(err))
		return err
	}
	p.logger.Info("stage_done", zap.String("stage", name), zap.Int64("elapsed_ms", elapsed.Milliseconds()))
	return nil
}

func StageNameFromError(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return "pipeline"
}

// failureReason prefers the innermost gateway failure message.
func failureReason(err error) string {
	var lf *llm.Failure
	if errors.As(err, &lf) {
		return lf.Error()
	}
	return err.Error()
}
