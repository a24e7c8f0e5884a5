package priorartsearch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joelkehle/priorart-assistant/internal/llm"
	"github.com/joelkehle/priorart-assistant/internal/patentsearch"
)

func NoSourceLinkNotice(id string) string {
	return fmt.Sprintf("**Skipped:** no source document link for %s.", id)
}

func FetchFailedNotice(id string) string {
	return fmt.Sprintf("**Skipped:** failed to download the source document for %s.", id)
}

func AnalysisFailedNotice(reason string) string {
	return fmt.Sprintf("**Analysis failed:** %s", reason)
}

// Analyzer compares each short-listed patent's full text with the disclosure.
// Documents are processed one at a time in short-list order.
type Analyzer struct {
	gen     llm.Generator
	fetcher patentsearch.DocumentFetcher
	logger  *zap.Logger
}

func NewAnalyzer(gen llm.Generator, fetcher patentsearch.DocumentFetcher, logger *zap.Logger) *Analyzer {
	return &Analyzer{gen: gen, fetcher: fetcher, logger: logger}
}

func (a *Analyzer) AnalyzeAll(ctx context.Context, d Disclosure, shortlist []PatentRecord) []Analysis {
	out := make([]Analysis, 0, len(shortlist))
	for i, rec := range shortlist {
		start := time.Now()
		an := a.Analyze(ctx, d, rec)
		a.logger.Info("deep_dive_done",
			zap.Int("position", i+1),
			zap.String("id", rec.ID),
			zap.Bool("skipped", an.Skipped),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		)
		out = append(out, an)
	}
	return out
}

// Analyze never fails; every problem becomes a placeholder Analysis.
func (a *Analyzer) Analyze(ctx context.Context, d Disclosure, rec PatentRecord) Analysis {
	if strings.TrimSpace(rec.PDFSuffix) == "" {
		return Analysis{Record: rec, Text: NoSourceLinkNotice(rec.ID), Skipped: true}
	}
	doc, err := a.fetcher.Fetch(ctx, rec.PDFSuffix)
	if err != nil {
		a.logger.Warn("deep_dive_fetch_failed", zap.String("id", rec.ID), zap.String("suffix", rec.PDFSuffix), zap.Error(err))
		return Analysis{Record: rec, Text: FetchFailedNotice(rec.ID), Skipped: true}
	}
	text, err := a.gen.Generate(ctx, llm.Request{
		Purpose: "deep_dive",
		Prompt:  BuildAnalysisPrompt(d.FocusArea, rec),
		Context: d.Text,
		Attachments: []llm.Attachment{{
			Name:      rec.ID + ".pdf",
			MediaType: doc.ContentType,
			Data:      doc.Data,
		}},
		Temperature: TemperatureAnalysis,
	})
	if err != nil {
		a.logger.Warn("deep_dive_model_failed", zap.String("id", rec.ID), zap.Error(err))
		return Analysis{Record: rec, Text: AnalysisFailedNotice(err.Error()), Skipped: true}
	}
	return Analysis{Record: rec, Text: llm.StripCodeFences(text)}
}

func BuildAnalysisPrompt(focusArea string, rec PatentRecord) string {
	var b strings.Builder
	b.WriteString("Act as an experienced patent examiner.\n")
	fmt.Fprintf(&b, "The attached PDF is the full text of patent %s (%s). The invention description is provided below.\n\n", rec.ID, orNA(rec.Title))
	b.WriteString("Produce the following sections in Markdown:\n\n")
	b.WriteString("#### Summary\nA brief summary of what the attached patent discloses and claims.\n\n")
	b.WriteString("#### Relevance Assessment\nA detailed comparison with the invention: overlapping elements, differences, and which claims or passages come closest.")
	if f := strings.TrimSpace(focusArea); f != "" {
		fmt.Fprintf(&b, " Address this focus area explicitly: %q.", f)
	}
	b.WriteString("\n\n#### Conclusion\nOne short paragraph stating how relevant this patent is as prior art for the invention.\n")
	return b.String()
}
