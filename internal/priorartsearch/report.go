package priorartsearch

import (
	"fmt"
	"strings"
)

const (
	RetrievalSkippedNotice = "**Retrieval skipped:** could not parse any search terms from the keyword report."
	AnalysisSkippedNotice  = "**Detailed analysis skipped:** no ranked patents matched the retrieved results."
)

func RankingFailedNotice(reason string) string {
	return fmt.Sprintf("**Ranking failed:** %s", reason)
}

func KeywordFailureReport(reason string) string {
	return fmt.Sprintf("# Error\n\nKeyword generation failed: %s", reason)
}

func UnexpectedErrorReport(reason string) string {
	return fmt.Sprintf("# Error\n\nAn unexpected error occurred during processing: %s", reason)
}

type RunSummary struct {
	UniqueTerms int
	SearchCalls int
	Records     int
	Shortlisted int
}

// Report holds the text produced by each stage. Ranking is the ranker's raw
// output or a placeholder; Analyses may be empty.
type Report struct {
	FocusArea string
	Keywords  string
	Ranking   string
	Analyses  []Analysis
	Summary   RunSummary
}

// Assemble concatenates stage outputs. It does not parse or validate them.
func Assemble(r Report) string {
	var b strings.Builder
	b.WriteString("# Prior Art Search Report\n\n")
	if f := strings.TrimSpace(r.FocusArea); f != "" {
		fmt.Fprintf(&b, "**Focus area:** %s\n\n", f)
	}

	b.WriteString("## Keyword Strategy\n\n")
	b.WriteString(strings.TrimSpace(r.Keywords))
	b.WriteString("\n\n---\n\n")

	b.WriteString("## Relevance Ranking\n\n")
	b.WriteString(strings.TrimSpace(r.Ranking))
	b.WriteString("\n\n---\n\n")

	b.WriteString("## Detailed Analysis\n\n")
	if len(r.Analyses) == 0 {
		b.WriteString(AnalysisSkippedNotice)
		b.WriteString("\n\n")
	}
	for i, a := range r.Analyses {
		fmt.Fprintf(&b, "### %d. %s – %s\n\n", i+1, a.Record.ID, orNA(a.Record.Title))
		if a.Record.URL != "" {
			fmt.Fprintf(&b, "[%s](%s)\n\n", a.Record.ID, a.Record.URL)
		}
		b.WriteString(strings.TrimSpace(a.Text))
		b.WriteString("\n\n")
	}
	b.WriteString("---\n\n")

	b.WriteString("## Run Summary\n\n")
	fmt.Fprintf(&b, "- Unique search terms: %d\n", r.Summary.UniqueTerms)
	fmt.Fprintf(&b, "- Search calls: %d\n", r.Summary.SearchCalls)
	fmt.Fprintf(&b, "- Unique patents: %d\n", r.Summary.Records)
	fmt.Fprintf(&b, "- Short-listed: %d\n", r.Summary.Shortlisted)
	return b.String()
}
