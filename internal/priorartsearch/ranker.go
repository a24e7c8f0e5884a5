package priorartsearch

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/joelkehle/priorart-assistant/internal/llm"
	"github.com/joelkehle/priorart-assistant/internal/patentsearch"
)

const NoPatentsNotice = "**Ranking skipped:** no patents to analyze."

// rankedEntryRe matches the first line of a numbered ranking entry such as
// "**1. US1234A1 - Title**", "1) [US1234A1](url) - Title" or
// "### 2. **patent/EP99B1/en**: Title". Group 1 is the rank, group 2 the id.
var rankedEntryRe = regexp.MustCompile(`^\s{0,3}(?:#{1,4}\s*)?(?:\*\*|__)?\s*(\d{1,2})[.)]\s*(?:\*\*|__)?\s*\[?\s*((?:patent/)?[A-Z]{2}[A-Z]{0,2}\d[0-9A-Z]*(?:/[a-z]{2})?)\b`)

type Ranker struct {
	gen          llm.Generator
	maxShortlist int
	logger       *zap.Logger
}

func NewRanker(gen llm.Generator, maxShortlist int, logger *zap.Logger) *Ranker {
	if maxShortlist <= 0 {
		maxShortlist = DefaultMaxShortlist
	}
	return &Ranker{gen: gen, maxShortlist: maxShortlist, logger: logger}
}

type RankResult struct {
	// Text is the model's ranking verbatim, or NoPatentsNotice.
	Text    string
	Entries []RankedEntry
}

func (r *Ranker) Rank(ctx context.Context, d Disclosure, concepts []string, records RecordMap) (RankResult, error) {
	if len(records) == 0 {
		return RankResult{Text: NoPatentsNotice}, nil
	}
	text, err := r.gen.Generate(ctx, llm.Request{
		Purpose:     "ranking",
		Prompt:      BuildRankingPrompt(d.FocusArea, concepts, records, r.maxShortlist),
		Context:     d.Text,
		Temperature: TemperatureRanking,
	})
	if err != nil {
		return RankResult{}, err
	}
	text = llm.StripCodeFences(text)
	entries := ParseRankedEntries(text)
	return RankResult{Text: text, Entries: entries}, nil
}

// Shortlist resolves ranked entries against the retrieved records, in rank
// order, capped at the configured maximum. Unknown ids are logged and dropped.
func (r *Ranker) Shortlist(entries []RankedEntry, records RecordMap) []PatentRecord {
	var out []PatentRecord
	seen := map[string]bool{}
	for _, e := range entries {
		if len(out) >= r.maxShortlist {
			break
		}
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		rec, ok := records[e.ID]
		if !ok {
			r.logger.Warn("ranked_id_missing", zap.Int("rank", e.Rank), zap.String("id", e.ID))
			continue
		}
		out = append(out, rec)
	}
	return out
}

// ParseRankedEntries extracts numbered entries from ranking text. An entry's
// justification is every following line up to the next entry.
func ParseRankedEntries(text string) []RankedEntry {
	var entries []RankedEntry
	var body []string
	flush := func() {
		if len(entries) == 0 {
			return
		}
		entries[len(entries)-1].Justification = strings.TrimSpace(strings.Join(body, "\n"))
		body = nil
	}
	for _, line := range strings.Split(text, "\n") {
		m := rankedEntryRe.FindStringSubmatch(line)
		if m == nil {
			if len(entries) > 0 {
				body = append(body, line)
			}
			continue
		}
		flush()
		rank := 0
		fmt.Sscanf(m[1], "%d", &rank)
		entries = append(entries, RankedEntry{Rank: rank, ID: patentsearch.NormalizeID(m[2])})
	}
	flush()
	return entries
}

func BuildRankingPrompt(focusArea string, concepts []string, records RecordMap, maxShortlist int) string {
	var b strings.Builder
	b.WriteString("Act as an experienced patent examiner performing a prior art search.\n")
	b.WriteString("The invention description is provided below. The candidate patents were retrieved with multilingual keyword searches.\n\n")
	b.WriteString("**Task:**\n")
	b.WriteString("1. Rank the candidates by relevance to the ENTIRE invention, not only the concept that surfaced them.\n")
	if f := strings.TrimSpace(focusArea); f != "" {
		fmt.Fprintf(&b, "2. Give extra weight to this focus area: %q.\n", f)
	} else {
		b.WriteString("2. Consider every inventive aspect equally.\n")
	}
	fmt.Fprintf(&b, "3. Select the top 3 to %d most relevant patents. Fewer is fine when fewer are relevant.\n\n", maxShortlist)
	b.WriteString("**Output format (strict):** one numbered entry per selected patent, most relevant first:\n\n")
	b.WriteString("**1. <Patent ID> - <Title>**\n")
	b.WriteString("*   Link: [<Patent ID>](<URL>)\n")
	b.WriteString("*   Relevance: <why this patent matters for the invention>\n\n")
	b.WriteString("Use the Patent ID exactly as listed below.\n\n")

	if len(concepts) > 0 {
		b.WriteString("**Core concepts identified:**\n")
		for _, c := range concepts {
			fmt.Fprintf(&b, "*   %s\n", c)
		}
		b.WriteString("\n")
	}

	b.WriteString("--- CANDIDATE PATENTS START ---\n")
	for _, rec := range records.Sorted() {
		b.WriteString(FormatRecord(rec))
		b.WriteString("\n")
	}
	b.WriteString("--- CANDIDATE PATENTS END ---\n")
	return b.String()
}

func FormatRecord(rec PatentRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Patent ID: %s\n", rec.ID)
	fmt.Fprintf(&b, "URL: %s\n", rec.URL)
	fmt.Fprintf(&b, "Title: %s\n", orNA(rec.Title))
	fmt.Fprintf(&b, "Date: %s\n", orNA(rec.PublicationDate))
	fmt.Fprintf(&b, "Assignee: %s\n", orNA(rec.Assignee))
	fmt.Fprintf(&b, "Inventor: %s\n", orNA(rec.Inventor))
	fmt.Fprintf(&b, "Snippet: %s\n", orNA(rec.Snippet))
	return b.String()
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
