package priorartsearch

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/joelkehle/priorart-assistant/internal/llm"
)

const keywordPromptTemplate = `Act as a world-class patent search expert specializing in multilingual keyword analysis.
Analyze the invention description provided below.

**Task - follow carefully:**

1. **Identify Core Concepts:** Identify the distinct core technical concepts or inventive ideas in the description.%s
2. **Generate Native Terms:** For EACH core concept, generate the most effective and natural search term or short phrase in EACH of these languages: %s. Use the best native term in each language, not a literal or transliterated translation from English.
3. **Group:** Group terms from different languages ONLY IF they denote the exact same core concept. Give each group a clear description.
4. **Isolate Unique Terms:** Terms for concepts or nuances specific to one or a few languages must NOT be placed in the groups.
5. **Format Output:** Use the strict format below.

## Keyword Search Strategy Report

### Core Concepts Identified
*   [Concept 1 description]
*   [Concept 2 description]

### Cross-Lingual Search Concepts

**Concept 1: [Concept 1 description]**
    *   English: ` + "`[term]`" + ` - [Search](https://patents.google.com/?q=URL_ENCODED_TERM)
    *   Mandarin: ` + "`[term]`" + ` - [Search](https://patents.google.com/?q=URL_ENCODED_TERM)

**Concept 2: [Concept 2 description]**
    *   German: ` + "`[term]`" + ` - [Search](https://patents.google.com/?q=URL_ENCODED_TERM)

### Language-Specific or Nuanced Search Terms

*   Korean: ` + "`[term]`" + ` - [Search](https://patents.google.com/?q=URL_ENCODED_TERM)

**Formatting notes:**
*   Wrap every search term in backticks. Separate several terms for one language with commas.
*   Replace URL_ENCODED_TERM with the URL-encoded term.
*   Do NOT wrap the output in triple backticks.`

var (
	sectionHeadingRe   = regexp.MustCompile(`(?m)^\s{0,3}#{1,3}\s+\S`)
	crossLingualRe     = regexp.MustCompile(`(?mi)^\s{0,3}#{2,3}\s*cross-lingual search concepts\b.*$`)
	languageSpecificRe = regexp.MustCompile(`(?mi)^\s{0,3}#{2,3}\s*language-specific\b.*$`)
	conceptHeaderRe    = regexp.MustCompile(`(?mi)^\s*(?:[*\-+]\s+)?(?:\*\*|__)?\s*concept\s+(\d+)\s*:\s*(.*?)\s*(?:\*\*|__)?\s*$`)
	termLineRe         = regexp.MustCompile(`^\s*(?:[*\-+•]\s*)?(?:\*\*|__)?\s*([\p{L}][\p{L} ()]*?)\s*(?:\*\*|__)?\s*[:：]\s*(?:\*\*|__)?\s*(.+)$`)
	backtickRe         = regexp.MustCompile("`([^`]+)`")
	searchLinkRe       = regexp.MustCompile(`\s+[-–—]\s*\[[^\]]*\]\([^)]*\)\s*$`)
)

var languageAliases = map[string]string{
	"chinese":            "Mandarin",
	"mandarin chinese":   "Mandarin",
	"chinese (mandarin)": "Mandarin",
	"simplified chinese": "Mandarin",
}

// Extractor decomposes a disclosure into concepts and multilingual terms.
type Extractor struct {
	gen    llm.Generator
	logger *zap.Logger
}

func NewExtractor(gen llm.Generator, logger *zap.Logger) *Extractor {
	return &Extractor{gen: gen, logger: logger}
}

func BuildKeywordPrompt(focusArea string) string {
	focus := ""
	if f := strings.TrimSpace(focusArea); f != "" {
		focus = fmt.Sprintf(" Weight the analysis toward this focus area: %q.", f)
	}
	return fmt.Sprintf(keywordPromptTemplate, focus, strings.Join(Languages, ", "))
}

// Extract returns the model's raw keyword report alongside the parsed concepts.
// A report without parseable concepts is not an error.
func (e *Extractor) Extract(ctx context.Context, d Disclosure) (string, ConceptSet, error) {
	raw, err := e.gen.Generate(ctx, llm.Request{
		Purpose:     "keywords",
		Prompt:      BuildKeywordPrompt(d.FocusArea),
		Context:     d.Text,
		Temperature: TemperatureKeywords,
	})
	if err != nil {
		return "", ConceptSet{}, &StageError{Stage: "keywords", Err: err}
	}
	raw = llm.StripCodeFences(raw)
	set := ParseConcepts(raw, e.logger)
	e.logger.Info("keywords_parsed",
		zap.Int("concepts", len(set.Concepts)),
		zap.Int("language_specific", countTerms(set.LanguageSpecific)),
		zap.Int("unique_terms", len(set.UniqueTerms())),
	)
	return raw, set, nil
}

// ParseConcepts reads the "Cross-Lingual Search Concepts" and
// "Language-Specific" sections of a keyword report. Headings are strict
// anchors; bullet markers, spacing and missing languages are tolerated.
func ParseConcepts(report string, logger *zap.Logger) ConceptSet {
	if logger == nil {
		logger = zap.NewNop()
	}
	var set ConceptSet

	if body, ok := sectionBody(report, crossLingualRe); ok {
		set.Concepts = parseConceptBlocks(body, logger)
	} else {
		logger.Warn("keywords_section_missing", zap.String("section", "cross_lingual"))
	}
	if body, ok := sectionBody(report, languageSpecificRe); ok {
		terms := map[string][]string{}
		for _, line := range strings.Split(body, "\n") {
			if lang, ts, ok := parseTermLine(line); ok {
				terms[lang] = appendUnique(terms[lang], ts...)
			}
		}
		if len(terms) > 0 {
			set.LanguageSpecific = terms
		}
	}
	return set
}

func sectionBody(report string, heading *regexp.Regexp) (string, bool) {
	loc := heading.FindStringIndex(report)
	if loc == nil {
		return "", false
	}
	rest := report[loc[1]:]
	if next := sectionHeadingRe.FindStringIndex(rest); next != nil {
		rest = rest[:next[0]]
	}
	return rest, true
}

func parseConceptBlocks(body string, logger *zap.Logger) []Concept {
	var concepts []Concept
	var cur *Concept
	flush := func() {
		if cur == nil {
			return
		}
		if len(cur.Terms) == 0 {
			logger.Warn("concept_without_terms", zap.Int("concept", cur.Number), zap.String("description", cur.Description))
		} else {
			concepts = append(concepts, *cur)
		}
		cur = nil
	}
	for _, line := range strings.Split(body, "\n") {
		if m := conceptHeaderRe.FindStringSubmatch(line); m != nil {
			flush()
			n := 0
			fmt.Sscanf(m[1], "%d", &n)
			cur = &Concept{Number: n, Description: strings.Trim(strings.TrimSpace(m[2]), "*_ "), Terms: map[string][]string{}}
			continue
		}
		if cur == nil {
			continue
		}
		if lang, terms, ok := parseTermLine(line); ok {
			cur.Terms[lang] = appendUnique(cur.Terms[lang], terms...)
		}
	}
	flush()
	return concepts
}

// parseTermLine accepts "<Language>: `t1`, `t2` - [Search](...)" with any
// bullet marker. Lines whose label is not a known language are ignored.
func parseTermLine(line string) (string, []string, bool) {
	m := termLineRe.FindStringSubmatch(line)
	if m == nil {
		return "", nil, false
	}
	lang, ok := canonicalLanguage(m[1])
	if !ok {
		return "", nil, false
	}
	value := searchLinkRe.ReplaceAllString(m[2], "")
	var raw []string
	if ticks := backtickRe.FindAllStringSubmatch(value, -1); len(ticks) > 0 {
		for _, t := range ticks {
			raw = append(raw, strings.Split(t[1], ",")...)
		}
	} else {
		raw = strings.Split(value, ",")
	}
	var terms []string
	for _, t := range raw {
		t = strings.TrimSpace(strings.Trim(strings.TrimSpace(t), "`*_\"'"))
		if t != "" {
			terms = appendUnique(terms, t)
		}
	}
	if len(terms) == 0 {
		return "", nil, false
	}
	return lang, terms, true
}

func canonicalLanguage(label string) (string, bool) {
	label = strings.ToLower(strings.Join(strings.Fields(label), " "))
	for _, l := range Languages {
		if strings.ToLower(l) == label {
			return l, true
		}
	}
	if l, ok := languageAliases[label]; ok {
		return l, true
	}
	return "", false
}

func appendUnique(dst []string, items ...string) []string {
	for _, item := range items {
		dup := false
		for _, have := range dst {
			if have == item {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, item)
		}
	}
	return dst
}

func countTerms(byLang map[string][]string) int {
	n := 0
	for _, ts := range byLang {
		n += len(ts)
	}
	return n
}
