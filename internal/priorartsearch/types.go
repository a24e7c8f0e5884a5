package priorartsearch

import (
	"fmt"
	"sort"
	"strings"
)

// Languages the extractor asks the model to cover, in prompt order.
var Languages = []string{"English", "Mandarin", "Japanese", "Korean", "German", "French", "Spanish", "Italian"}

const (
	DefaultMaxShortlist = 5
	DefaultConcurrency  = 5
	DefaultPageSize     = 20

	TemperatureKeywords = 0.5
	TemperatureRanking  = 0.2
	TemperatureAnalysis = 0.2
)

type Disclosure struct {
	Text      string
	FocusArea string
}

func (d Disclosure) focus() string {
	return strings.TrimSpace(d.FocusArea)
}

// Concept is one inventive idea with its native search terms keyed by language.
type Concept struct {
	Number      int
	Description string
	Terms       map[string][]string
}

type ConceptSet struct {
	Concepts []Concept
	// LanguageSpecific holds terms the model kept out of the cross-lingual groups.
	LanguageSpecific map[string][]string
}

func (cs ConceptSet) Descriptions() []string {
	out := make([]string, 0, len(cs.Concepts))
	for _, c := range cs.Concepts {
		out = append(out, c.Description)
	}
	return out
}

// UniqueTerms flattens every term across concepts and the language-specific
// section, dropping exact duplicates. Order is first-seen, with languages
// walked in the fixed Languages order.
func (cs ConceptSet) UniqueTerms() []string {
	seen := map[string]bool{}
	var out []string
	add := func(byLang map[string][]string) {
		for _, lang := range sortedLanguages(byLang) {
			for _, term := range byLang[lang] {
				if term == "" || seen[term] {
					continue
				}
				seen[term] = true
				out = append(out, term)
			}
		}
	}
	for _, c := range cs.Concepts {
		add(c.Terms)
	}
	add(cs.LanguageSpecific)
	return out
}

func sortedLanguages(byLang map[string][]string) []string {
	rank := map[string]int{}
	for i, l := range Languages {
		rank[l] = i
	}
	keys := make([]string, 0, len(byLang))
	for k := range byLang {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		ri, iok := rank[keys[i]]
		rj, jok := rank[keys[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

type PatentRecord struct {
	RawID           string
	ID              string
	Title           string
	PublicationDate string
	Assignee        string
	Inventor        string
	Snippet         string
	URL             string
	PDFSuffix       string
}

// RecordMap is keyed by normalized identifier.
type RecordMap map[string]PatentRecord

// Sorted returns records ordered by identifier so prompts are stable.
func (m RecordMap) Sorted() []PatentRecord {
	out := make([]PatentRecord, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type RankedEntry struct {
	Rank          int
	ID            string
	Justification string
}

type Analysis struct {
	Record PatentRecord
	Text   string
	// Skipped is set when Text is a placeholder rather than model output.
	Skipped bool
}

type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
