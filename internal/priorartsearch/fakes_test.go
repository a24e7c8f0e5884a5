package priorartsearch

import (
	"context"
	"errors"
	"sync"

	"github.com/joelkehle/priorart-assistant/internal/llm"
	"github.com/joelkehle/priorart-assistant/internal/patentsearch"
)

const mugDisclosure = "A mug with a resistive heating element activated by a pressure sensor in the base, so the drink is only heated while the mug is resting on a surface."

const mugKeywordReport = `## Keyword Search Strategy Report

### Core Concepts Identified
*   Self-heating drinking vessel
*   Pressure-activated heater switch

### Cross-Lingual Search Concepts
(List concepts found to have precise equivalents across multiple languages)

**Concept 1: Self-heating drinking vessel**
    *   English: ` + "`heated mug`, `self-heating cup`" + ` - [Search](https://patents.google.com/?q=heated+mug)
    *   German: ` + "`beheizbarer Becher`" + ` - [Search](https://patents.google.com/?q=beheizbarer+Becher)
    *   Japanese: ` + "`加熱マグカップ`" + `

**Concept 2: Pressure-activated heater switch**
    - English: ` + "`pressure sensor heater switch`" + `
    - Klingon: ` + "`ignored`" + `

**Concept 3: Something with no terms**
    *   Notes: nothing useful

### Language-Specific or Nuanced Search Terms

*   Korean: ` + "`보온 머그`" + ` - [Search](https://patents.google.com/?q=x)
*   English: ` + "`heated mug`" + `
`

// fakeGenerator answers by request purpose.
type fakeGenerator struct {
	mu        sync.Mutex
	responses map[string]string
	errs      map[string]error
	requests  []llm.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if err := f.errs[req.Purpose]; err != nil {
		return "", err
	}
	return f.responses[req.Purpose], nil
}

func (f *fakeGenerator) ModelName() string { return "fake" }

func (f *fakeGenerator) calls(purpose string) []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []llm.Request
	for _, r := range f.requests {
		if r.Purpose == purpose {
			out = append(out, r)
		}
	}
	return out
}

type fakeSearcher struct {
	mu      sync.Mutex
	byTerm  map[string][]patentsearch.Result
	errs    map[string]error
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string, page, pageSize int) (patentsearch.Response, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if err := f.errs[query]; err != nil {
		return patentsearch.Response{}, err
	}
	res := f.byTerm[query]
	return patentsearch.Response{Results: res, RawCount: len(res)}, nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	fail    map[string]bool
	fetched []string
}

func (f *fakeFetcher) Fetch(_ context.Context, link string) (patentsearch.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, link)
	if f.fail[link] {
		return patentsearch.Document{}, errors.New("download failed")
	}
	return patentsearch.Document{URL: "https://docs.example/" + link, ContentType: "application/pdf", Data: []byte("%PDF " + link)}, nil
}
