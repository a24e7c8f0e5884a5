package patentsearch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const (
	DefaultBaseURL         = "https://serpapi.com"
	DefaultDocumentBaseURL = "https://patentimages.storage.googleapis.com"
	GooglePatentsBaseURL   = "https://patents.google.com/patent/"

	MinPageSize = 10
	MaxPageSize = 100
)

var ErrNotConfigured = errors.New("SERPAPI_API_KEY not configured")

// Result is one raw search hit. ID keeps the identifier exactly as the API
// returned it; NormalizeID derives the dedup key.
type Result struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	PublicationDate string `json:"publication_date"`
	Assignee        string `json:"assignee"`
	Inventor        string `json:"inventor"`
	Snippet         string `json:"snippet"`
	// PDFSuffix is relative to the document base URL, or absolute when the
	// API pointed somewhere else.
	PDFSuffix string `json:"pdf_suffix,omitempty"`
}

type Response struct {
	Results []Result `json:"results"`
	// RawCount counts every record the API returned, including skipped ones.
	RawCount int  `json:"raw_count"`
	Cached   bool `json:"-"`
}

// Searcher is the search capability consumed by the retrieval engine. The
// returned error is always a *Failure.
type Searcher interface {
	Search(ctx context.Context, query string, page, pageSize int) (Response, error)
}

type Failure struct {
	Query      string
	StatusCode int
	Attempts   int
	Message    string
	Err        error
}

func (f *Failure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "search %q failed", f.Query)
	if f.StatusCode > 0 {
		fmt.Fprintf(&b, " status=%d", f.StatusCode)
	}
	if f.Attempts > 0 {
		fmt.Fprintf(&b, " attempts=%d", f.Attempts)
	}
	if f.Message != "" {
		b.WriteString(": " + f.Message)
	} else if f.Err != nil {
		b.WriteString(": " + f.Err.Error())
	}
	return b.String()
}

func (f *Failure) Unwrap() error { return f.Err }

// Terminal reports a rejection that will not succeed on retry: a 4xx response
// or missing configuration.
func (f *Failure) Terminal() bool {
	if errors.Is(f.Err, ErrNotConfigured) {
		return true
	}
	return f.StatusCode >= 400 && f.StatusCode < 500
}

func retryableSearchError(err error) bool {
	var f *Failure
	if !errors.As(err, &f) {
		return true
	}
	if f.Terminal() {
		return false
	}
	return f.StatusCode == 0 || f.StatusCode >= http.StatusInternalServerError
}

func ClampPageSize(n int) int {
	if n < MinPageSize {
		return MinPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}
