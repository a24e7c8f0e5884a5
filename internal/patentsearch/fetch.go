package patentsearch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joelkehle/priorart-assistant/internal/logging"
	"github.com/joelkehle/priorart-assistant/internal/telemetry"
)

// MaxDocumentBytes bounds a downloaded source document.
const MaxDocumentBytes = 32 << 20

var (
	ErrNotPDF      = errors.New("response is not a PDF document")
	ErrDocTooLarge  = errors.New("document exceeds size limit")
	ErrEmptyLink    = errors.New("document link is empty")
)

type Document struct {
	URL         string
	ContentType string
	Data        []byte
}

// DocumentFetcher downloads a patent's full-text PDF. It makes a single
// attempt; callers degrade on failure.
type DocumentFetcher interface {
	Fetch(ctx context.Context, link string) (Document, error)
}

type Fetcher struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
	metrics *telemetry.Metrics
}

func NewFetcher(baseURL string, client *http.Client, logger *zap.Logger, metrics *telemetry.Metrics) *Fetcher {
	if baseURL == "" {
		baseURL = DefaultDocumentBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 45 * time.Second}
	}
	return &Fetcher{baseURL: strings.TrimRight(baseURL, "/"), client: client, logger: logging.OrNop(logger), metrics: metrics}
}

// ResolveURL joins a suffix to the document base. Absolute links pass through.
func (f *Fetcher) ResolveURL(link string) string {
	link = strings.TrimSpace(link)
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	return f.baseURL + "/" + strings.TrimLeft(link, "/")
}

func (f *Fetcher) Fetch(ctx context.Context, link string) (Document, error) {
	if strings.TrimSpace(link) == "" {
		return Document{}, ErrEmptyLink
	}
	doc, err := f.fetch(ctx, f.ResolveURL(link))
	if err != nil {
		f.metrics.GatewayCall("fetch", "failed")
		f.logger.Warn("document_fetch_failed", zap.String("url", f.ResolveURL(link)), zap.Error(err))
		return Document{}, err
	}
	f.metrics.GatewayCall("fetch", "ok")
	return doc, nil
}

func (f *Fetcher) fetch(ctx context.Context, target string) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Document{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/pdf")
	res, err := f.client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("download %s: %w", target, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return Document{}, fmt.Errorf("download %s: status %d", target, res.StatusCode)
	}
	mediaType, _, err := mime.ParseMediaType(res.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/pdf" {
		return Document{}, fmt.Errorf("download %s: %w (content-type %q)", target, ErrNotPDF, res.Header.Get("Content-Type"))
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, MaxDocumentBytes+1))
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", target, err)
	}
	if len(data) > MaxDocumentBytes {
		return Document{}, ErrDocTooLarge
	}
	return Document{URL: target, ContentType: mediaType, Data: data}, nil
}
