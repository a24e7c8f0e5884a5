package patentsearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/joelkehle/priorart-assistant/internal/logging"
	"github.com/joelkehle/priorart-assistant/internal/retry"
	"github.com/joelkehle/priorart-assistant/internal/telemetry"
)

const searchPath = "/search.json"

type ClientConfig struct {
	APIKey          string
	BaseURL         string
	DocumentBaseURL string
	BaseDelay       time.Duration
	HTTPClient      *http.Client
}

// Client talks to the SerpApi Google Patents engine.
type Client struct {
	cfg     ClientConfig
	policy  retry.Policy
	logger  *zap.Logger
	metrics *telemetry.Metrics
}

type serpResponse struct {
	Error          string           `json:"error"`
	OrganicResults []map[string]any `json:"organic_results"`
}

func NewClient(cfg ClientConfig, logger *zap.Logger, metrics *telemetry.Metrics) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.DocumentBaseURL == "" {
		cfg.DocumentBaseURL = DefaultDocumentBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 45 * time.Second}
	}
	return &Client{
		cfg: cfg,
		policy: retry.Policy{
			MaxAttempts: retry.DefaultMaxAttempts,
			BaseDelay:   cfg.BaseDelay,
			Retryable:   retryableSearchError,
		},
		logger:  logging.OrNop(logger),
		metrics: metrics,
	}
}

func (c *Client) Search(ctx context.Context, query string, page, pageSize int) (Response, error) {
	query = strings.TrimSpace(query)
	ctx, span := telemetry.Tracer().Start(ctx, "search.query")
	defer span.End()
	span.SetAttributes(attribute.String("search.query", query), attribute.Int("search.page", page))

	if c.cfg.APIKey == "" {
		c.metrics.GatewayCall("search", "config")
		span.SetStatus(codes.Error, ErrNotConfigured.Error())
		return Response{}, &Failure{Query: query, Message: ErrNotConfigured.Error(), Err: ErrNotConfigured}
	}
	if query == "" {
		return Response{}, &Failure{Query: query, StatusCode: http.StatusBadRequest, Message: "query is required"}
	}
	if page < 0 {
		page = 0
	}
	pageSize = ClampPageSize(pageSize)

	policy := c.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		c.logger.Info("search_attempt_retry", zap.String("query", query), zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
	}
	resp, attempts, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (Response, error) {
		return c.executeOnce(ctx, query, page, pageSize)
	})
	span.SetAttributes(attribute.Int("search.attempts", attempts))
	if err != nil {
		var f *Failure
		if !errors.As(err, &f) {
			f = &Failure{Query: query, Err: err}
		}
		f.Attempts = attempts
		outcome := "transient"
		if f.Terminal() {
			outcome = "terminal"
		}
		c.metrics.GatewayCall("search", outcome)
		span.RecordError(f)
		span.SetStatus(codes.Error, f.Error())
		return Response{}, f
	}
	c.metrics.GatewayCall("search", "ok")
	return resp, nil
}

func (c *Client) executeOnce(ctx context.Context, query string, page, pageSize int) (Response, error) {
	params := url.Values{}
	params.Set("engine", "google_patents")
	params.Set("q", query)
	params.Set("page", strconv.Itoa(page+1))
	params.Set("num", strconv.Itoa(pageSize))
	params.Set("api_key", c.cfg.APIKey)
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + searchPath + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Response{}, &Failure{Query: query, StatusCode: http.StatusBadRequest, Message: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		c.logger.Warn("search_attempt_transport_error", zap.String("query", query), zap.Int64("elapsed_ms", time.Since(start).Milliseconds()), zap.Error(err))
		return Response{}, &Failure{Query: query, Err: err}
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4<<20))

	if res.StatusCode >= 400 {
		return Response{}, &Failure{Query: query, StatusCode: res.StatusCode, Message: errorMessage(b, res.StatusCode)}
	}

	var parsed serpResponse
	if err := json.Unmarshal(b, &parsed); err != nil {
		return Response{}, &Failure{Query: query, StatusCode: 0, Message: "malformed response body", Err: err}
	}
	if parsed.Error != "" && len(parsed.OrganicResults) == 0 {
		if isNoResults(parsed.Error) {
			return Response{Results: []Result{}}, nil
		}
		return Response{}, &Failure{Query: query, StatusCode: http.StatusBadRequest, Message: parsed.Error}
	}

	out := Response{Results: make([]Result, 0, len(parsed.OrganicResults)), RawCount: len(parsed.OrganicResults)}
	for _, raw := range parsed.OrganicResults {
		r := c.flattenResult(raw)
		if r.ID == "" {
			continue
		}
		out.Results = append(out.Results, r)
	}
	c.logger.Debug("search_attempt_success", zap.String("query", query), zap.Int("results", len(out.Results)), zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return out, nil
}

func (c *Client) flattenResult(raw map[string]any) Result {
	id := strings.TrimSpace(str(raw["patent_id"]))
	if id == "" {
		id = strings.TrimSpace(str(raw["publication_number"]))
	}
	return Result{
		ID:              id,
		Title:           strings.TrimSpace(str(raw["title"])),
		PublicationDate: firstNonEmpty(str(raw["publication_date"]), str(raw["grant_date"]), str(raw["filing_date"]), str(raw["priority_date"])),
		Assignee:        normalizeSpace(str(raw["assignee"])),
		Inventor:        normalizeSpace(str(raw["inventor"])),
		Snippet:         normalizeSpace(str(raw["snippet"])),
		PDFSuffix:       c.pdfSuffix(str(raw["pdf"])),
	}
}

func (c *Client) pdfSuffix(pdf string) string {
	pdf = strings.TrimSpace(pdf)
	if pdf == "" {
		return ""
	}
	base := strings.TrimRight(c.cfg.DocumentBaseURL, "/") + "/"
	if strings.HasPrefix(pdf, base) {
		return strings.TrimPrefix(pdf, base)
	}
	return pdf
}

func errorMessage(body []byte, status int) string {
	var parsed struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Error != "" {
		return parsed.Error
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return fmt.Sprintf("status code: %d %s", status, msg)
}

func isNoResults(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "hasn't returned any results")
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(items ...string) string {
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			return s
		}
	}
	return ""
}
