package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/joelkehle/priorart-assistant/internal/logging"
	"github.com/joelkehle/priorart-assistant/internal/retry"
	"github.com/joelkehle/priorart-assistant/internal/telemetry"
)

const systemPrompt = "You are a patent search strategist and analyst supporting inventors and patent attorneys. You follow the requested output format exactly and do not invent facts."

const (
	MediaTypePDF  = "application/pdf"
	MediaTypeText = "text/plain"

	defaultMaxTokens    = 8192
	defaultContextLabel = "INVENTION DESCRIPTION"
)

var ErrNotConfigured = errors.New("ANTHROPIC_API_KEY not configured")

type Attachment struct {
	Name      string
	MediaType string
	Data      []byte
}

type Request struct {
	// Purpose names the calling stage in logs, spans and metrics.
	Purpose      string
	Prompt       string
	Context      string
	ContextLabel string
	Attachments  []Attachment
	Temperature  float64
}

// Generator is the model capability every stage depends on.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	ModelName() string
}

type Messager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

type Config struct {
	APIKey    string
	Model     string
	MaxTokens int64
	// Timeout bounds a single attempt, not the whole retry loop.
	Timeout   time.Duration
	BaseDelay time.Duration
}

type Gateway struct {
	messages  Messager
	model     string
	maxTokens int64
	timeout   time.Duration
	policy    retry.Policy
	logger    *zap.Logger
	metrics   *telemetry.Metrics
}

func NewGateway(cfg Config, logger *zap.Logger, metrics *telemetry.Metrics) *Gateway {
	var messages Messager
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		c := anthropic.NewClient(option.WithAPIKey(key), option.WithMaxRetries(0))
		messages = &c.Messages
	}
	return newGateway(messages, cfg, logger, metrics)
}

func newGateway(messages Messager, cfg Config, logger *zap.Logger, metrics *telemetry.Metrics) *Gateway {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "claude-sonnet-4-5"
	}
	g := &Gateway{
		messages:  messages,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		logger:    logging.OrNop(logger),
		metrics:   metrics,
	}
	g.policy = retry.Policy{
		MaxAttempts: retry.DefaultMaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		Retryable:   isRetryable,
	}
	return g
}

func (g *Gateway) ModelName() string { return g.model }

// Generate submits one request, retrying transient faults and empty replies.
// The returned error is always a *Failure.
func (g *Gateway) Generate(ctx context.Context, req Request) (string, error) {
	purpose := req.Purpose
	if purpose == "" {
		purpose = "generate"
	}
	ctx, span := telemetry.Tracer().Start(ctx, "llm."+purpose)
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", g.model), attribute.Int("llm.attachments", len(req.Attachments)))

	if g.messages == nil {
		g.metrics.GatewayCall("llm", string(KindConfig))
		span.SetStatus(codes.Error, ErrNotConfigured.Error())
		return "", &Failure{Purpose: purpose, Kind: KindConfig, Err: ErrNotConfigured}
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return "", &Failure{Purpose: purpose, Kind: KindTerminal, Err: errors.New("prompt is required")}
	}

	params := g.buildParams(req)
	policy := g.policy
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		g.logger.Info("llm_attempt_retry", zap.String("purpose", purpose), zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
	}
	text, attempts, err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) (string, error) {
		return g.attempt(ctx, purpose, attempt, params)
	})
	span.SetAttributes(attribute.Int("llm.attempts", attempts))
	if err != nil {
		f := asFailure(purpose, err)
		f.Attempts = attempts
		g.metrics.GatewayCall("llm", string(f.Kind))
		span.RecordError(f)
		span.SetStatus(codes.Error, f.Error())
		return "", f
	}
	g.metrics.GatewayCall("llm", "ok")
	return text, nil
}

func (g *Gateway) attempt(ctx context.Context, purpose string, attempt int, params anthropic.MessageNewParams) (string, error) {
	start := time.Now()
	g.logger.Debug("llm_attempt_start", zap.String("purpose", purpose), zap.Int("attempt", attempt))
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.messages.New(callCtx, params)
	if err != nil {
		class := classifyTransportError(err)
		g.logger.Warn("llm_attempt_transport_error",
			zap.String("purpose", purpose), zap.Int("attempt", attempt), zap.String("class", class.String()),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()), zap.Error(err))
		kind := KindTransient
		if class == failureClient {
			kind = KindTerminal
		}
		return "", &Failure{Purpose: purpose, Kind: kind, Err: err}
	}

	text := strings.TrimSpace(extractText(resp))
	if text == "" || string(resp.StopReason) == "refusal" {
		g.logger.Warn("llm_attempt_empty",
			zap.String("purpose", purpose), zap.Int("attempt", attempt), zap.String("stop_reason", string(resp.StopReason)),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return "", &Failure{Purpose: purpose, Kind: KindEmpty, Err: fmt.Errorf("empty response (stop_reason=%s)", resp.StopReason)}
	}
	g.logger.Info("llm_attempt_success",
		zap.String("purpose", purpose), zap.Int("attempt", attempt),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()), zap.Int("response_chars", len(text)))
	return text, nil
}

func (g *Gateway) buildParams(req Request) anthropic.MessageNewParams {
	blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(req.Prompt)}
	if strings.TrimSpace(req.Context) != "" {
		label := req.ContextLabel
		if label == "" {
			label = defaultContextLabel
		}
		blocks = append(blocks, anthropic.NewTextBlock(fmt.Sprintf("--- %s START ---\n%s\n--- %s END ---", label, req.Context, label)))
	}
	for _, a := range req.Attachments {
		if len(a.Data) == 0 {
			continue
		}
		switch a.MediaType {
		case MediaTypePDF:
			blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.Base64PDFSourceParam{
				Data: base64.StdEncoding.EncodeToString(a.Data),
			}))
		default:
			blocks = append(blocks, anthropic.NewDocumentBlock(anthropic.PlainTextSourceParam{Data: string(a.Data)}))
		}
	}
	return anthropic.MessageNewParams{
		Model:       anthropic.Model(g.model),
		MaxTokens:   g.maxTokens,
		System:      []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
		Temperature: anthropic.Float(req.Temperature),
	}
}

func extractText(resp *anthropic.Message) string {
	if resp == nil {
		return ""
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// StripCodeFences removes one wrapping ``` fence (with optional language tag)
// that models sometimes put around a whole markdown reply.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	parts := strings.SplitN(s, "\n", 2)
	if len(parts) == 2 {
		s = parts[1]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
