package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeMessager struct {
	responses []*anthropic.Message
	errs      []error
	calls     int
	params    []anthropic.MessageNewParams
}

func (f *fakeMessager) New(_ context.Context, params anthropic.MessageNewParams, _ ...option.RequestOption) (*anthropic.Message, error) {
	i := f.calls
	f.calls++
	f.params = append(f.params, params)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return &anthropic.Message{}, nil
}

func textMessage(s string) *anthropic.Message {
	return &anthropic.Message{
		Content:    []anthropic.ContentBlockUnion{{Type: "text", Text: s}},
		StopReason: anthropic.StopReason("end_turn"),
	}
}

func newTestGateway(t *testing.T, m Messager) *Gateway {
	return newGateway(m, Config{Model: "test-model"}, zaptest.NewLogger(t), nil)
}

func TestGenerateReturnsTrimmedText(t *testing.T) {
	m := &fakeMessager{responses: []*anthropic.Message{textMessage("  hello world \n")}}
	out, err := newTestGateway(t, m).Generate(context.Background(), Request{Purpose: "test", Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
	assert.Equal(t, 1, m.calls)
}

func TestGenerateRetriesTransientThenSucceeds(t *testing.T) {
	m := &fakeMessager{
		errs:      []error{fmt.Errorf("status code: 503"), fmt.Errorf("status code: 529 overloaded")},
		responses: []*anthropic.Message{nil, nil, textMessage("ok")},
	}
	out, err := newTestGateway(t, m).Generate(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 3, m.calls)
}

func TestGenerateRetriesEmptyResponseUpToCap(t *testing.T) {
	m := &fakeMessager{responses: []*anthropic.Message{textMessage(""), textMessage("  "), textMessage("")}}
	_, err := newTestGateway(t, m).Generate(context.Background(), Request{Purpose: "rank", Prompt: "p"})
	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, KindEmpty, f.Kind)
	assert.Equal(t, 3, f.Attempts)
	assert.Equal(t, 3, m.calls)
}

func TestGenerateTreatsRefusalAsEmpty(t *testing.T) {
	refusal := textMessage("I can't help")
	refusal.StopReason = anthropic.StopReason("refusal")
	m := &fakeMessager{responses: []*anthropic.Message{refusal, textMessage("fine")}}
	out, err := newTestGateway(t, m).Generate(context.Background(), Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "fine", out)
}

func TestGenerateClientErrorIsTerminal(t *testing.T) {
	m := &fakeMessager{errs: []error{fmt.Errorf("status code: 400 invalid request")}}
	_, err := newTestGateway(t, m).Generate(context.Background(), Request{Prompt: "p"})
	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, KindTerminal, f.Kind)
	assert.Equal(t, 1, m.calls)
}

func TestGenerateTimeoutRetriesToCap(t *testing.T) {
	m := &fakeMessager{errs: []error{context.DeadlineExceeded, context.DeadlineExceeded, context.DeadlineExceeded, nil}}
	_, err := newTestGateway(t, m).Generate(context.Background(), Request{Prompt: "p"})
	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, KindTransient, f.Kind)
	assert.Equal(t, 3, m.calls)
}

func TestGenerateWithoutKeyIsConfigFailure(t *testing.T) {
	g := NewGateway(Config{}, zaptest.NewLogger(t), nil)
	_, err := g.Generate(context.Background(), Request{Prompt: "p"})
	var f *Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, KindConfig, f.Kind)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestBuildParamsAddsContextAndAttachments(t *testing.T) {
	m := &fakeMessager{responses: []*anthropic.Message{textMessage("ok")}}
	g := newTestGateway(t, m)
	_, err := g.Generate(context.Background(), Request{
		Prompt:      "analyze",
		Context:     "a mug",
		Attachments: []Attachment{{MediaType: MediaTypePDF, Data: []byte("%PDF-1.4")}, {MediaType: MediaTypePDF}},
		Temperature: 0.2,
	})
	require.NoError(t, err)
	require.Len(t, m.params, 1)
	msg := m.params[0].Messages[0]
	require.Len(t, msg.Content, 3)
	require.NotNil(t, msg.Content[1].OfText)
	assert.Contains(t, msg.Content[1].OfText.Text, "--- INVENTION DESCRIPTION START ---\na mug\n")
	assert.NotNil(t, msg.Content[2].OfDocument)
}

func TestClassifyTransportError(t *testing.T) {
	assert.Equal(t, failureRateLimit, classifyTransportError(errors.New("status code: 429")))
	assert.Equal(t, failureServer, classifyTransportError(errors.New("status=502 bad gateway")))
	assert.Equal(t, failureClient, classifyTransportError(errors.New("status code: 404")))
	assert.Equal(t, failureTimeout, classifyTransportError(fmt.Errorf("wrap: %w", context.DeadlineExceeded)))
	assert.Equal(t, failureServer, classifyTransportError(errors.New("connection reset")))
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, "## Report", StripCodeFences("```markdown\n## Report\n```"))
	assert.Equal(t, "plain", StripCodeFences("  plain "))
}
