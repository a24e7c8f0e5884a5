package specdraft

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/joelkehle/priorart-assistant/internal/llm"
)

type stubGenerator struct {
	out  string
	err  error
	reqs []llm.Request
}

func (s *stubGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	s.reqs = append(s.reqs, req)
	return s.out, s.err
}

func (s *stubGenerator) ModelName() string { return "stub" }

func TestBuildContextMarksMissingFields(t *testing.T) {
	ctx := BuildContext(Input{ProposedTitle: "Self-Heating Mug", DetailedDescription: "The mug body (10)..."})
	assert.Contains(t, ctx, "### Proposed Title:\nSelf-Heating Mug\n")
	assert.Contains(t, ctx, "### Advantages:\n(Not provided by user)\n")
	assert.Contains(t, ctx, "### Detailed Description of the Invention:\nThe mug body (10)...")
	assert.Contains(t, ctx, "No example specification style was provided")
}

func TestBuildContextIncludesExampleStyle(t *testing.T) {
	ctx := BuildContext(Input{DetailedDescription: "d", ExampleSpecStyle: "In one embodiment..."})
	assert.Contains(t, ctx, "## Example Specification Style (To Emulate):\n\nIn one embodiment...")
	assert.NotContains(t, ctx, "No example specification style")
}

func TestDraftRequiresDetailedDescription(t *testing.T) {
	gen := &stubGenerator{}
	out := NewDrafter(gen, zaptest.NewLogger(t)).Draft(context.Background(), Input{ProposedTitle: "x"})
	assert.Equal(t, "# Error\n\nMissing required field: Detailed Description of the Invention.", out)
	assert.Empty(t, gen.reqs)
}

func TestDraftCallsModelOnce(t *testing.T) {
	gen := &stubGenerator{out: "```markdown\n## TITLE OF THE INVENTION:\nMug\n```"}
	out := NewDrafter(gen, zaptest.NewLogger(t)).Draft(context.Background(), Input{DetailedDescription: "d"})
	assert.Equal(t, "## TITLE OF THE INVENTION:\nMug", out)
	require.Len(t, gen.reqs, 1)
	assert.Equal(t, "draft", gen.reqs[0].Purpose)
	assert.Equal(t, "USER PROVIDED CONTEXT", gen.reqs[0].ContextLabel)
	assert.Equal(t, Temperature, gen.reqs[0].Temperature)
}

func TestDraftFailureIsErrorReport(t *testing.T) {
	gen := &stubGenerator{err: &llm.Failure{Purpose: "draft", Kind: llm.KindTransient, Attempts: 3, Err: errors.New("timeout")}}
	out := NewDrafter(gen, zaptest.NewLogger(t)).Draft(context.Background(), Input{DetailedDescription: "d"})
	assert.Equal(t, "# Error\n\nSpecification drafting failed: draft: transient failure after 3 attempt(s): timeout", out)
}
