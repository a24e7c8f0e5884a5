// Package specdraft drafts a descriptive patent specification from structured
// disclosure fields with a single model call.
package specdraft

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/joelkehle/priorart-assistant/internal/llm"
	"github.com/joelkehle/priorart-assistant/internal/logging"
)

const (
	Temperature  = 0.5
	contextLabel = "USER PROVIDED CONTEXT"
)

var ErrMissingDescription = errors.New("missing required field: Detailed Description of the Invention")

const draftingPrompt = `You are an expert patent specification drafter.

Generate a complete, high-quality descriptive patent specification from the invention disclosure provided below. The result must be clear, technically detailed and a strong foundation from which claims could later be drafted. Follow standard patent drafting conventions.

If an example specification is included, analyse its tone, section structure, paragraph length and terminology and apply that style consistently.

**Required sections** (Markdown, ## for sections, ### for subsections):

## TITLE OF THE INVENTION:
## BACKGROUND OF THE INVENTION:
### Field of the Invention:
### Description of Related Art:
## SUMMARY OF THE INVENTION:
## DETAILED DESCRIPTION OF THE PREFERRED EMBODIMENT(S):
## ABSTRACT OF THE DISCLOSURE:

The Detailed Description is the core section. Build it primarily from the user's Detailed Description, supplemented by Advantages and Alternatives. Describe structure, components, materials, connections and operation; use placeholder reference numerals consistently; reference figures where helpful; capture every variation in broad language so it can support future claims. Keep the Abstract under 150 words. Use formal, objective language without marketing claims.

After the specification append:

---
**Constraint Checklist & Confidence Score:**
*   Constraint Checklist: one Yes/No line per required section, plus a short assessment of whether the description supports claims.
*   Confidence Score (1-5):
*   Key Assumptions or Areas Needing Clarification:

Begin the output directly with "## TITLE OF THE INVENTION:". No preamble.`

// Input mirrors the drafting form. DetailedDescription is required.
type Input struct {
	ProposedTitle          string `json:"proposed_title"`
	FieldOfInvention       string `json:"field_of_invention"`
	BackgroundProblem      string `json:"background_problem"`
	SummaryIdea            string `json:"summary_idea"`
	DetailedDescription    string `json:"detailed_description"`
	Advantages             string `json:"advantages"`
	AlternativeEmbodiments string `json:"alternative_embodiments"`
	ExampleSpecStyle       string `json:"example_spec_style"`
}

func (in Input) Validate() error {
	if strings.TrimSpace(in.DetailedDescription) == "" {
		return ErrMissingDescription
	}
	return nil
}

// BuildContext lays the fields out as labelled sections. Optional fields that
// were left blank are marked as not provided.
func BuildContext(in Input) string {
	var b strings.Builder
	b.WriteString("## User-Provided Invention Disclosure:\n\n")
	fields := []struct {
		label    string
		value    string
		required bool
	}{
		{"Proposed Title", in.ProposedTitle, false},
		{"Field of the Invention", in.FieldOfInvention, false},
		{"Background / Problem", in.BackgroundProblem, false},
		{"Summary of the Invention (Core Idea)", in.SummaryIdea, false},
		{"Detailed Description of the Invention", in.DetailedDescription, true},
		{"Advantages", in.Advantages, false},
		{"Alternative Embodiments & Variations", in.AlternativeEmbodiments, false},
	}
	for _, f := range fields {
		v := strings.TrimSpace(f.value)
		switch {
		case v != "":
			fmt.Fprintf(&b, "### %s:\n%s\n\n", f.label, v)
		case !f.required:
			fmt.Fprintf(&b, "### %s:\n(Not provided by user)\n\n", f.label)
		}
	}
	if style := strings.TrimSpace(in.ExampleSpecStyle); style != "" {
		fmt.Fprintf(&b, "---\n## Example Specification Style (To Emulate):\n\n%s\n\n", style)
	}
	b.WriteString("---\n*End of User-Provided Disclosure*\n")
	if strings.TrimSpace(in.ExampleSpecStyle) == "" {
		b.WriteString("\n*(No example specification style was provided by the user.)*\n")
	}
	return b.String()
}

type Drafter struct {
	gen    llm.Generator
	logger *zap.Logger
}

func NewDrafter(gen llm.Generator, logger *zap.Logger) *Drafter {
	return &Drafter{gen: gen, logger: logging.OrNop(logger)}
}

// Draft returns the specification markdown, or an "# Error" report.
func (d *Drafter) Draft(ctx context.Context, in Input) string {
	if err := in.Validate(); err != nil {
		return "# Error\n\n" + capitalize(err.Error()) + "."
	}
	text, err := d.gen.Generate(ctx, llm.Request{
		Purpose:      "draft",
		Prompt:       draftingPrompt,
		Context:      BuildContext(in),
		ContextLabel: contextLabel,
		Temperature:  Temperature,
	})
	if err != nil {
		d.logger.Warn("draft_failed", zap.Error(err))
		return fmt.Sprintf("# Error\n\nSpecification drafting failed: %v", err)
	}
	return llm.StripCodeFences(text)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
