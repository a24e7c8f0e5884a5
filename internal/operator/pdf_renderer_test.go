package operator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPrintLayoutHooksBreaksBeforeDetailedAnalysis(t *testing.T) {
	out := applyPrintLayoutHooks("<h2>Relevance Ranking</h2><p>x</p><h2>Detailed Analysis</h2>")
	assert.Contains(t, out, `<h2 data-page-break-before="true">Detailed Analysis</h2>`)
	assert.Contains(t, out, "<h2>Relevance Ranking</h2>")
}

func TestApplyPrintLayoutHooksNoopWithoutMarkers(t *testing.T) {
	in := "<h2>Keyword Strategy</h2><p><strong>Concept 1:</strong> mug</p>"
	assert.Equal(t, in, applyPrintLayoutHooks(in))
}

func TestRenderHTMLStripsFenceAndMarksNotices(t *testing.T) {
	out, err := RenderHTML("```markdown\n# Report\n\n**Ranking failed:** quota\n\n| a | b |\n|---|---|\n| 1 | 2 |\n```")
	require.NoError(t, err)
	assert.Contains(t, out, "<h1>Report</h1>")
	assert.Contains(t, out, `<p class="report-notice"><strong>Ranking failed:</strong> quota</p>`)
	assert.Contains(t, out, "<table>")
	assert.False(t, strings.Contains(out, "<code"))
}

func TestBuildHTMLUsesBuiltInStyle(t *testing.T) {
	r := NewChromiumPDFRenderer("")
	doc, err := r.buildHTML("Prior Art <Report>", "# Hi")
	require.NoError(t, err)
	assert.Contains(t, doc, "<title>Prior Art &lt;Report&gt;</title>")
	assert.Contains(t, doc, ".report-notice")
	assert.Contains(t, doc, "<h1>Hi</h1>")
}
