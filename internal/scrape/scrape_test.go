package scrape

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultsHTML = `<html><head><title> heated mug - Google Patents </title></head>
<body><header>Sign in</header>
<div id="resultsContainer">
  <search-result-item><h3> Self-heating   mug </h3><span class="style-scope search-result-item">US1234A1</span></search-result-item>
  <search-result-item><h3>Warm cup</h3></search-result-item>
  <script>var x = 1;</script>
</div></body></html>`

func TestParseReadsResultsContainer(t *testing.T) {
	p, err := Parse("https://patents.google.com/?q=heated+mug", resultsHTML)
	require.NoError(t, err)
	assert.Equal(t, "heated mug - Google Patents", p.Title)
	require.Len(t, p.Items, 2)
	assert.Equal(t, Item{Title: "Self-heating mug", ID: "US1234A1"}, p.Items[0])
	assert.Equal(t, "Self-heating mug US1234A1 Warm cup", p.Text)
	assert.NotContains(t, p.Text, "Sign in")
}

func TestParseFallsBackToBody(t *testing.T) {
	p, err := Parse("u", "<html><body><p>"+strings.Repeat("é", SampleChars+10)+"</p></body></html>")
	require.NoError(t, err)
	assert.Equal(t, "No title found", p.Title)
	assert.Equal(t, SampleChars+3, len([]rune(p.Text)))
	assert.True(t, strings.HasSuffix(p.Text, "..."))
}

func TestFormat(t *testing.T) {
	out := Format(Page{URL: "u", Title: "t", Text: "body", Items: []Item{{ID: "US1", Title: "Mug"}}})
	assert.Contains(t, out, "URL: u\nPage Title: t\n")
	assert.Contains(t, out, "  1. US1 Mug\n")
	assert.Contains(t, out, "Sample Text Content (first 2000 chars):\nbody\n")
}

func TestSearchURL(t *testing.T) {
	assert.Equal(t, "https://patents.google.com/?q=heated+mug", SearchURL("heated mug"))
}
