package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTML_ContentRegionPriority(t *testing.T) {
	testCases := []struct {
		name         string
		html         string
		expectedText string
	}{
		{
			name: "main preferred over article and body",
			html: `<html><body>
				<article>article text</article>
				<main>main text</main>
				<p>body text</p>
			</body></html>`,
			expectedText: "main text",
		},
		{
			name: "article preferred when no main",
			html: `<html><body>
				<div class="content">div text</div>
				<article>article text</article>
			</body></html>`,
			expectedText: "article text",
		},
		{
			name: "content class div when no semantic elements",
			html: `<html><body>
				<div class="sidebar">sidebar</div>
				<div class="main-content">policy text</div>
			</body></html>`,
			expectedText: "policy text",
		},
		{
			name:         "body as fallback",
			html:         `<html><body><p>fallback text</p></body></html>`,
			expectedText: "fallback text",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			text, _, err := HTML([]byte(tc.html))
			require.NoError(t, err)
			assert.Equal(t, tc.expectedText, text)
		})
	}
}

func TestHTML_StripsChrome(t *testing.T) {
	page := `<html><body><main>
		<script>var x = 1;</script>
		<style>.a { color: red }</style>
		<nav>navigation</nav>
		<header>page header</header>
		<p>Student visa requires X.</p>
		<footer>page footer</footer>
		<aside>related links</aside>
	</main></body></html>`

	text, _, err := HTML([]byte(page))
	require.NoError(t, err)

	assert.Equal(t, "Student visa requires X.", text)
}

func TestHTML_ParagraphBoundaries(t *testing.T) {
	page := `<html><body><main>
		<h1>Visa requirements</h1>
		<p>First paragraph.</p>
		<p>Second paragraph.</p>
		<div><div><div>nested block</div></div></div>
	</main></body></html>`

	text, _, err := HTML([]byte(page))
	require.NoError(t, err)

	// Sibling blocks are newline separated, never glued together, and
	// deep nesting does not produce runs of blank lines beyond one.
	assert.Contains(t, text, "Visa requirements")
	assert.Contains(t, text, "First paragraph.")
	assert.NotContains(t, text, "paragraph.Second")
	assert.NotContains(t, text, "\n\n\n")
}

func TestHTML_Metadata(t *testing.T) {
	page := `<html><head>
		<title> UK Student Visa </title>
		<meta name="description" content="Official guidance">
		<meta name="date" content="2026-01-01">
		<meta property="article:modified_time" content="2026-02-03T10:00:00Z">
	</head><body><main>text</main></body></html>`

	_, meta, err := HTML([]byte(page))
	require.NoError(t, err)

	assert.Equal(t, "UK Student Visa", meta[MetaTitle])
	assert.Equal(t, "Official guidance", meta[MetaDescription])

	// article:modified_time outranks the plain date tag.
	assert.Equal(t, "2026-02-03T10:00:00Z", meta[MetaDate])
}

func TestHTML_EmptyDocument(t *testing.T) {
	text, meta, err := HTML([]byte(""))
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.NotContains(t, meta, MetaTitle)
}

func TestPDFFile_MissingFile(t *testing.T) {
	_, _, err := PDFFile("testdata/does-not-exist.pdf")
	require.Error(t, err)
}
