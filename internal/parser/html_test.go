package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripHTMLEmpty(t *testing.T) {
	text, err := StripHTML("")
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestStripHTMLRemovesNonContent(t *testing.T) {
	html := `<html><head><title>t</title><style>body{}</style></head>
<body><script>evil()</script><p>kept</p></body></html>`

	text, err := StripHTML(html)
	require.NoError(t, err)
	assert.Equal(t, "kept", text)
}

func TestStripHTMLBlockBoundaries(t *testing.T) {
	html := `<div>one</div><div>two</div><ul><li>three</li><li>four</li></ul>`

	text, err := StripHTML(html)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\nfour", text)
}

func TestStripHTMLCollapsesWhitespace(t *testing.T) {
	html := "<p>spaced​   out\ttext</p>"

	text, err := StripHTML(html)
	require.NoError(t, err)
	assert.Equal(t, "spaced out text", text)
}
