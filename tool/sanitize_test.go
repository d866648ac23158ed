package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainText(t *testing.T) {
	assert.Equal(t, "", PlainText("   "))
	assert.Equal(t, "bold text", PlainText("<b>bold</b> text"))
	assert.Equal(t, "Tom's & Jerry's", PlainText("Tom's &amp; Jerry's"))
	assert.Equal(t, "", PlainText("<script>alert(1)</script>"))
}

func TestSanitizeRichText(t *testing.T) {
	out := SanitizeRichText(`<h1>Plan</h1><p onclick="x()">Go <a href="javascript:alert(1)">now</a></p><script>bad()</script>`)
	assert.Contains(t, out, "<h1>Plan</h1>")
	assert.NotContains(t, out, "onclick")
	assert.NotContains(t, out, "javascript:")
	assert.NotContains(t, out, "<script>")

	link := SanitizeRichText(`<a href="https://example.com">site</a>`)
	assert.Contains(t, link, `target="_blank"`)
}
