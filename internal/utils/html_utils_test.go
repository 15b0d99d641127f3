package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainTextExcerpt(t *testing.T) {
	assert.Equal(t, "", PlainTextExcerpt("", 10))
	assert.Equal(t, "Hello world", PlainTextExcerpt("<p>Hello\n  <b>world</b></p>", 0))
	assert.Equal(t, "Hello…", PlainTextExcerpt("<p>Hello world</p>", 5))
}

func TestRenderMarkdown_Sanitizes(t *testing.T) {
	out := string(RenderMarkdown("**bold** <script>alert(1)</script>"))
	assert.Contains(t, out, "<strong>bold</strong>")
	assert.NotContains(t, out, "<script>")
}

func TestMarkdownExcerpt(t *testing.T) {
	assert.Equal(t, "Title and some text", MarkdownExcerpt("# Title\n\nand *some* text", 100))
}
