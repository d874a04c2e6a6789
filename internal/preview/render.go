// Package preview renders entry content to sanitized HTML.
package preview

import (
	"bytes"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Renderer converts the inline markup produced by the editor toolbar into HTML.
// Raw HTML in the content is passed to the sanitizer, which keeps only the
// color spans the toolbar writes.
type Renderer struct {
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
}

func NewRenderer() *Renderer {
	markdown := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			&highlightExtension{},
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithUnsafe(),
		),
	)

	policy := bluemonday.UGCPolicy()
	policy.AllowElements("mark", "span")
	policy.AllowStyles("color").OnElements("span")
	policy.RequireNoFollowOnLinks(true)
	policy.AddTargetBlankToFullyQualifiedLinks(true)

	return &Renderer{markdown: markdown, policy: policy}
}

// Render converts content to sanitized HTML.
func (r *Renderer) Render(content string) (string, error) {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(content), &buf); err != nil {
		return "", fmt.Errorf("preview: render: %w", err)
	}
	return r.policy.Sanitize(buf.String()), nil
}
