package conv

import (
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

var (
	extensions   = parser.CommonExtensions | parser.NoEmptyLineBeforeBlock
	htmlFlags    = html.CommonFlags | html.HrefTargetBlank
	tgPolicy     = bluemonday.NewPolicy()
	matrixPolicy = bluemonday.NewPolicy()
)

func init() {
	// Allowed tags https://core.telegram.org/bots/api#html-style
	tgPolicy.AllowElements("b", "strong", "i", "em", "u", "ins", "s", "strike", "del", "code", "pre", "blockquote")
	tgPolicy.AllowAttrs("href").OnElements("a")
	tgPolicy.AllowAttrs("class").OnElements("code")

	// Allowed tags https://spec.matrix.org/latest/client-server-api/#mroommessage-msgtypes
	matrixPolicy.AllowElements(
		"h1", "h2", "h3", "h4", "h5", "h6", "p", "br", "hr", "blockquote",
		"ul", "ol", "li", "b", "strong", "i", "em", "u", "s", "del", "code", "pre",
		"table", "thead", "tbody", "tr", "th", "td",
	)
	matrixPolicy.AllowAttrs("href").OnElements("a")
	matrixPolicy.AllowAttrs("class").OnElements("code")
	matrixPolicy.AllowAttrs("start").OnElements("ol")
}

func render(md []byte) []byte {
	p := parser.NewWithExtensions(extensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: htmlFlags})
	return markdown.Render(p.Parse(md), renderer)
}

func MarkdownToTelegramHTML(md []byte) string {
	return string(tgPolicy.SanitizeBytes(render(md)))
}

// MarkdownToMatrixHTML renders the formatted_body of an m.room.message.
func MarkdownToMatrixHTML(md []byte) string {
	return string(matrixPolicy.SanitizeBytes(render(md)))
}
