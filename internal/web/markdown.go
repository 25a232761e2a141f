package web

import (
	"html/template"

	"github.com/russross/blackfriday/v2"
)

const htmlFlags = blackfriday.CommonHTMLFlags | blackfriday.SkipHTML | blackfriday.Safelink

// RenderMarkdown converts model output to HTML. Raw HTML in the input is dropped
// and only safe link protocols are rendered as links.
func RenderMarkdown(md string) template.HTML {
	renderer := blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{Flags: htmlFlags})
	out := blackfriday.Run([]byte(md),
		blackfriday.WithExtensions(blackfriday.CommonExtensions),
		blackfriday.WithRenderer(renderer),
	)
	return template.HTML(out) // #nosec G203 - raw html skipped by the renderer
}
