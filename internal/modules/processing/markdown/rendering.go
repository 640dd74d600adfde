// Package markdown renders story documents to HTML and exportable Markdown.
package markdown

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/inkwell-space/core/internal/pkg/document"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

var markdownEngine = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Typographer,
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithHardWraps(),
		htmlrenderer.WithXHTML(),
	),
)

var (
	imageTagRegex        = regexp.MustCompile(`(?is)<img\s+[^>]*>`)
	imageAttrRegex       = regexp.MustCompile(`([a-zA-Z:_-]+)\s*=\s*"([^"]*)"`)
	figureParagraphRegex = regexp.MustCompile(`(?is)<p>\s*(<figure>[\s\S]*?</figure>)\s*</p>`)
)

// RenderHTML converts a document to HTML. Raw HTML inside text nodes is
// escaped by the Markdown step and never passed through.
func RenderHTML(doc document.Node) (string, error) {
	return RenderMarkdown(document.ToMarkdown(doc))
}

// RenderMarkdown converts Markdown source to HTML.
func RenderMarkdown(source string) (string, error) {
	text := strings.TrimSpace(source)
	if text == "" {
		return "", nil
	}

	var out bytes.Buffer
	if err := markdownEngine.Convert([]byte(text), &out); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return rewriteImages(out.String()), nil
}

// rewriteImages lazy-loads images and turns titled images into figures.
func rewriteImages(html string) string {
	processed := imageTagRegex.ReplaceAllStringFunc(html, func(tag string) string {
		attrs := parseImageAttrs(tag)
		src := strings.TrimSpace(attrs["src"])
		if src == "" {
			return tag
		}

		img := `<img src="` + src + `" alt="` + attrs["alt"] + `" loading="lazy"/>`
		if caption := strings.TrimSpace(attrs["title"]); caption != "" {
			return `<figure>` + img + `<figcaption>` + caption + `</figcaption></figure>`
		}
		return img
	})
	return figureParagraphRegex.ReplaceAllString(processed, "$1")
}

// parseImageAttrs reads attributes from a rendered img tag. Values arrive
// already HTML-escaped.
func parseImageAttrs(tag string) map[string]string {
	attrs := make(map[string]string)
	for _, item := range imageAttrRegex.FindAllStringSubmatch(tag, -1) {
		key := strings.ToLower(strings.TrimSpace(item[1]))
		if key != "" {
			attrs[key] = item[2]
		}
	}
	return attrs
}
