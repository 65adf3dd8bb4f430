package reports

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"solarimager/internal/config"
)

// HTMLBuilder turns markdown reports into standalone HTML pages.
type HTMLBuilder struct {
	templateLoader *TemplateLoader
	goldmark       goldmark.Markdown
}

// NewHTMLBuilder creates an HTML builder
func NewHTMLBuilder() *HTMLBuilder {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
		),
	)

	return &HTMLBuilder{
		templateLoader: NewTemplateLoader(),
		goldmark:       md,
	}
}

// TemplateData is what the page template sees.
type TemplateData struct {
	Title       string
	GeneratedAt string
	Version     string
	Synthetic   bool
	Content     template.HTML
}

// ConvertMarkdownToHTML converts markdown to an HTML fragment.
func (h *HTMLBuilder) ConvertMarkdownToHTML(markdownContent string) (string, error) {
	var buf bytes.Buffer
	if err := h.goldmark.Convert([]byte(markdownContent), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}
	return buf.String(), nil
}

// BuildPage renders r as a complete HTML document.
func (h *HTMLBuilder) BuildPage(r *Report) (string, error) {
	fragment, err := h.ConvertMarkdownToHTML(r.Markdown)
	if err != nil {
		return "", err
	}

	tmpl, err := h.templateLoader.Page()
	if err != nil {
		return "", fmt.Errorf("failed to parse page template: %w", err)
	}

	data := TemplateData{
		Title:       r.Title,
		GeneratedAt: r.GeneratedAt.UTC().Format(time.RFC1123),
		Version:     config.GetVersion(),
		Synthetic:   r.Synthetic,
		Content:     template.HTML(fragment),
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute page template: %w", err)
	}
	return buf.String(), nil
}
