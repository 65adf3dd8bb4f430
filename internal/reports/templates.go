package reports

import (
	"html/template"
	"sync"
)

// TemplateLoader parses the report page template once.
type TemplateLoader struct {
	once sync.Once
	page *template.Template
	err  error
}

// NewTemplateLoader creates a new template loader
func NewTemplateLoader() *TemplateLoader {
	return &TemplateLoader{}
}

// Page returns the parsed report page template.
func (t *TemplateLoader) Page() (*template.Template, error) {
	t.once.Do(func() {
		t.page, t.err = template.New("report").Parse(pageTemplate)
	})
	return t.page, t.err
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 1100px;
            margin: 0 auto;
            padding: 20px;
            background-color: #f8f9fa;
        }
        .header {
            background: linear-gradient(135deg, #f7971e 0%, #c0392b 100%);
            color: white;
            padding: 24px;
            border-radius: 10px;
            margin-bottom: 24px;
        }
        .sample {
            background: #fff3cd;
            border: 1px solid #ffeeba;
            padding: 10px 16px;
            border-radius: 6px;
            margin-bottom: 16px;
        }
        table { border-collapse: collapse; margin: 12px 0; }
        th, td { border: 1px solid #ddd; padding: 6px 12px; text-align: right; }
        th { background: #eee; }
        footer { color: #888; font-size: 0.85em; margin-top: 32px; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.Title}}</h1>
        <div>Generated {{.GeneratedAt}}</div>
    </div>
    {{if .Synthetic}}<div class="sample">SAMPLE DATA: live NOAA feeds were unavailable, values below are synthetic.</div>{{end}}
    {{.Content}}
    <footer>solarimager {{.Version}}</footer>
</body>
</html>
`
