package export

import (
	"bytes"
	"html/template"
)

// TemplateData holds data for page template rendering
type TemplateData struct {
	Title       string
	ContentHTML template.HTML
}

var pageTemplate = template.Must(template.New("page").Parse(pageHTML))

// RenderPage wraps sanitized artifact content in a printable HTML page.
// The content is already sanitized upstream, so it is injected as-is;
// the title goes through normal template escaping.
func RenderPage(title, content string) (string, error) {
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, TemplateData{
		Title:       title,
		ContentHTML: template.HTML(content),
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

const pageHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Calibri, Arial, sans-serif; line-height: 1.5; max-width: 800px; margin: 2rem auto; color: #1a1a1a; }
    h1, h2, h3, h4, h5, h6 { line-height: 1.25; margin: 1.2em 0 0.5em; }
    h1 { font-size: 1.6em; }
    h2 { font-size: 1.35em; }
    h3 { font-size: 1.15em; }
    p { margin: 0.6em 0; }
    blockquote { border-left: 3px solid #ccc; margin: 0.8em 0; padding: 0.1em 1em; color: #444; }
    pre { background: #f2f2f2; padding: 0.8em; overflow-x: auto; border-radius: 4px; }
    code { font-family: Consolas, monospace; font-size: 0.92em; }
    table { border-collapse: collapse; margin: 1em 0; width: 100%; }
    th, td { border: 1px solid #999; padding: 0.35em 0.6em; text-align: left; }
    th { background: #e8e8e8; }
    hr { border: none; border-top: 1px solid #ccc; margin: 1.5em 0; }
    a { color: #0563c1; }
    img { max-width: 100%; }
  </style>
</head>
<body>
{{.ContentHTML}}
</body>
</html>`
