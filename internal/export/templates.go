package export

import (
	"bytes"
	"html/template"
	"time"
)

var documentTemplate = template.Must(template.New("document").Parse(documentTemplateText))

// TemplateData holds data for document template rendering
type TemplateData struct {
	Title     string
	Author    string
	UpdatedAt time.Time
	TreeHTML  template.HTML
	GraphHTML template.HTML
}

// RenderDocumentHTML renders the document template with provided data
func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const documentTemplateText = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    ul.tree { list-style: none; padding-left: 1.25rem; }
    ul.tree > li { margin: 0.15rem 0; }
    .hub { font-weight: bold; }
    .variant { color: #555; }
    .entity { background: #eef; border-radius: 3px; padding: 0 0.3rem; font-size: 0.85em; margin-left: 0.4rem; }
    .missing { color: #a33; font-style: italic; }
    table.graph { border-collapse: collapse; margin-top: 1rem; }
    table.graph th, table.graph td { border: 1px solid #ccc; padding: 0.25rem 0.6rem; text-align: left; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta">{{.Author}}{{if not .UpdatedAt.IsZero}} | {{.UpdatedAt.Format "Jan 2, 2006"}}{{end}}</div>
  {{.TreeHTML}}
  {{if .GraphHTML}}
  <h2>Data objects</h2>
  {{.GraphHTML}}
  {{end}}
</body>
</html>`
