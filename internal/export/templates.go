package export

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var itemTemplate = template.Must(template.New("item").Funcs(template.FuncMap{
	"formatDate": func(t time.Time) string {
		return t.Format("Jan 2, 2006")
	},
	"px": func(v float64) string {
		return fmt.Sprintf("%.0fpx", v)
	},
}).Parse(itemHTML))

// TemplateData holds data for item template rendering
type TemplateData struct {
	Title      string
	PageURL    string
	GroupLabel string
	SavedAt    time.Time
	Highlights []TemplateHighlight
	Notes      []TemplateNote
	Drawings   []TemplateDrawing
}

type TemplateHighlight struct {
	Text string
}

type TemplateNote struct {
	Content string
	Left    float64
	Top     float64
	Placed  bool
}

type TemplateDrawing struct {
	BlobRef string
	Width   float64
	Height  float64
}

// RenderItemHTML renders the item template with provided data
func RenderItemHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := itemTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const itemHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Georgia, serif; line-height: 1.6; max-width: 760px; margin: 2rem auto; color: #222; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .highlight { background: #fff3a8; padding: 0.5rem 0.75rem; margin: 0.75rem 0; border-left: 3px solid #e0b400; }
    .note { background: #f5f5f5; padding: 0.75rem; margin: 0.75rem 0; border-left: 3px solid #333; white-space: pre-wrap; }
    .pos { color: #999; font-size: 0.8em; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <div class="meta"><a href="{{.PageURL}}">{{.PageURL}}</a>{{if .GroupLabel}} | {{.GroupLabel}}{{end}} | saved {{formatDate .SavedAt}}</div>
  {{if .Highlights}}
  <h2>Highlights</h2>
  {{range .Highlights}}<div class="highlight">{{.Text}}</div>
  {{end}}{{end}}
  {{if .Notes}}
  <h2>Notes</h2>
  {{range .Notes}}<div class="note">{{.Content}}{{if .Placed}} <span class="pos">at {{px .Left}}, {{px .Top}}</span>{{end}}</div>
  {{end}}{{end}}
  {{if .Drawings}}
  <h2>Drawings</h2>
  <ul>{{range .Drawings}}<li>{{.BlobRef}}{{if .Width}} ({{px .Width}} x {{px .Height}}){{end}}</li>{{end}}</ul>
  {{end}}
</body>
</html>`
