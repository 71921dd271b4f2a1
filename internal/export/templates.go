package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

// SafeHTML marks a string as safe HTML for the template. The body is already
// sanitized before it reaches the export path.
func SafeHTML(s interface{}) template.HTML {
	switch v := s.(type) {
	case string:
		return template.HTML(v)
	case template.HTML:
		return v
	default:
		return template.HTML("")
	}
}

//go:embed templates/*.html
var templateFS embed.FS

var contentTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"safeHTML": SafeHTML,
		"formatDate": func(t interface{}, layout string) string {
			switch v := t.(type) {
			case time.Time:
				return v.Format(layout)
			case *time.Time:
				if v != nil {
					return v.Format(layout)
				}
			}
			return ""
		},
	}

	templateContent, err := templateFS.ReadFile("templates/content.html")
	if err != nil {
		contentTemplate = template.Must(template.New("content").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}
	contentTemplate = template.Must(template.New("content").Funcs(funcMap).Parse(string(templateContent)))
}

// RenderContentHTML renders the export page for a content item.
func RenderContentHTML(page Page) (string, error) {
	var buf bytes.Buffer
	if err := contentTemplate.Execute(&buf, page); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Topic}}</title>
</head>
<body>
  <h1>{{.Topic}}</h1>
  <div>{{.BodyHTML | safeHTML}}</div>
</body>
</html>`
