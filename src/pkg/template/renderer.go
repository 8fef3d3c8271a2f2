package template

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"

	"github.com/Masterminds/sprig/v3"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Renderer renders the embedded report templates.
type Renderer struct {
	templates *htmltemplate.Template
}

func NewRenderer() *Renderer {
	tmpl := htmltemplate.Must(htmltemplate.New("").
		Funcs(sprig.HtmlFuncMap()).
		ParseFS(templatesFS, "templates/*.tmpl"))
	return &Renderer{templates: tmpl}
}

// Render executes the named template with data.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
