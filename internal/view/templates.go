package view

import (
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/habilita/habilita/internal/shared"
	"github.com/habilita/habilita/web"
)

var templatePatterns = []string{
	"templates/layouts/*.html",
	"templates/partials/*.html",
	"templates/pages/*.html",
	"templates/pages/*/*.html",
}

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	User        string
	Data        any
}

// DefaultLocale is used by NewEngine for the number helpers.
var DefaultLocale = language.MustParse("es-CO")

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	return NewEngineWithLocale(DefaultLocale)
}

// NewEngineWithLocale parses templates and formats numbers for locale.
func NewEngineWithLocale(locale language.Tag) (*Engine, error) {
	printer := message.NewPrinter(locale)
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02/01/2006 15:04")
		},
		"formatNumber": func(v float64) string {
			return printer.Sprintf("%.2f", v)
		},
		"formatInt": func(v int) string {
			return printer.Sprintf("%d", v)
		},
		"formatPercent": func(v float64) string {
			return printer.Sprintf("%.1f", v) + "%"
		},
		"badgeClass": func(color string) string {
			if color == "" {
				color = "secondary"
			}
			return "badge badge-" + color
		},
		"active": func(current, prefix string) bool {
			return current == prefix || strings.HasPrefix(current, prefix+"/")
		},
		"join": strings.Join,
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, templatePatterns...)
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}

// Execute writes a named template to w without touching headers, so callers
// can buffer the page and choose the status afterwards.
func (e *Engine) Execute(w io.Writer, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	return e.templates.ExecuteTemplate(w, name, data)
}
