package export

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/habilita/habilita/internal/indicators"
)

// DashboardPayload is the data printed in the dashboard PDF.
type DashboardPayload struct {
	Title       string
	Filters     string
	GeneratedAt time.Time
	Summary     indicators.Summary
	Results     []indicators.DetailedResult
	Charts      []template.HTML
}

// PDFExporter renders the dashboard through Gotenberg's Chromium route.
type PDFExporter struct {
	Endpoint string
	Client   *resty.Client
}

// NewPDFExporter returns nil when no endpoint is configured so callers can
// hide the PDF action.
func NewPDFExporter(endpoint string, timeout time.Duration) *PDFExporter {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PDFExporter{Endpoint: endpoint, Client: resty.New().SetTimeout(timeout).SetRetryCount(0)}
}

// RenderDashboard sends the HTML document to Gotenberg and returns the PDF.
func (p *PDFExporter) RenderDashboard(ctx context.Context, payload DashboardPayload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("pdf exporter not initialised")
	}
	endpoint := strings.TrimRight(p.Endpoint, "/")
	if endpoint == "" {
		return nil, fmt.Errorf("gotenberg endpoint required")
	}
	client := p.Client
	if client == nil {
		client = resty.New().SetRetryCount(0)
	}

	var html bytes.Buffer
	if err := dashboardTemplate.Execute(&html, payload); err != nil {
		return nil, fmt.Errorf("render dashboard html: %w", err)
	}

	resp, err := client.R().
		SetContext(ctx).
		SetMultipartField("files", "index.html", "text/html", bytes.NewReader(html.Bytes())).
		SetMultipartFormData(map[string]string{"waitDelay": "500ms", "printBackground": "true"}).
		Post(endpoint + "/forms/chromium/convert/html")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		body := resp.Body()
		if len(body) > 4<<10 {
			body = body[:4<<10]
		}
		return nil, fmt.Errorf("gotenberg response %d: %s", resp.StatusCode(), string(body))
	}
	return resp.Body(), nil
}

var dashboardTemplate = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"value": func(r indicators.DetailedResult) string {
		v, ok := r.CalculatedValue.Float64()
		if !ok {
			return "-"
		}
		return indicators.FormatValue(v, r.MeasurementUnit)
	},
	"target": func(r indicators.DetailedResult) string {
		v, ok := r.Target.Float64()
		if !ok {
			return "-"
		}
		return indicators.FormatValue(v, r.MeasurementUnit)
	},
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02 15:04")
	},
}).Parse(`<!doctype html>
<html lang="es"><head><meta charset="utf-8"><title>{{.Title}}</title>
<style>
body{font-family:sans-serif;margin:24px;color:#0f172a}
h1{font-size:20px;margin-bottom:4px}
.meta{color:#475569;font-size:12px;margin-bottom:16px}
.cards{display:flex;gap:12px;margin-bottom:16px}
.card{border:1px solid #cbd5e1;border-radius:6px;padding:8px 12px;min-width:110px}
.card strong{display:block;font-size:18px}
table{width:100%;border-collapse:collapse;margin-bottom:16px;font-size:11px}
th,td{border:1px solid #ddd;padding:4px 6px;text-align:left}
th{background:#f1f5f9}
td.num{text-align:right}
.ok{color:#16a34a}.bad{color:#dc2626}
.chart{margin-bottom:16px;page-break-inside:avoid}
</style></head><body>
<h1>{{.Title}}</h1>
<div class="meta">{{with .Filters}}{{.}} · {{end}}Generado {{date .GeneratedAt}}</div>
<div class="cards">
<div class="card">Resultados<strong>{{.Summary.Total}}</strong></div>
<div class="card">Cumplen<strong class="ok">{{.Summary.Compliant}}</strong></div>
<div class="card">No cumplen<strong class="bad">{{.Summary.NonCompliant}}</strong></div>
<div class="card">Sin datos<strong>{{.Summary.Undetermined}}</strong></div>
<div class="card">% Cumplimiento<strong>{{.Summary.Rate}}%</strong></div>
</div>
{{range .Charts}}<div class="chart">{{.}}</div>{{end}}
{{if .Summary.ByHeadquarters}}<h2>Cumplimiento por sede</h2>
<table><thead><tr><th>Sede</th><th>Resultados</th><th>Cumplen</th><th>No cumplen</th><th>%</th></tr></thead><tbody>
{{range .Summary.ByHeadquarters}}<tr><td>{{.Name}}</td><td class="num">{{.Total}}</td><td class="num">{{.Compliant}}</td><td class="num">{{.NonCompliant}}</td><td class="num">{{.Rate}}</td></tr>
{{end}}</tbody></table>{{end}}
{{if .Results}}<h2>Resultados</h2>
<table><thead><tr><th>Indicador</th><th>Sede</th><th>Periodo</th><th>Valor</th><th>Meta</th><th>Cumplimiento</th></tr></thead><tbody>
{{range .Results}}<tr><td>{{.IndicatorName}}</td><td>{{.HeadquartersName}}</td><td>{{.PeriodLabel}}</td><td class="num">{{value .}}</td><td class="num">{{target .}}</td><td class="{{if .Compliant}}ok{{else}}bad{{end}}">{{.Compliance.Label}}</td></tr>
{{end}}</tbody></table>{{end}}
</body></html>`))
