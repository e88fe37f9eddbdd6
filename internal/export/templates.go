package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"

	"insightstream/api/internal/reconcile"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	content, err := templateFS.ReadFile("templates/report.html")
	if err != nil {
		panic("export: missing embedded report template: " + err.Error())
	}
	reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(string(content)))
}

// TemplateData holds data for report rendering.
type TemplateData struct {
	CaseID       string
	CustomerName string
	Pipeline     string
	Status       string
	GeneratedAt  time.Time
	Metrics      reconcile.Metrics
	Sections     []TemplateSection
}

// EnhancementPercent is the enhancement rate scaled for display.
func (d TemplateData) EnhancementPercent() float64 {
	return d.Metrics.EnhancementRate * 100
}

// TemplateSection is one section of the rendered report.
type TemplateSection struct {
	Title    string
	Findings []TemplateFinding
}

// TemplateFinding is one finding row with its review status.
type TemplateFinding struct {
	Text      string
	Status    string
	Relevance string
	Comment   string
	Citations []string
}

// RenderReportHTML renders the report template with provided data.
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
