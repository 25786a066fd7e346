// Package renderer renders backtest reports as markdown.
package renderer

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"text/template"

	"github.com/etnz/backtest"
)

//go:embed templates/*.md
var templates embed.FS

// RenderSummary renders a portfolio summary to a markdown string.
func RenderSummary(s backtest.Summary) string {
	partials := map[string]string{
		"summary_title":       "summary_title.md",
		"summary_performance": "summary_performance.md",
		"summary_tickers":     "summary_tickers.md",
	}
	return renderTemplate("summary", "summary.md", partials, s)
}

// RenderSummaries renders several summaries, one after the other.
func RenderSummaries(summaries []backtest.Summary) string {
	var b strings.Builder
	for i, s := range summaries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(RenderSummary(s))
	}
	return b.String()
}

// RenderTaxReport renders a yearly tax report to a markdown string.
func RenderTaxReport(r backtest.TaxReport) string {
	partials := map[string]string{
		"tax_positions": "tax_positions.md",
	}
	return renderTemplate("tax", "tax.md", partials, r)
}

// renderTemplate is a generic utility to render a main template that depends on several partials.
func renderTemplate(templateName, mainFile string, partials map[string]string, data any) string {
	mainContent, err := fs.ReadFile(templates, "templates/"+mainFile)
	if err != nil {
		return fmt.Sprintf("error reading main template %q: %v", mainFile, err)
	}

	tmpl, err := template.New(templateName).Parse(string(mainContent))
	if err != nil {
		return fmt.Sprintf("error parsing main template %q: %v", mainFile, err)
	}

	for name, file := range partials {
		var content []byte
		// An empty file name is a valid case, resulting in an empty template.
		if file != "" {
			content, err = fs.ReadFile(templates, "templates/"+file)
			if err != nil {
				return fmt.Sprintf("error reading partial template %q: %v", file, err)
			}
		}
		if _, err := tmpl.New(name).Parse(string(content)); err != nil {
			return fmt.Sprintf("error parsing partial template %q for %q: %v", file, name, err)
		}
	}

	var b strings.Builder
	if err := tmpl.ExecuteTemplate(&b, templateName, data); err != nil {
		return fmt.Sprintf("error executing template %q: %v", templateName, err)
	}
	return b.String()
}
