// Package report renders analysis and project exports as Markdown, JSON,
// HTML and PDF.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/bryanwahyu/trustai-client/internal/domain/projects"
	"github.com/bryanwahyu/trustai-client/internal/domain/reports"
)

const dateLayout = "2006-01-02 15:04:05"

// Renderer implements reports.Renderer.
type Renderer struct {
	md goldmark.Markdown
}

var _ reports.Renderer = (*Renderer)(nil)

func New() *Renderer {
	return &Renderer{md: goldmark.New(goldmark.WithExtensions(extension.GFM))}
}

// Analysis renders a single analysis as Analysis_<id>.
func (g *Renderer) Analysis(r projects.AnalysisResult, f reports.Format, now time.Time) (reports.Report, error) {
	rep := reports.Report{Name: "Analysis_" + safeName(r.ID), Format: f}
	var err error
	switch f {
	case reports.FormatMarkdown:
		rep.Data = []byte(AnalysisMarkdown(r, now))
	case reports.FormatJSON:
		rep.Data, err = json.MarshalIndent(r, "", "  ")
	case reports.FormatHTML:
		rep.Data = g.HTML("Analysis Report", AnalysisMarkdown(r, now))
	case reports.FormatPDF:
		rep.Data, err = analysisPDF(r, now)
	default:
		return reports.Report{}, fmt.Errorf("%w: %q", reports.ErrUnsupportedFormat, f)
	}
	if err != nil {
		return reports.Report{}, fmt.Errorf("render analysis %s: %w", f, err)
	}
	return rep, nil
}

// Project renders a whole project with its history, documents and notes.
func (g *Renderer) Project(p projects.Project, f reports.Format, now time.Time) (reports.Report, error) {
	rep := reports.Report{Name: "Project_" + safeName(p.Name), Format: f}
	var err error
	switch f {
	case reports.FormatMarkdown:
		rep.Data = []byte(ProjectMarkdown(p, now))
	case reports.FormatJSON:
		rep.Data, err = json.MarshalIndent(p, "", "  ")
	case reports.FormatHTML:
		rep.Data = g.HTML(p.Name, ProjectMarkdown(p, now))
	case reports.FormatPDF:
		rep.Data, err = projectPDF(p, now)
	default:
		return reports.Report{}, fmt.Errorf("%w: %q", reports.ErrUnsupportedFormat, f)
	}
	if err != nil {
		return reports.Report{}, fmt.Errorf("render project %s: %w", f, err)
	}
	return rep, nil
}

// AnalysisMarkdown is the Markdown export layout.
func AnalysisMarkdown(r projects.AnalysisResult, now time.Time) string {
	return fmt.Sprintf("# Analysis Report\n\n**Date:** %s\n**Score:** %s/100\n\n## AI Response\n%s\n\n## Input\n%s",
		now.Format(dateLayout), score(r.TrustScore), r.AIResponse, r.Content)
}

// ProjectMarkdown summarises a project.
func ProjectMarkdown(p projects.Project, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", p.Name)
	if p.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", p.Description)
	}
	fmt.Fprintf(&b, "**Generated:** %s\n", now.Format(dateLayout))
	fmt.Fprintf(&b, "**Category:** %s\n", p.Category)
	fmt.Fprintf(&b, "**Trust Score:** %s/100 (%s)\n", score(p.TrustScore), p.Status())
	fmt.Fprintf(&b, "**Files:** %d\n", p.Files)

	if items := p.History.Items(); len(items) > 0 {
		b.WriteString("\n## Analysis History\n\n| Date | Type | Score | Status |\n|---|---|---|---|\n")
		for _, h := range items {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", h.Timestamp.Format(dateLayout), h.Type, score(h.TrustScore), h.Status)
		}
	}
	if docs := p.Documents.Items(); len(docs) > 0 {
		b.WriteString("\n## Documents\n\n")
		for _, d := range docs {
			fmt.Fprintf(&b, "- %s (%s, %s)\n", d.Name, d.Type, d.Size)
		}
	}
	if notes := p.Notes.Items(); len(notes) > 0 {
		b.WriteString("\n## Notes\n\n")
		for _, n := range notes {
			fmt.Fprintf(&b, "- %s: %s\n", n.CreatedAt.Format(dateLayout), n.Content)
		}
	}
	return b.String()
}

// HTML renders markdown into a standalone page. Markdown that fails to
// render is shown as escaped plain text instead.
func (g *Renderer) HTML(title, md string) []byte {
	var body bytes.Buffer
	if err := g.md.Convert([]byte(md), &body); err != nil {
		body.Reset()
		body.WriteString("<pre>" + html.EscapeString(md) + "</pre>")
	}
	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>")
	out.WriteString(html.EscapeString(title))
	out.WriteString("</title></head><body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body></html>\n")
	return out.Bytes()
}

// RenderMarkdown converts a single AI message to HTML, falling back to
// escaped text.
func (g *Renderer) RenderMarkdown(md string) string {
	var buf bytes.Buffer
	if err := g.md.Convert([]byte(md), &buf); err != nil {
		return "<pre>" + html.EscapeString(md) + "</pre>"
	}
	return buf.String()
}

func score(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.1f", v)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func safeName(s string) string {
	s = strings.Trim(unsafeChars.ReplaceAllString(strings.TrimSpace(s), "_"), "_")
	if s == "" {
		return "report"
	}
	return s
}

//
// ==== PDF ====
//

type pdfDoc struct {
	*fpdf.Fpdf
	tr func(string) string
}

func newPDF(title string) pdfDoc {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetCreator("TrustAI", true)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()
	return pdfDoc{Fpdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
}

func (d pdfDoc) heading(text string, size float64) {
	d.SetFont("Helvetica", "B", size)
	d.MultiCell(0, size*0.5, d.tr(text), "", "L", false)
	d.Ln(2)
}

func (d pdfDoc) field(label, value string) {
	d.SetFont("Helvetica", "B", 11)
	d.CellFormat(35, 6, d.tr(label), "", 0, "L", false, 0, "")
	d.SetFont("Helvetica", "", 11)
	d.MultiCell(0, 6, d.tr(value), "", "L", false)
}

func (d pdfDoc) paragraph(text string) {
	d.SetFont("Helvetica", "", 10)
	d.MultiCell(0, 5, d.tr(text), "", "L", false)
	d.Ln(3)
}

func (d pdfDoc) statusColor(s projects.Status) {
	switch s {
	case projects.StatusTrustworthy:
		d.SetTextColor(22, 163, 74)
	case projects.StatusRisky:
		d.SetTextColor(220, 38, 38)
	case projects.StatusNeutral:
		d.SetTextColor(202, 138, 4)
	default:
		d.SetTextColor(0, 0, 0)
	}
}

func (d pdfDoc) render() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func analysisPDF(r projects.AnalysisResult, now time.Time) ([]byte, error) {
	d := newPDF("Analysis Report")
	d.heading("Analysis Report", 20)
	d.field("Date:", now.Format(dateLayout))
	d.field("Score:", score(r.TrustScore)+"/100")
	d.statusColor(r.Status)
	d.field("Status:", string(r.Status))
	d.SetTextColor(0, 0, 0)
	d.field("Type:", string(r.Type))
	if r.FileName != "" {
		d.field("File:", r.FileName)
	}
	d.Ln(4)
	d.heading("AI Response", 14)
	d.paragraph(PlainText(r.AIResponse))
	d.heading("Input", 14)
	d.paragraph(r.Content)
	return d.render()
}

func projectPDF(p projects.Project, now time.Time) ([]byte, error) {
	d := newPDF(p.Name)
	d.heading(p.Name, 20)
	if p.Description != "" {
		d.paragraph(p.Description)
	}
	d.field("Generated:", now.Format(dateLayout))
	d.field("Category:", p.Category)
	d.statusColor(p.Status())
	d.field("Trust Score:", fmt.Sprintf("%s/100 (%s)", score(p.TrustScore), p.Status()))
	d.SetTextColor(0, 0, 0)
	d.field("Files:", fmt.Sprintf("%d", p.Files))

	if items := p.History.Items(); len(items) > 0 {
		d.Ln(4)
		d.heading("Analysis History", 14)
		d.SetFont("Helvetica", "B", 10)
		for _, h := range []struct {
			w float64
			s string
		}{{50, "Date"}, {30, "Type"}, {25, "Score"}, {0, "Status"}} {
			ln := 0
			if h.w == 0 {
				ln = 1
			}
			d.CellFormat(h.w, 7, h.s, "B", ln, "L", false, 0, "")
		}
		d.SetFont("Helvetica", "", 10)
		for _, h := range items {
			d.CellFormat(50, 6, h.Timestamp.Format(dateLayout), "", 0, "L", false, 0, "")
			d.CellFormat(30, 6, string(h.Type), "", 0, "L", false, 0, "")
			d.CellFormat(25, 6, score(h.TrustScore), "", 0, "L", false, 0, "")
			d.CellFormat(0, 6, string(h.Status), "", 1, "L", false, 0, "")
		}
	}
	if notes := p.Notes.Items(); len(notes) > 0 {
		d.Ln(4)
		d.heading("Notes", 14)
		for _, n := range notes {
			d.paragraph(n.CreatedAt.Format(dateLayout) + "  " + n.Content)
		}
	}
	return d.render()
}

var mdMarks = regexp.MustCompile("(?m)^#{1,6}\\s+|\\*\\*|__|`")

// PlainText strips the most common Markdown markers for the PDF body.
func PlainText(md string) string {
	return mdMarks.ReplaceAllString(md, "")
}
