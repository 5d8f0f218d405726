package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bryanwahyu/trustai-client/internal/domain/projects"
	"github.com/bryanwahyu/trustai-client/internal/domain/reports"
)

var now = time.Date(2025, 3, 1, 14, 30, 0, 0, time.UTC)

func sample() projects.AnalysisResult {
	return projects.AnalysisResult{
		ID:         "1740839400000",
		Content:    "The sky is blue.",
		AIResponse: "## Verdict\n**Trustworthy**: widely observed.",
		TrustScore: 92,
		Status:     projects.StatusTrustworthy,
		Timestamp:  now,
		Type:       projects.ContentText,
	}
}

func TestAnalysisMarkdown_Layout(t *testing.T) {
	got := AnalysisMarkdown(sample(), now)
	want := "# Analysis Report\n\n**Date:** 2025-03-01 14:30:00\n**Score:** 92/100\n\n## AI Response\n" +
		"## Verdict\n**Trustworthy**: widely observed.\n\n## Input\nThe sky is blue."
	if got != want {
		t.Fatalf("markdown mismatch:\n%s\n---\n%s", got, want)
	}
}

func TestAnalysis_Formats(t *testing.T) {
	g := New()
	tests := []struct {
		format reports.Format
		check  func(t *testing.T, data []byte)
	}{
		{reports.FormatMarkdown, func(t *testing.T, data []byte) {
			if !bytes.HasPrefix(data, []byte("# Analysis Report")) {
				t.Fatalf("markdown: %q", data)
			}
		}},
		{reports.FormatJSON, func(t *testing.T, data []byte) {
			var r projects.AnalysisResult
			if err := json.Unmarshal(data, &r); err != nil {
				t.Fatal(err)
			}
			if r.TrustScore != 92 || r.Content != "The sky is blue." {
				t.Fatalf("json: %+v", r)
			}
		}},
		{reports.FormatHTML, func(t *testing.T, data []byte) {
			s := string(data)
			if !strings.Contains(s, "<h1>Analysis Report</h1>") || !strings.Contains(s, "<strong>Trustworthy</strong>") {
				t.Fatalf("html: %s", s)
			}
		}},
		{reports.FormatPDF, func(t *testing.T, data []byte) {
			if !bytes.HasPrefix(data, []byte("%PDF-")) {
				t.Fatalf("pdf header missing: %q", data[:min(len(data), 16)])
			}
		}},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			rep, err := g.Analysis(sample(), tt.format, now)
			if err != nil {
				t.Fatal(err)
			}
			if rep.Filename() != "Analysis_1740839400000"+tt.format.Extension() {
				t.Fatalf("filename = %q", rep.Filename())
			}
			tt.check(t, rep.Data)
		})
	}

	if _, err := g.Analysis(sample(), reports.Format("docx"), now); !errors.Is(err, reports.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestProject_Report(t *testing.T) {
	p := projects.Project{
		ID:         "p1",
		Name:       "Q1 / Claims",
		Category:   "General",
		TrustScore: 65,
		Files:      1,
		History:    projects.Of(sample()),
		Notes:      projects.Of(projects.Note{ID: "n1", Content: "check sources", CreatedAt: now}),
	}
	g := New()

	md, err := g.Project(p, reports.FormatMarkdown, now)
	if err != nil {
		t.Fatal(err)
	}
	s := string(md.Data)
	for _, want := range []string{"# Q1 / Claims", "**Trust Score:** 65/100 (Neutral)", "## Analysis History", "check sources"} {
		if !strings.Contains(s, want) {
			t.Fatalf("project markdown missing %q:\n%s", want, s)
		}
	}
	if md.Name != "Project_Q1_Claims" {
		t.Fatalf("name = %q", md.Name)
	}

	pdf, err := g.Project(p, reports.FormatPDF, now)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(pdf.Data, []byte("%PDF-")) {
		t.Fatal("project pdf header missing")
	}
}

func TestRenderMarkdown(t *testing.T) {
	got := New().RenderMarkdown("**bold** and `code`")
	if !strings.Contains(got, "<strong>bold</strong>") || !strings.Contains(got, "<code>code</code>") {
		t.Fatalf("got %q", got)
	}
}

func TestPlainText(t *testing.T) {
	if got := PlainText("## Title\n**bold** `x`"); got != "Title\nbold x" {
		t.Fatalf("got %q", got)
	}
}
