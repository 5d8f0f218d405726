package reports

import (
	"errors"
	"strings"
)

// Format of an exported report.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
)

var ErrUnsupportedFormat = errors.New("unsupported report format")

// ParseFormat accepts the format names and common aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pdf":
		return FormatPDF, nil
	case "json":
		return FormatJSON, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	}
	return "", ErrUnsupportedFormat
}

// ContentType for the HTTP response / object metadata.
func (f Format) ContentType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatJSON:
		return "application/json"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	}
	return "application/octet-stream"
}

// Extension including the dot.
func (f Format) Extension() string { return "." + string(f) }

// Report is a rendered export.
type Report struct {
	Name   string
	Format Format
	Data   []byte
}

// Filename is Name plus the format extension.
func (r Report) Filename() string { return r.Name + r.Format.Extension() }
