// Package extract pulls plain text out of uploaded files: text files are
// read as-is, PDFs page by page, and images through tesseract OCR.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/bryanwahyu/trustai-client/internal/domain/analysis"
)

// Extractor implements analysis.Extractor.
type Extractor struct {
	// TesseractPath is the OCR binary; empty disables image support.
	TesseractPath string
	Language      string
	Logger        *slog.Logger
}

var _ analysis.Extractor = (*Extractor)(nil)

// New returns an extractor using the given tesseract binary and language.
func New(tesseractPath, language string, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{TesseractPath: tesseractPath, Language: language, Logger: logger}
}

// Extract dispatches on the detected content type of path.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	ct, err := DetectType(path)
	if err != nil {
		return "", err
	}
	e.Logger.Debug("extract", "file", filepath.Base(path), "type", ct)
	switch {
	case strings.HasPrefix(ct, "text/plain"):
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read text: %w", err)
		}
		return string(b), nil
	case ct == "application/pdf":
		return PDFText(path)
	case strings.HasPrefix(ct, "image/"):
		return e.OCR(ctx, path)
	}
	return "", fmt.Errorf("%w: %s", analysis.ErrUnsupportedFile, ct)
}

// DetectType uses the file extension and falls back to sniffing content.
func DetectType(path string) (string, error) {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); ct != "" {
		return ct, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}

// PDFText returns the text of every page, pages joined by a newline.
func PDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("pdf page %d: %w", i, err)
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	return strings.Join(pages, "\n"), nil
}

// OCR runs tesseract on an image and returns the recognised text.
func (e *Extractor) OCR(ctx context.Context, path string) (string, error) {
	if e.TesseractPath == "" {
		return "", fmt.Errorf("%w: image OCR disabled", analysis.ErrUnsupportedFile)
	}
	lang := e.Language
	if lang == "" {
		lang = "eng"
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, e.TesseractPath, path, "stdout", "-l", lang)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}
