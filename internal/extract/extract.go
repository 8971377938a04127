// Package extract converts imported files into plain text for document
// storage. PDF extraction uses ledongthuc/pdf (pure Go, no CGO); markdown
// and plain text pass through unchanged.
package extract

import (
	"bytes"
	"fmt"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

var pdfMagic = []byte("%PDF-")

// Text converts a raw file into text and reports the detected content
// type. The name's extension is a hint; PDF is also recognized by magic
// bytes so misnamed uploads still import.
func Text(content []byte, name string) (string, string, error) {
	if len(content) == 0 {
		return "", "", fmt.Errorf("extract: empty file")
	}

	ext := strings.ToLower(path.Ext(name))
	if ext == ".pdf" || bytes.HasPrefix(content, pdfMagic) {
		text, err := pdfText(content)
		if err != nil {
			return "", "", err
		}
		return text, "application/pdf", nil
	}

	if !utf8.Valid(content) {
		return "", "", fmt.Errorf("extract: %q is not text", name)
	}

	switch ext {
	case ".md", ".markdown":
		return string(content), "text/markdown", nil
	default:
		return string(content), "text/plain", nil
	}
}

// pdfText extracts plain text from every readable page.
func pdfText(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract: open pdf: %w", err)
	}

	var text strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue // skip unreadable pages
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		if text.Len() > 0 {
			text.WriteString("\n\n")
		}
		text.WriteString(pageText)
	}
	return strings.TrimSpace(text.String()), nil
}
