package ingestion

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

// ErrUnsupportedType signals the caller should fall back to the remote OCR
// provider.
var ErrUnsupportedType = errors.New("unsupported document type")

var whitespaceRun = regexp.MustCompile(`[ \t]+`)

// ExtractText pulls plain text out of an uploaded file without calling any
// external service. Returns ErrUnsupportedType for formats that need OCR.
func ExtractText(mimeType string, data []byte) (string, error) {
	switch {
	case strings.HasPrefix(mimeType, "text/html"):
		return extractHTML(data)
	case strings.HasPrefix(mimeType, "text/"):
		return strings.TrimSpace(string(data)), nil
	case mimeType == "application/pdf":
		return extractPDF(data)
	default:
		return "", ErrUnsupportedType
	}
}

// extractPDF reads the text layer of a PDF. Scanned PDFs come back empty,
// which the processor treats as an OCR fallback signal.
func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, textReader); err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}

	return strings.TrimSpace(buf.String()), nil
}

func extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()
	text = whitespaceRun.ReplaceAllString(text, " ")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}

	return strings.Join(lines, "\n"), nil
}
