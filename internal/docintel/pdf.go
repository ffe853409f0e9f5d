package docintel

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"property-chatbot-api/internal/logger"
	"property-chatbot-api/models"
)

// LocalPDFExtractor reads embedded PDF text without calling a remote service.
// Scanned pages without a text layer come back empty.
type LocalPDFExtractor struct {
	maxPages int
}

func NewLocalPDFExtractor(maxPages int) *LocalPDFExtractor {
	return &LocalPDFExtractor{maxPages: maxPages}
}

func (e *LocalPDFExtractor) Extract(ctx context.Context, content []byte, filename, _ string) (*Extraction, error) {
	pages, err := e.ExtractPages(ctx, content, e.maxPages)
	if err != nil {
		return nil, err
	}

	var full strings.Builder
	for _, p := range pages {
		if full.Len() > 0 {
			full.WriteString("\n\n")
		}
		full.WriteString(p.Text)
	}
	text := strings.TrimSpace(full.String())
	if text == "" {
		return nil, fmt.Errorf("%w: no text layer found in %s", ErrExtractionFailed, filename)
	}

	return &Extraction{
		Text:      text,
		PageTexts: pages,
		PageCount: len(pages),
		Filename:  filename,
		Method:    MethodLocalPDF,
	}, nil
}

// ExtractPages returns the plain text of each page. A maxPages of zero or
// less reads the whole document.
func (e *LocalPDFExtractor) ExtractPages(ctx context.Context, content []byte, maxPages int) ([]models.PageText, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create PDF reader: %v", ErrExtractionFailed, err)
	}

	total := reader.NumPage()
	pages := make([]models.PageText, 0, total)
	for i := 1; i <= total; i++ {
		if maxPages > 0 && i > maxPages {
			logger.Warn("Stopping at page limit", "max_pages", maxPages, "total_pages", total)
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("Failed to extract text from page", "page", i, "error", err)
			continue
		}
		pages = append(pages, models.PageText{PageNumber: i, Text: strings.TrimSpace(text)})
	}
	return pages, nil
}
