package docintel

import (
	"context"
	"strings"
	"unicode/utf8"

	"property-chatbot-api/internal/logger"
	"property-chatbot-api/models"
)

// textPageSize is the number of characters that make up one page of a
// plain text upload.
const textPageSize = 2000

type TextExtractor struct {
	maxPages int
}

func NewTextExtractor(maxPages int) *TextExtractor {
	return &TextExtractor{maxPages: maxPages}
}

func (e *TextExtractor) Extract(_ context.Context, content []byte, filename, _ string) (*Extraction, error) {
	if !utf8.Valid(content) {
		logger.Warn("Rejected non UTF-8 text upload", "filename", filename)
		return nil, ErrInvalidUTF8
	}
	text := string(content)
	runes := []rune(text)

	var pages []models.PageText
	for start, page := 0, 1; start < len(runes); start, page = start+textPageSize, page+1 {
		if e.maxPages > 0 && page > e.maxPages {
			logger.Warn("Stopping at page limit", "filename", filename, "max_pages", e.maxPages)
			break
		}
		end := start + textPageSize
		if end > len(runes) {
			end = len(runes)
		}
		pages = append(pages, models.PageText{PageNumber: page, Text: string(runes[start:end])})
	}

	logger.Info("Extracted plain text", "filename", filename, "chars", len(runes), "pages", len(pages))
	return &Extraction{
		Text:      strings.TrimSpace(text),
		PageTexts: pages,
		PageCount: len(pages),
		Filename:  filename,
		Method:    MethodPlainText,
	}, nil
}
