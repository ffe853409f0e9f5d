// Package docintel turns uploaded files into page-aware text.
package docintel

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"property-chatbot-api/internal/config"
	"property-chatbot-api/models"
)

var (
	ErrUnsupportedType  = errors.New("file type not supported")
	ErrInvalidUTF8      = errors.New("File is not valid UTF-8 text")
	ErrExtractionFailed = errors.New("extraction failed")
)

// Reason returns the client-facing cause of an extraction error, without the
// sentinel prefixes added while wrapping.
func Reason(err error) string {
	msg := err.Error()
	for _, prefix := range []string{ErrExtractionFailed.Error() + ": ", ErrUnsupportedType.Error() + ": "} {
		for strings.HasPrefix(msg, prefix) {
			msg = strings.TrimPrefix(msg, prefix)
		}
	}
	return msg
}

// Extraction methods reported in results.
const (
	MethodPlainText            = "plain-text"
	MethodDocumentIntelligence = "document-intelligence"
	MethodLocalPDF             = "go-pdf"
)

// Extraction is the text recovered from a file. PageTexts holds at most the
// configured page cap, while Text is the whole trimmed document text.
type Extraction struct {
	Text      string
	PageTexts []models.PageText
	PageCount int
	Filename  string
	Method    string
}

type Extractor interface {
	Extract(ctx context.Context, content []byte, filename, contentType string) (*Extraction, error)
}

// Router picks an extractor by file type. Plain text is decoded locally,
// everything else goes to Document Intelligence when configured, with a
// local PDF reader as the fallback for PDFs.
type Router struct {
	Text     Extractor
	Remote   Extractor
	LocalPDF Extractor
}

func NewRouter(maxPages int, remote Extractor) *Router {
	return &Router{
		Text:     NewTextExtractor(maxPages),
		Remote:   remote,
		LocalPDF: NewLocalPDFExtractor(maxPages),
	}
}

// NewFromConfig builds an extractor routed by file type. A maxPages of zero
// or less reads whole documents, which the index rebuild uses. timeout bounds
// one Document Intelligence analysis.
func NewFromConfig(cfg *config.Config, maxPages int, timeout time.Duration) *Router {
	var remote Extractor
	if cfg.DocIntelEnabled() {
		remote = NewClient(cfg.DocIntelEndpoint, cfg.DocIntelKey, cfg.DocIntelAPIVersion, maxPages, timeout, nil)
	}
	return NewRouter(maxPages, remote)
}

func (r *Router) Extract(ctx context.Context, content []byte, filename, contentType string) (*Extraction, error) {
	switch {
	case IsPlainText(filename, contentType):
		return r.Text.Extract(ctx, content, filename, contentType)
	case r.Remote != nil:
		return r.Remote.Extract(ctx, content, filename, contentType)
	case IsPDF(filename, contentType) && r.LocalPDF != nil:
		return r.LocalPDF.Extract(ctx, content, filename, contentType)
	default:
		return nil, ErrUnsupportedType
	}
}

func IsPlainText(filename, contentType string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".txt") || contentType == "text/plain"
}

func IsPDF(filename, contentType string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf") || contentType == "application/pdf"
}
