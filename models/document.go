package models

import "time"

// Source types attached to context documents.
const (
	SourceUploaded = "uploaded"
	SourceCompany  = "company"
)

// PageText is the extracted text of one page, numbered from 1.
type PageText struct {
	PageNumber int    `json:"page_number" bson:"page_number"`
	Text       string `json:"text" bson:"text"`
}

// SessionDocument is a user upload held for the lifetime of a session.
type SessionDocument struct {
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	Content     string     `json:"content"`
	PageTexts   []PageText `json:"page_texts"`
	PageCount   int        `json:"page_count"`
	Size        int64      `json:"size"`
	Method      string     `json:"method,omitempty"`
	UploadedAt  time.Time  `json:"uploaded_at"`
}

// Pages flattens the document into per-page context entries. A document
// without page texts becomes a single page holding its full content.
func (d SessionDocument) Pages() []ContextDoc {
	if len(d.PageTexts) == 0 {
		return []ContextDoc{{
			Content:    d.Content,
			Filename:   d.Filename,
			SourceType: SourceUploaded,
			PageNumber: 1,
		}}
	}
	out := make([]ContextDoc, 0, len(d.PageTexts))
	for _, p := range d.PageTexts {
		out = append(out, ContextDoc{
			Content:    p.Text,
			Filename:   d.Filename,
			SourceType: SourceUploaded,
			PageNumber: p.PageNumber,
		})
	}
	return out
}

// ContextDoc is one chunk of text offered to the model as context.
type ContextDoc struct {
	Content     string `json:"content"`
	Filename    string `json:"filename"`
	SourceType  string `json:"source_type"`
	DownloadURL string `json:"download_url,omitempty"`
	ParentID    string `json:"parent_id,omitempty"`
	ChunkNumber int    `json:"chunk_number,omitempty"`
	PageNumber  int    `json:"page_number"`
}

// DocumentSummary is the session document listing without content.
type DocumentSummary struct {
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	PageCount   int       `json:"page_count"`
	TextLength  int       `json:"text_length"`
	Size        int64     `json:"size"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

func (d SessionDocument) Summary() DocumentSummary {
	return DocumentSummary{
		Filename:    d.Filename,
		ContentType: d.ContentType,
		PageCount:   d.PageCount,
		TextLength:  len(d.Content),
		Size:        d.Size,
		UploadedAt:  d.UploadedAt,
	}
}
