package services

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"

	"property-chatbot-api/internal/docintel"
	"property-chatbot-api/internal/logger"
	"property-chatbot-api/internal/session"
	"property-chatbot-api/internal/telemetry"
	"property-chatbot-api/models"
	"property-chatbot-api/utils"
)

var ErrFileTooLarge = errors.New("file exceeds the maximum upload size")

// UploadReadyMessage is returned once a file is stored and searchable.
const UploadReadyMessage = "File uploaded and ready for queries!"

var allowedUploadTypes = []string{
	"application/pdf",
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/tiff",
	"image/bmp",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/plain",
}

// DocumentStore is the part of the session store uploads need.
type DocumentStore interface {
	Count(ctx context.Context, sessionID string) (int, error)
	AddDocument(ctx context.Context, sessionID string, doc models.SessionDocument) (int, error)
	MaxUploads() int
}

type UploadInput struct {
	SessionID   string
	Filename    string
	ContentType string
	Content     []byte
}

type UploadService struct {
	store        DocumentStore
	extractor    docintel.Extractor
	transcripts  TranscriptStore
	metrics      *telemetry.Metrics
	maxFileBytes int64
}

func NewUploadService(store DocumentStore, extractor docintel.Extractor, transcripts TranscriptStore, metrics *telemetry.Metrics, maxFileBytes int64) *UploadService {
	if transcripts == nil {
		transcripts = NoopTranscriptStore{}
	}
	return &UploadService{
		store:        store,
		extractor:    extractor,
		transcripts:  transcripts,
		metrics:      metrics,
		maxFileBytes: maxFileBytes,
	}
}

// NormalizeContentType strips parameters and falls back to the file extension
// when the client sent no usable type.
func NormalizeContentType(contentType, filename string) string {
	ct := strings.TrimSpace(contentType)
	if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mediaType
	}
	ct = strings.ToLower(ct)
	if ct == "" || ct == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); byExt != "" {
			if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
				return mediaType
			}
		}
	}
	return ct
}

// DetectContentType normalizes the declared type and, when nothing usable was
// declared, sniffs the file's magic bytes.
func DetectContentType(content []byte, contentType, filename string) string {
	ct := NormalizeContentType(contentType, filename)
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if kind, err := filetype.Match(content); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	return ct
}

// IsAllowedUploadType reports whether a normalized content type may be uploaded.
func IsAllowedUploadType(contentType string) bool {
	return slices.Contains(allowedUploadTypes, contentType)
}

// Upload validates, extracts and stores a file for the session. Validation
// order: type, size, session cap, then extraction.
func (s *UploadService) Upload(ctx context.Context, in UploadInput) (*models.UploadResponse, error) {
	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	contentType := DetectContentType(in.Content, in.ContentType, in.Filename)

	logger.Info("Upload request",
		"session_id", sessionID,
		"filename", in.Filename,
		"content_type", contentType,
		"size", len(in.Content),
	)

	if !IsAllowedUploadType(contentType) {
		return nil, fmt.Errorf("%w: File type %s not supported", docintel.ErrUnsupportedType, contentType)
	}
	if int64(len(in.Content)) > s.maxFileBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, len(in.Content))
	}

	count, err := s.store.Count(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("count session documents: %w", err)
	}
	if count >= s.store.MaxUploads() {
		return nil, session.ErrUploadLimitReached
	}

	started := time.Now()
	extraction, err := s.extractor.Extract(ctx, in.Content, in.Filename, contentType)
	if err != nil {
		s.metrics.RecordExtraction(time.Since(started).Seconds(), "unknown", "error")
		logger.Error("Extraction failed", "session_id", sessionID, "filename", in.Filename, "error", err)
		if errors.Is(err, docintel.ErrUnsupportedType) {
			return nil, fmt.Errorf("%w: File type %s not supported", docintel.ErrUnsupportedType, contentType)
		}
		if errors.Is(err, docintel.ErrExtractionFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", docintel.ErrExtractionFailed, err)
	}
	s.metrics.RecordExtraction(time.Since(started).Seconds(), extraction.Method, "success")

	doc := models.SessionDocument{
		Filename:    in.Filename,
		ContentType: contentType,
		Content:     extraction.Text,
		PageTexts:   extraction.PageTexts,
		PageCount:   extraction.PageCount,
		Size:        int64(len(in.Content)),
		Method:      extraction.Method,
		UploadedAt:  time.Now().UTC(),
	}
	count, err = s.store.AddDocument(ctx, sessionID, doc)
	if err != nil {
		return nil, err
	}

	logger.Info("Stored upload in session",
		"session_id", sessionID,
		"filename", in.Filename,
		"pages", extraction.PageCount,
		"chars", len(extraction.Text),
		"method", extraction.Method,
		"session_documents", count,
	)

	s.recordUpload(ctx, sessionID, doc)

	return &models.UploadResponse{
		Message:          UploadReadyMessage,
		Filename:         in.Filename,
		SessionID:        sessionID,
		PagesExtracted:   extraction.PageCount,
		TextLength:       len(extraction.Text),
		ImmediateAccess:  true,
		UploadsRemaining: max(s.store.MaxUploads()-count, 0),
	}, nil
}

func (s *UploadService) recordUpload(ctx context.Context, sessionID string, doc models.SessionDocument) {
	ctx, cancel := utils.Detached(ctx, utils.ShortTimeout)
	defer cancel()
	err := s.transcripts.RecordUpload(ctx, models.UploadRecord{
		SessionID:   sessionID,
		Filename:    doc.Filename,
		ContentType: doc.ContentType,
		Size:        doc.Size,
		PageCount:   doc.PageCount,
		TextLength:  len(doc.Content),
		Method:      doc.Method,
		UploadedAt:  doc.UploadedAt,
	})
	if err != nil {
		logger.Warn("Failed to archive upload record", "session_id", sessionID, "error", err)
	}
}
