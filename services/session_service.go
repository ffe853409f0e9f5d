package services

import (
	"context"
	"errors"

	"property-chatbot-api/internal/logger"
	"property-chatbot-api/internal/telemetry"
	"property-chatbot-api/models"
)

var ErrSessionRequired = errors.New("session_id is required")

// SessionCleaner is the part of the session store cleanup and listing need.
type SessionCleaner interface {
	Cleanup(ctx context.Context, sessionID string) (int, error)
	Documents(ctx context.Context, sessionID string) ([]models.SessionDocument, error)
	MaxUploads() int
}

// SessionService ends sessions and reports what they hold.
type SessionService struct {
	store        SessionCleaner
	transcripts  TranscriptStore
	metrics      *telemetry.Metrics
	purgeArchive bool
}

func NewSessionService(store SessionCleaner, transcripts TranscriptStore, metrics *telemetry.Metrics, purgeArchive bool) *SessionService {
	if transcripts == nil {
		transcripts = NoopTranscriptStore{}
	}
	return &SessionService{store: store, transcripts: transcripts, metrics: metrics, purgeArchive: purgeArchive}
}

// Cleanup drops the session's uploads and history and returns the number of
// files removed. Archived transcripts are purged only when configured.
func (s *SessionService) Cleanup(ctx context.Context, sessionID string) (*models.CleanupResponse, error) {
	if sessionID == "" {
		return nil, ErrSessionRequired
	}

	n, err := s.store.Cleanup(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordSessionCleanup(n > 0)

	if s.purgeArchive {
		purged, err := s.transcripts.DeleteSession(ctx, sessionID)
		if err != nil {
			logger.Warn("Failed to purge transcript archive", "session_id", sessionID, "error", err)
		} else {
			logger.Info("Purged transcript archive", "session_id", sessionID, "exchanges", purged)
		}
	}

	if n == 0 {
		logger.Info("Cleanup requested for unknown session", "session_id", sessionID)
		return &models.CleanupResponse{Message: "No session found", SessionID: sessionID, FilesDeleted: 0}, nil
	}
	logger.Info("Session cleaned up", "session_id", sessionID, "files_deleted", n)
	return &models.CleanupResponse{Message: "Session cleaned up successfully", SessionID: sessionID, FilesDeleted: n}, nil
}

// SessionDocuments is the listing returned for a session.
type SessionDocuments struct {
	SessionID        string                   `json:"session_id"`
	Documents        []models.DocumentSummary `json:"documents"`
	UploadsRemaining int                      `json:"uploads_remaining"`
}

func (s *SessionService) Documents(ctx context.Context, sessionID string) (*SessionDocuments, error) {
	docs, err := s.store.Documents(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := &SessionDocuments{SessionID: sessionID, Documents: make([]models.DocumentSummary, 0, len(docs))}
	for _, d := range docs {
		out.Documents = append(out.Documents, d.Summary())
	}
	out.UploadsRemaining = max(s.store.MaxUploads()-len(docs), 0)
	return out, nil
}

// Transcript returns the archived exchanges for a session.
func (s *SessionService) Transcript(ctx context.Context, sessionID string) ([]models.Exchange, error) {
	return s.transcripts.History(ctx, sessionID)
}
