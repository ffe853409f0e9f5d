package models

import (
	"property-chatbot-api/pkg/citations"
)

type ChatRequest struct {
	Message   string `json:"message" binding:"required,min=1,max=4000"`
	SessionID string `json:"session_id,omitempty"`
}

type ChatResponse struct {
	Response  string             `json:"response"`
	Sources   []citations.Source `json:"sources"`
	SessionID string             `json:"session_id"`
}

// Turn is one question/answer pair kept in conversation history.
type Turn struct {
	Query    string `json:"query"`
	Response string `json:"response"`
}

type CleanupRequest struct {
	SessionID string `json:"session_id"`
}

type CleanupResponse struct {
	Message      string `json:"message"`
	SessionID    string `json:"session_id"`
	FilesDeleted int    `json:"files_deleted"`
}

type UploadResponse struct {
	Message          string `json:"message"`
	Filename         string `json:"filename"`
	SessionID        string `json:"session_id"`
	PagesExtracted   int    `json:"pages_extracted"`
	TextLength       int    `json:"text_length"`
	ImmediateAccess  bool   `json:"immediate_access"`
	UploadsRemaining int    `json:"uploads_remaining"`
}
