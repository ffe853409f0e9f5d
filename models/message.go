package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"property-chatbot-api/pkg/citations"
)

// Exchange is an archived question and answer.
type Exchange struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID     string             `bson:"session_id" json:"session_id"`
	Query         string             `bson:"query" json:"query"`
	Response      string             `bson:"response" json:"response"`
	PlainResponse string             `bson:"plain_response" json:"plain_response"`
	Sources       []citations.Source `bson:"sources" json:"sources"`
	Casual        bool               `bson:"casual" json:"casual"`
	UploadCount   int                `bson:"upload_count" json:"upload_count"`
	ContextDocs   int                `bson:"context_docs" json:"context_docs"`
	LatencyMS     int64              `bson:"latency_ms" json:"latency_ms"`
	Failed        bool               `bson:"failed,omitempty" json:"failed,omitempty"`
	Timestamp     time.Time          `bson:"timestamp" json:"timestamp"`
}

// UploadRecord is upload metadata archived without the extracted text.
type UploadRecord struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID   string             `bson:"session_id" json:"session_id"`
	Filename    string             `bson:"filename" json:"filename"`
	ContentType string             `bson:"content_type" json:"content_type"`
	Size        int64              `bson:"size" json:"size"`
	PageCount   int                `bson:"page_count" json:"page_count"`
	TextLength  int                `bson:"text_length" json:"text_length"`
	Method      string             `bson:"method" json:"method"`
	UploadedAt  time.Time          `bson:"uploaded_at" json:"uploaded_at"`
}
