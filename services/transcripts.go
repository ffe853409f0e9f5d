package services

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"property-chatbot-api/internal/config"
	"property-chatbot-api/models"
	"property-chatbot-api/utils"
)

// TranscriptStore archives answered questions and upload metadata.
type TranscriptStore interface {
	Record(ctx context.Context, ex models.Exchange) error
	History(ctx context.Context, sessionID string) ([]models.Exchange, error)
	RecordUpload(ctx context.Context, rec models.UploadRecord) error
	DeleteSession(ctx context.Context, sessionID string) (int64, error)
}

type MongoTranscriptStore struct {
	messages *mongo.Collection
	uploads  *mongo.Collection
}

func NewMongoTranscriptStore(db *mongo.Database) *MongoTranscriptStore {
	return &MongoTranscriptStore{
		messages: db.Collection(config.MessagesCollection),
		uploads:  db.Collection(config.UploadsCollection),
	}
}

func (s *MongoTranscriptStore) Record(ctx context.Context, ex models.Exchange) error {
	if ex.Timestamp.IsZero() {
		ex.Timestamp = time.Now()
	}
	if _, err := s.messages.InsertOne(ctx, ex); err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}
	return nil
}

func (s *MongoTranscriptStore) History(ctx context.Context, sessionID string) ([]models.Exchange, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	cursor, err := s.messages.Find(ctx,
		bson.M{"session_id": sessionID},
		options.Find().SetSort(bson.M{"timestamp": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("find exchanges: %w", err)
	}
	defer cursor.Close(ctx)

	exchanges := []models.Exchange{}
	if err := cursor.All(ctx, &exchanges); err != nil {
		return nil, fmt.Errorf("decode exchanges: %w", err)
	}
	return exchanges, nil
}

func (s *MongoTranscriptStore) RecordUpload(ctx context.Context, rec models.UploadRecord) error {
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = time.Now()
	}
	if _, err := s.uploads.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("insert upload record: %w", err)
	}
	return nil
}

// DeleteSession removes the session's exchanges and upload records and
// returns how many exchanges were deleted.
func (s *MongoTranscriptStore) DeleteSession(ctx context.Context, sessionID string) (int64, error) {
	ctx, cancel := utils.WithTimeout(ctx)
	defer cancel()

	res, err := s.messages.DeleteMany(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return 0, fmt.Errorf("delete exchanges: %w", err)
	}
	if _, err := s.uploads.DeleteMany(ctx, bson.M{"session_id": sessionID}); err != nil {
		return res.DeletedCount, fmt.Errorf("delete upload records: %w", err)
	}
	return res.DeletedCount, nil
}

// NoopTranscriptStore is used when no MongoDB is configured.
type NoopTranscriptStore struct{}

func (NoopTranscriptStore) Record(context.Context, models.Exchange) error { return nil }

func (NoopTranscriptStore) History(context.Context, string) ([]models.Exchange, error) {
	return []models.Exchange{}, nil
}

func (NoopTranscriptStore) RecordUpload(context.Context, models.UploadRecord) error { return nil }

func (NoopTranscriptStore) DeleteSession(context.Context, string) (int64, error) { return 0, nil }
