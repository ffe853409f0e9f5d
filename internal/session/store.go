// Package session keeps per-session uploads and conversation history in Redis
// so every API replica sees the same state.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"property-chatbot-api/internal/logger"
	"property-chatbot-api/models"
	"property-chatbot-api/utils"
)

var ErrUploadLimitReached = errors.New("upload limit reached for this session")

const maxWatchRetries = 5

type Store struct {
	rdb        *redis.Client
	ttl        time.Duration
	maxUploads int
	maxTurns   int
}

func NewStore(rdb *redis.Client, ttl time.Duration, maxUploads, maxTurns int) *Store {
	return &Store{rdb: rdb, ttl: ttl, maxUploads: maxUploads, maxTurns: maxTurns}
}

func docsKey(sessionID string) string    { return "session:" + sessionID + ":docs" }
func historyKey(sessionID string) string { return "conv:" + sessionID }

// MaxUploads is the per-session upload cap.
func (s *Store) MaxUploads() int { return s.maxUploads }

// AddDocument appends doc to the session and returns the new document count.
// The cap check and the push run in one optimistic transaction.
func (s *Store) AddDocument(ctx context.Context, sessionID string, doc models.SessionDocument) (int, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("marshal session document: %w", err)
	}
	payload, err := utils.Pack(raw)
	if err != nil {
		return 0, fmt.Errorf("pack session document: %w", err)
	}
	key := docsKey(sessionID)

	var count int
	txf := func(tx *redis.Tx) error {
		n, err := tx.LLen(ctx, key).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if int(n) >= s.maxUploads {
			return ErrUploadLimitReached
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, key, payload)
			pipe.Expire(ctx, key, s.ttl)
			return nil
		})
		count = int(n) + 1
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err = s.rdb.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return 0, err
		}
		return count, nil
	}
	return 0, fmt.Errorf("add session document: too much contention on %s", key)
}

// Count returns how many documents the session holds.
func (s *Store) Count(ctx context.Context, sessionID string) (int, error) {
	n, err := s.rdb.LLen(ctx, docsKey(sessionID)).Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Documents returns the session's uploads in upload order.
func (s *Store) Documents(ctx context.Context, sessionID string) ([]models.SessionDocument, error) {
	raw, err := s.rdb.LRange(ctx, docsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	docs := make([]models.SessionDocument, 0, len(raw))
	for _, r := range raw {
		var d models.SessionDocument
		data, err := utils.Unpack([]byte(r))
		if err == nil {
			err = json.Unmarshal(data, &d)
		}
		if err != nil {
			logger.Warn("Skipping corrupt session document", "session_id", sessionID, "error", err)
			continue
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// Cleanup removes the session's uploads and history. It returns the number
// of uploads removed; zero means no session was found.
func (s *Store) Cleanup(ctx context.Context, sessionID string) (int, error) {
	var llen *redis.IntCmd
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		llen = pipe.LLen(ctx, docsKey(sessionID))
		pipe.Del(ctx, docsKey(sessionID), historyKey(sessionID))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(llen.Val()), nil
}

// LoadHistory returns the stored turns. Errors yield an empty history.
func (s *Store) LoadHistory(ctx context.Context, sessionID string) []models.Turn {
	data, err := s.rdb.Get(ctx, historyKey(sessionID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Warn("Redis history load error", "session_id", sessionID, "error", err)
		}
		return []models.Turn{}
	}
	var turns []models.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		logger.Warn("Corrupt conversation history", "session_id", sessionID, "error", err)
		return []models.Turn{}
	}
	return turns
}

// SaveHistory keeps the most recent turns and refreshes the TTL of both the
// history and the session's uploads.
func (s *Store) SaveHistory(ctx context.Context, sessionID string, turns []models.Turn) error {
	if len(turns) > s.maxTurns {
		turns = turns[len(turns)-s.maxTurns:]
	}
	data, err := json.Marshal(turns)
	if err != nil {
		return err
	}
	// uploads live as long as the conversation does
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, historyKey(sessionID), data, s.ttl)
		pipe.Expire(ctx, docsKey(sessionID), s.ttl)
		return nil
	})
	if err != nil {
		logger.Warn("Redis history save error", "session_id", sessionID, "error", err)
		return err
	}
	return nil
}

// ActiveSessions counts sessions currently holding uploads.
func (s *Store) ActiveSessions(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, "session:*:docs", 200).Result()
		if err != nil {
			return 0, err
		}
		for _, k := range keys {
			if strings.HasSuffix(k, ":docs") {
				total++
			}
		}
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}
