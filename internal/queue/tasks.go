package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"property-chatbot-api/internal/logger"
	"property-chatbot-api/services"
)

const (
	TaskRebuildIndex = "index:rebuild"
	TaskRunIndexer   = "index:run-indexer"

	QueueCritical = "critical"
	QueueDefault  = "default"
)

// RebuildPayload carries who asked for the rebuild, for the logs.
type RebuildPayload struct {
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

// Task creators
func NewRebuildIndexTask(requestedBy string) (*asynq.Task, error) {
	payload, err := json.Marshal(RebuildPayload{
		RequestedBy: requestedBy,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskRebuildIndex,
		payload,
		asynq.MaxRetry(1),
		asynq.Timeout(2*time.Hour),
		asynq.Queue(QueueCritical),
		// One rebuild at a time; a second request while one is pending is a conflict.
		asynq.Unique(2*time.Hour),
	), nil
}

func NewRunIndexerTask() *asynq.Task {
	return asynq.NewTask(
		TaskRunIndexer,
		nil,
		asynq.MaxRetry(3),
		asynq.Timeout(2*time.Minute),
		asynq.Queue(QueueDefault),
	)
}

// Rebuilder is the full index rebuild.
type Rebuilder interface {
	Run(ctx context.Context) (*services.ReindexSummary, error)
}

// IndexerTrigger starts the search service's own blob indexer.
type IndexerTrigger interface {
	RunIndexer(ctx context.Context) error
}

// Task handlers
type TaskProcessor struct {
	rebuilder Rebuilder
	indexer   IndexerTrigger
}

func NewTaskProcessor(rebuilder Rebuilder, indexer IndexerTrigger) *TaskProcessor {
	return &TaskProcessor{rebuilder: rebuilder, indexer: indexer}
}

// Register installs both handlers on mux.
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskRebuildIndex, p.RebuildIndex)
	mux.HandleFunc(TaskRunIndexer, p.RunIndexer)
}

func (p *TaskProcessor) RebuildIndex(ctx context.Context, t *asynq.Task) error {
	var payload RebuildPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("Rebuilding search index", "requested_by", payload.RequestedBy, "requested_at", payload.RequestedAt)

	summary, err := p.rebuilder.Run(ctx)
	if err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}

	if w := t.ResultWriter(); w != nil {
		if data, err := json.Marshal(summary); err == nil {
			_, _ = w.Write(data)
		}
	}
	return nil
}

func (p *TaskProcessor) RunIndexer(ctx context.Context, _ *asynq.Task) error {
	if err := p.indexer.RunIndexer(ctx); err != nil {
		return fmt.Errorf("run indexer: %w", err)
	}
	logger.Info("Search indexer triggered")
	return nil
}
