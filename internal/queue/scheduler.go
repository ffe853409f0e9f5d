package queue

import (
	"time"

	"github.com/go-co-op/gocron"
	"github.com/hibiken/asynq"

	"property-chatbot-api/internal/logger"
)

// Enqueuer is the part of *asynq.Client the scheduler needs.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler enqueues index tasks on cron expressions.
type Scheduler struct {
	scheduler *gocron.Scheduler
	client    Enqueuer
}

func NewScheduler(client Enqueuer) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &Scheduler{scheduler: s, client: client}
}

// ScheduleIndexer enqueues an indexer run on cronExpr. Empty disables it.
func (s *Scheduler) ScheduleIndexer(cronExpr string) error {
	return s.schedule("run-indexer", cronExpr, func() (*asynq.Task, error) {
		return NewRunIndexerTask(), nil
	})
}

// ScheduleRebuild enqueues a full rebuild on cronExpr. Empty disables it.
func (s *Scheduler) ScheduleRebuild(cronExpr string) error {
	return s.schedule("rebuild-index", cronExpr, func() (*asynq.Task, error) {
		return NewRebuildIndexTask("scheduler")
	})
}

func (s *Scheduler) schedule(tag, cronExpr string, build func() (*asynq.Task, error)) error {
	if cronExpr == "" {
		return nil
	}
	_, err := s.scheduler.Cron(cronExpr).Tag(tag).Do(func() {
		task, err := build()
		if err != nil {
			logger.Error("Failed to build scheduled task", "tag", tag, "error", err)
			return
		}
		info, err := s.client.Enqueue(task)
		if err != nil {
			logger.Warn("Failed to enqueue scheduled task", "tag", tag, "error", err)
			return
		}
		logger.Info("Scheduled task enqueued", "tag", tag, "task_id", info.ID)
	})
	return err
}

// Jobs returns the number of scheduled jobs.
func (s *Scheduler) Jobs() int { return len(s.scheduler.Jobs()) }

func (s *Scheduler) Start() { s.scheduler.StartAsync() }

func (s *Scheduler) Stop() { s.scheduler.Stop() }
