package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-chatbot-api/internal/config"
	"property-chatbot-api/services"
)

type fakeRebuilder struct {
	calls int
	err   error
}

func (f *fakeRebuilder) Run(context.Context) (*services.ReindexSummary, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &services.ReindexSummary{DocumentsFound: 2, ChunksUploaded: 9}, nil
}

type fakeTrigger struct{ err error }

func (f fakeTrigger) RunIndexer(context.Context) error { return f.err }

func TestNewRebuildIndexTask(t *testing.T) {
	task, err := NewRebuildIndexTask("api")
	require.NoError(t, err)
	assert.Equal(t, TaskRebuildIndex, task.Type())

	var payload RebuildPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "api", payload.RequestedBy)
	assert.False(t, payload.RequestedAt.IsZero())
}

func TestRebuildIndexHandler(t *testing.T) {
	rebuilder := &fakeRebuilder{}
	p := NewTaskProcessor(rebuilder, fakeTrigger{})

	task, err := NewRebuildIndexTask("api")
	require.NoError(t, err)
	require.NoError(t, p.RebuildIndex(context.Background(), task))
	assert.Equal(t, 1, rebuilder.calls)

	rebuilder.err = errors.New("listing failed")
	assert.ErrorContains(t, p.RebuildIndex(context.Background(), task), "listing failed")
}

func TestRebuildIndexSkipsRetryOnBadPayload(t *testing.T) {
	p := NewTaskProcessor(&fakeRebuilder{}, fakeTrigger{})
	err := p.RebuildIndex(context.Background(), asynq.NewTask(TaskRebuildIndex, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRunIndexerHandler(t *testing.T) {
	p := NewTaskProcessor(&fakeRebuilder{}, fakeTrigger{err: errors.New("503")})
	assert.Error(t, p.RunIndexer(context.Background(), NewRunIndexerTask()))

	p = NewTaskProcessor(&fakeRebuilder{}, fakeTrigger{})
	assert.NoError(t, p.RunIndexer(context.Background(), NewRunIndexerTask()))
}

type recordingEnqueuer struct{ types []string }

func (r *recordingEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	r.types = append(r.types, task.Type())
	return &asynq.TaskInfo{ID: "t1"}, nil
}

func TestSchedulerSkipsEmptyExpressions(t *testing.T) {
	s := NewScheduler(&recordingEnqueuer{})
	require.NoError(t, s.ScheduleIndexer(""))
	require.NoError(t, s.ScheduleRebuild("0 3 * * *"))
	assert.Equal(t, 1, s.Jobs())

	assert.Error(t, s.ScheduleIndexer("not a cron"))
}

func TestRedisConnOpt(t *testing.T) {
	opt, err := RedisConnOpt(&config.Config{RedisURL: "redis://:pw@cache:6380/2"})
	require.NoError(t, err)
	client, ok := opt.(asynq.RedisClientOpt)
	require.True(t, ok)
	assert.Equal(t, "cache:6380", client.Addr)
	assert.Equal(t, "pw", client.Password)
	assert.Equal(t, 2, client.DB)

	opt, err = RedisConnOpt(&config.Config{RedisURL: "localhost:6379", RedisDB: 1})
	require.NoError(t, err)
	assert.Equal(t, asynq.RedisClientOpt{Addr: "localhost:6379", DB: 1}, opt)
}
