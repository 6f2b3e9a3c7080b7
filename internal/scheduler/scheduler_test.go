package scheduler

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	r.opts = append(r.opts, opts)
	return &asynq.TaskInfo{}, r.err
}

type recordingReleaser struct {
	released []string
	err      error
}

func (r *recordingReleaser) ReleaseScheduledRide(ctx context.Context, rideID string) error {
	r.released = append(r.released, rideID)
	return r.err
}

func quietLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestQueue_EnqueueReleaseSchedulesAtPickupTime(t *testing.T) {
	rec := &recordingEnqueuer{}
	queue := &Queue{client: rec}

	at := time.Now().Add(2 * time.Hour)
	require.NoError(t, queue.EnqueueRelease(context.Background(), "ride-1", at))

	require.Len(t, rec.tasks, 1)
	assert.Equal(t, TypeReleaseScheduledRide, rec.tasks[0].Type())
	assert.JSONEq(t, `{"rideId":"ride-1"}`, string(rec.tasks[0].Payload()))
	assert.Len(t, rec.opts[0], 2)
}

func TestQueue_DuplicateTaskIsNoop(t *testing.T) {
	queue := &Queue{client: &recordingEnqueuer{err: asynq.ErrTaskIDConflict}}
	assert.NoError(t, queue.EnqueueRelease(context.Background(), "ride-1", time.Now()))
}

func TestReleaseHandler_CallsReleaser(t *testing.T) {
	releaser := &recordingReleaser{}
	handler := releaseHandler(releaser, quietLogger())

	task, err := NewReleaseTask("ride-9")
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	assert.Equal(t, []string{"ride-9"}, releaser.released)
}

func TestReleaseHandler_BadPayloadSkipsRetry(t *testing.T) {
	handler := releaseHandler(&recordingReleaser{}, quietLogger())

	err := handler(context.Background(), asynq.NewTask(TypeReleaseScheduledRide, []byte("{")))
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}
