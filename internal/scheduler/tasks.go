// Package scheduler defers scheduled rides until their pickup time using asynq.
package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TypeReleaseScheduledRide moves a scheduled ride into live dispatch.
const TypeReleaseScheduledRide = "ride:release-scheduled"

type releasePayload struct {
	RideID string `json:"rideId"`
}

// NewReleaseTask builds the task that releases rideID.
func NewReleaseTask(rideID string) (*asynq.Task, error) {
	payload, err := json.Marshal(releasePayload{RideID: rideID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeReleaseScheduledRide, payload, asynq.MaxRetry(5)), nil
}

// enqueuer is the subset of *asynq.Client used by Queue.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue enqueues scheduled ride releases.
type Queue struct {
	client enqueuer
}

// NewQueue creates a Queue backed by an asynq client.
func NewQueue(client *asynq.Client) *Queue {
	return &Queue{client: client}
}

// EnqueueRelease schedules the ride's release at the given time. Enqueueing
// the same ride twice is a no-op.
func (q *Queue) EnqueueRelease(ctx context.Context, rideID string, at time.Time) error {
	task, err := NewReleaseTask(rideID)
	if err != nil {
		return err
	}

	_, err = q.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(at),
		asynq.TaskID("release:"+rideID),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue release for ride %s: %w", rideID, err)
	}
	return nil
}
