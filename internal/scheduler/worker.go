package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Releaser moves a scheduled ride into live dispatch.
type Releaser interface {
	ReleaseScheduledRide(ctx context.Context, rideID string) error
}

// NewMux registers the scheduled ride handler.
func NewMux(releaser Releaser, logger logrus.FieldLogger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeReleaseScheduledRide, releaseHandler(releaser, logger))
	return mux
}

func releaseHandler(releaser Releaser, logger logrus.FieldLogger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload releasePayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("decode %s payload: %v: %w", TypeReleaseScheduledRide, err, asynq.SkipRetry)
		}

		if err := releaser.ReleaseScheduledRide(ctx, payload.RideID); err != nil {
			logger.WithError(err).WithField("ride_id", payload.RideID).Warn("scheduled ride release failed")
			return err
		}

		logger.WithField("ride_id", payload.RideID).Debug("scheduled ride release handled")
		return nil
	}
}

// NewServer creates the asynq worker server.
func NewServer(redisOpt asynq.RedisClientOpt, concurrency int, logger logrus.FieldLogger) *asynq.Server {
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.WithError(err).WithField("task", task.Type()).Error("scheduler task failed")
		}),
	})
}
