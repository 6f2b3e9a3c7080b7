package events

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LoggingPublisher traces every event at debug level before delegating.
// Payloads are not logged; they may carry a one-time code.
type LoggingPublisher struct {
	next   Publisher
	logger logrus.FieldLogger
}

var _ Publisher = (*LoggingPublisher)(nil)

// NewLoggingPublisher wraps next.
func NewLoggingPublisher(next Publisher, logger logrus.FieldLogger) *LoggingPublisher {
	return &LoggingPublisher{next: next, logger: logger}
}

// Publish logs and delivers the event to targetID.
func (p *LoggingPublisher) Publish(ctx context.Context, targetID, event string, payload any) error {
	p.logger.WithFields(logrus.Fields{"event": event, "target": targetID}).Debug("emit event")
	return p.next.Publish(ctx, targetID, event, payload)
}

// Broadcast logs and delivers the event to every client.
func (p *LoggingPublisher) Broadcast(ctx context.Context, event string, payload any) error {
	p.logger.WithFields(logrus.Fields{"event": event, "target": BroadcastTarget}).Debug("emit event")
	return p.next.Broadcast(ctx, event, payload)
}
