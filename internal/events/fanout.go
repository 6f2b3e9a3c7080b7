package events

import (
	"context"
	"errors"
)

// Fanout publishes every event to all wrapped publishers.
type Fanout []Publisher

var _ Publisher = Fanout(nil)

// Publish delivers to every publisher and joins their errors.
func (f Fanout) Publish(ctx context.Context, targetID, event string, payload any) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, targetID, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Broadcast delivers to every publisher and joins their errors.
func (f Fanout) Broadcast(ctx context.Context, event string, payload any) error {
	var errs []error
	for _, p := range f {
		if err := p.Broadcast(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
