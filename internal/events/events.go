// Package events defines the real-time ride events and the fan-out
// publisher contract. Delivery is at-most-once and best effort; clients
// recover missed state through the current-ride query.
package events

import (
	"context"
	"time"
)

// Event names emitted by the ride engine.
const (
	NewRideRequest   = "newRideRequest"
	NewOffer         = "newOffer"
	RideAccepted     = "rideAccepted"
	RideTaken        = "rideTaken"
	RideStatusUpdate = "rideStatusUpdate"
	RideUpdate       = "rideUpdate"
	RiderCounter     = "riderCounter"
	NewMessage       = "newMessage"
	LocationUpdate   = "locationUpdate"
	AdminSOSAlert    = "adminSosAlert"
)

// AdminsRoom is the target id that reaches every connected admin.
const AdminsRoom = "admins"

// BroadcastTarget marks an envelope addressed to every connected client.
const BroadcastTarget = "*"

// Publisher fans events out to connected clients grouped by user id.
type Publisher interface {
	// Publish delivers the event to every connection of targetID.
	Publish(ctx context.Context, targetID, event string, payload any) error

	// Broadcast delivers the event to every connected client.
	Broadcast(ctx context.Context, event string, payload any) error
}

// Redactor is implemented by payloads that carry secrets meant only for the
// live recipient, such as the rider's one-time code.
type Redactor interface {
	Redacted() any
}

// Redact returns the payload with its secrets removed, for durable sinks.
func Redact(payload any) any {
	if r, ok := payload.(Redactor); ok {
		return r.Redacted()
	}
	return payload
}

// Envelope is the wire form of an event.
type Envelope struct {
	Target    string    `json:"target"`
	Event     string    `json:"event"`
	Payload   any       `json:"payload"`
	EmittedAt time.Time `json:"emittedAt"`
}

// NewEnvelope wraps a payload for targetID, stamping the emission time.
func NewEnvelope(targetID, event string, payload any) Envelope {
	return Envelope{
		Target:    targetID,
		Event:     event,
		Payload:   payload,
		EmittedAt: time.Now().UTC(),
	}
}
