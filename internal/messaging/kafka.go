// Package messaging mirrors ride events onto a Kafka topic for downstream
// consumers such as analytics and the notification gateway.
package messaging

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"

	"ridedeck/internal/events"
)

// KafkaPublisher writes each event envelope to a topic keyed by its target id,
// so all events for one user land on one partition in emission order.
// Payloads are redacted first; the topic never carries one-time codes.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher creates a new KafkaPublisher.
func NewKafkaPublisher(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

var _ events.Publisher = (*KafkaPublisher)(nil)

// Publish writes the event addressed to targetID.
func (p *KafkaPublisher) Publish(ctx context.Context, targetID, event string, payload any) error {
	return p.send(events.NewEnvelope(targetID, event, events.Redact(payload)))
}

// Broadcast writes the event addressed to every client.
func (p *KafkaPublisher) Broadcast(ctx context.Context, event string, payload any) error {
	return p.send(events.NewEnvelope(events.BroadcastTarget, event, events.Redact(payload)))
}

// Close flushes and closes the underlying producer.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

func (p *KafkaPublisher) send(envelope events.Envelope) error {
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(envelope.Target),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event"), Value: []byte(envelope.Event)},
		},
	})
	return err
}
