// Package kafka publishes delivered notifications to a Kafka topic so other
// services own the recipient feed.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/example/club-reminders/internal/reminder"
)

// Record header keys.
const (
	HeaderCategory    = "category"
	HeaderRecipientID = "recipient-id"
)

// Producer is the part of *kgo.Client the publisher needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Message is the JSON value written for each notification.
type Message struct {
	RecipientID string            `json:"recipientId"`
	Title       string            `json:"title"`
	Message     string            `json:"message"`
	Category    string            `json:"category"`
	LinkTarget  string            `json:"linkTarget"`
	Payload     map[string]string `json:"payload,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Publisher is a delivery.Sink backed by Kafka. Records are keyed by
// recipient so one recipient's notifications stay ordered.
type Publisher struct {
	client Producer
	topic  string
}

// New wraps a producer. topic is set on every record.
func New(client Producer, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

// NewClient builds a franz-go client for the given seed brokers.
func NewClient(brokers []string, topic string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: new client: %w", err)
	}
	return client, nil
}

// Deliver publishes n and waits for the broker acknowledgement.
func (p *Publisher) Deliver(ctx context.Context, recipientID string, n reminder.Notification) error {
	rec, err := notificationToRec(p.topic, recipientID, n)
	if err != nil {
		return err
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("kafka: publish notification: %w", err)
	}
	return nil
}

func notificationToRec(topic, recipientID string, n reminder.Notification) (*kgo.Record, error) {
	value, err := json.Marshal(Message{
		RecipientID: recipientID,
		Title:       n.Title,
		Message:     n.Message,
		Category:    string(n.Category),
		LinkTarget:  n.LinkTarget,
		Payload:     n.Payload,
		CreatedAt:   n.CreatedAt.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("kafka: encode notification: %w", err)
	}

	return &kgo.Record{
		Topic: topic,
		Key:   []byte(recipientID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: HeaderCategory, Value: []byte(n.Category)},
			{Key: HeaderRecipientID, Value: []byte(recipientID)},
		},
	}, nil
}
