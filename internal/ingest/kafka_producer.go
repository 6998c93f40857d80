package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/transport-marketplace/internal/models"
)

type EventType string

const (
	RequestCreated       EventType = "request_created"
	OfferSubmitted       EventType = "offer_submitted"
	OfferAccepted        EventType = "offer_accepted"
	ReservationConfirmed EventType = "reservation_confirmed"
)

// Event is a marketplace domain event. Origin is set for request_created
// when the request's origin has coordinates.
type Event struct {
	Type      EventType            `json:"type"`
	RequestID string               `json:"request_id"`
	OfferID   string               `json:"offer_id,omitempty"`
	CarrierID string               `json:"carrier_id,omitempty"`
	Method    models.PaymentMethod `json:"method,omitempty"`
	Origin    *models.Coord        `json:"origin,omitempty"`
	At        time.Time            `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(brokers []string, topic string) *KafkaProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.Hash{}})
	return &KafkaProducer{writer: w}
}

// Publish keys messages by request id so a request's events stay ordered.
func (k *KafkaProducer) Publish(ctx context.Context, e Event) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(e.RequestID), Value: b})
}

func (k *KafkaProducer) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
