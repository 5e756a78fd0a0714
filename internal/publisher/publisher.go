package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/creamsy-pos/internal/domain"
	"github.com/segmentio/kafka-go"
)

const EventSaleCompleted = "sale.completed"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// SaleEvent is the payload written for every settled checkout.
type SaleEvent struct {
	EventType   string              `json:"event_type"`
	OccurredAt  time.Time           `json:"occurred_at"`
	Transaction *domain.Transaction `json:"transaction"`
}

// KafkaPublisher announces completed sales on a topic, keyed by transaction
// id.
type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
}

func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w, now: time.Now}
}

func (p *KafkaPublisher) PublishSale(ctx context.Context, tx *domain.Transaction) error {
	payload, err := json.Marshal(SaleEvent{
		EventType:   EventSaleCompleted,
		OccurredAt:  p.now().UTC(),
		Transaction: tx,
	})
	if err != nil {
		return fmt.Errorf("marshal sale event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(tx.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventSaleCompleted)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish sale %s: %w", tx.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Noop drops every event. Used when no brokers are configured.
type Noop struct{}

func (Noop) PublishSale(context.Context, *domain.Transaction) error { return nil }

func (Noop) Close() error { return nil }
