package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lodging/pkg/logger"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

// EventMessage is the payment-events record consumed by notifications.
type EventMessage struct {
	EventID           uint      `json:"event_id"`
	EventType         EventType `json:"event_type"`
	ReservationID     uuid.UUID `json:"reservation_id"`
	ReservationNumber string    `json:"reservation_number"`
	RoomID            string    `json:"room_id"`
	CheckIn           string    `json:"check_in"`
	CheckOut          string    `json:"check_out"`
	GuestName         string    `json:"guest_name"`
	GuestEmail        string    `json:"guest_email"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	SessionToken      string    `json:"session_token"`
	OccurredAt        time.Time `json:"occurred_at"`
}

// EventPublisher ships committed payment events to other services.
type EventPublisher interface {
	Publish(ctx context.Context, msg *EventMessage) error
	Close() error
}

// KafkaPublisherConfig contains configuration for the payment event producer
type KafkaPublisherConfig struct {
	Brokers      []string
	Topic        string
	RetryMax     int
	Timeout      time.Duration
	RequiredAcks sarama.RequiredAcks
	Idempotent   bool
}

// DefaultKafkaPublisherConfig returns a default producer configuration
func DefaultKafkaPublisherConfig() *KafkaPublisherConfig {
	return &KafkaPublisherConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "payment-events",
		RetryMax:     3,
		Timeout:      10 * time.Second,
		RequiredAcks: sarama.WaitForAll,
		Idempotent:   true,
	}
}

type kafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher creates a synchronous producer for payment events.
func NewKafkaPublisher(config *KafkaPublisherConfig) (EventPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = config.RequiredAcks
	saramaConfig.Producer.Retry.Max = config.RetryMax
	saramaConfig.Producer.Timeout = config.Timeout
	saramaConfig.Producer.Idempotent = config.Idempotent
	if config.Idempotent {
		saramaConfig.Net.MaxOpenRequests = 1
	}
	// Keyed by reservation so one reservation's events stay ordered.
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.GetDefault().Info("Kafka payment event producer created", "topic", config.Topic)
	return &kafkaPublisher{producer: producer, topic: config.Topic}, nil
}

func (p *kafkaPublisher) Publish(ctx context.Context, msg *EventMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal payment event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.ReservationID.String()),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(msg.EventType)},
			{Key: []byte("producer"), Value: []byte("lodging-payments")},
		},
		Timestamp: msg.OccurredAt,
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to send payment event to Kafka: %w", err)
	}

	logger.GetDefault().Debug("Payment event published",
		"topic", p.topic,
		"partition", partition,
		"offset", offset,
		"event_type", string(msg.EventType),
	)
	return nil
}

func (p *kafkaPublisher) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}
