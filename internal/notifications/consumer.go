package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"lodging/internal/payments"
	"lodging/pkg/logger"

	"github.com/IBM/sarama"
)

type NotificationConsumer interface {
	StartConsumers(ctx context.Context, numWorkers int) error
	Stop() error
	HealthCheck(ctx context.Context) error
}

type ConsumerConfig struct {
	Brokers              []string
	GroupID              string
	Topics               []string
	SessionTimeoutMs     int
	HeartbeatMs          int
	RetryBackoffMs       int
	MaxProcessingTime    time.Duration
	AutoCommit           bool
	OffsetOldest         bool
	MaxRetries           int
	RetryBackoffDuration time.Duration
}

func DefaultConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		Brokers:              []string{"localhost:9092"},
		GroupID:              "lodging-notification-workers",
		Topics:               []string{"payment-events"},
		SessionTimeoutMs:     30000,
		HeartbeatMs:          3000,
		RetryBackoffMs:       100,
		MaxProcessingTime:    5 * time.Minute,
		AutoCommit:           true,
		OffsetOldest:         true,
		MaxRetries:           3,
		RetryBackoffDuration: time.Second,
	}
}

type KafkaNotificationConsumer struct {
	consumerGroup sarama.ConsumerGroup
	config        *ConsumerConfig
	handler       *EventHandler
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	mu            sync.Mutex
	stopped       bool
}

func NewKafkaNotificationConsumer(config *ConsumerConfig, emailService EmailService) (NotificationConsumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Group.Session.Timeout = time.Duration(config.SessionTimeoutMs) * time.Millisecond
	saramaConfig.Consumer.Group.Heartbeat.Interval = time.Duration(config.HeartbeatMs) * time.Millisecond
	saramaConfig.Consumer.Retry.Backoff = time.Duration(config.RetryBackoffMs) * time.Millisecond
	saramaConfig.Consumer.MaxProcessingTime = config.MaxProcessingTime
	saramaConfig.Consumer.Return.Errors = true

	if config.OffsetOldest {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	if config.AutoCommit {
		saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
		saramaConfig.Consumer.Offsets.AutoCommit.Interval = 1 * time.Second
	}

	consumerGroup, err := sarama.NewConsumerGroup(config.Brokers, config.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &KafkaNotificationConsumer{
		consumerGroup: consumerGroup,
		config:        config,
		handler:       NewEventHandler(emailService, config.MaxRetries, config.RetryBackoffDuration),
	}, nil
}

func (knc *KafkaNotificationConsumer) StartConsumers(ctx context.Context, numWorkers int) error {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	ctx, knc.cancel = context.WithCancel(ctx)

	go knc.handleErrors()

	for i := 0; i < numWorkers; i++ {
		knc.wg.Add(1)
		go func(workerID int) {
			defer knc.wg.Done()
			knc.runWorker(ctx, workerID)
		}(i)
	}

	logger.GetDefault().InfoWithContext(ctx, "Notification consumers started", map[string]interface{}{
		"workers": numWorkers,
		"topics":  knc.config.Topics,
	})
	return nil
}

func (knc *KafkaNotificationConsumer) runWorker(ctx context.Context, workerID int) {
	handler := &consumerGroupHandler{handler: knc.handler, workerID: workerID}

	for {
		if err := knc.consumerGroup.Consume(ctx, knc.config.Topics, handler); err != nil {
			logger.GetDefault().ErrorWithContext(ctx, "Error consuming payment events", err, map[string]interface{}{
				"worker": workerID,
			})
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (knc *KafkaNotificationConsumer) handleErrors() {
	for err := range knc.consumerGroup.Errors() {
		logger.GetDefault().WithError(err).Warn("consumer group error")
	}
}

func (knc *KafkaNotificationConsumer) Stop() error {
	knc.mu.Lock()
	defer knc.mu.Unlock()
	if knc.stopped {
		return nil
	}
	knc.stopped = true

	if knc.cancel != nil {
		knc.cancel()
	}
	knc.wg.Wait()

	if err := knc.consumerGroup.Close(); err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}
	return nil
}

func (knc *KafkaNotificationConsumer) HealthCheck(ctx context.Context) error {
	knc.mu.Lock()
	defer knc.mu.Unlock()
	if knc.stopped {
		return fmt.Errorf("consumer is stopped")
	}
	return nil
}

type consumerGroupHandler struct {
	handler  *EventHandler
	workerID int
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			ctx := logger.ContextWithRequestID(session.Context(),
				fmt.Sprintf("%s-%d-%d", message.Topic, message.Partition, message.Offset))
			if err := h.handler.Handle(ctx, message.Value); err != nil {
				logger.GetDefault().ErrorWithContext(ctx, "Payment event not delivered", err, map[string]interface{}{
					"worker":    h.workerID,
					"partition": message.Partition,
					"offset":    message.Offset,
				})
			}
			// Failed deliveries are logged and skipped; a poison message must
			// not stall the partition.
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// EventHandler turns payment events into guest emails.
type EventHandler struct {
	emailService EmailService
	maxRetries   int
	backoff      time.Duration
}

func NewEventHandler(emailService EmailService, maxRetries int, backoff time.Duration) *EventHandler {
	return &EventHandler{emailService: emailService, maxRetries: maxRetries, backoff: backoff}
}

// Handle decodes one payment-events record and sends the email it
// triggers, if any.
func (h *EventHandler) Handle(ctx context.Context, value []byte) error {
	var msg payments.EventMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal payment event: %w", err)
	}

	notification, ok := FromPaymentEvent(&msg)
	if !ok {
		return nil
	}
	notification.Status = NotificationStatusSending

	if err := h.executeWithRetry(ctx, notification); err != nil {
		notification.MarkFailed(err)
		return err
	}
	notification.MarkSent()
	return nil
}

func (h *EventHandler) executeWithRetry(ctx context.Context, notification *EmailNotification) error {
	var err error
	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		if err = h.emailService.SendNotification(ctx, notification); err == nil {
			return nil
		}
		notification.RetryCount = attempt + 1
		if attempt == h.maxRetries {
			break
		}

		delay := h.backoff * time.Duration(1<<attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", h.maxRetries+1, err)
}
