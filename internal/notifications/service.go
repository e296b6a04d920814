package notifications

import (
	"context"
	"fmt"
	"sync"

	"lodging/internal/shared/config"
	"lodging/pkg/logger"
)

// Service runs the payment-events consumer that emails guests.
type Service struct {
	consumer  NotificationConsumer
	workers   int
	isRunning bool
	mu        sync.Mutex
}

// NewService wires the email sender and the Kafka consumer from the
// application config.
func NewService(cfg *config.Config) (*Service, error) {
	emailService, err := NewEmailService(cfg.Email)
	if err != nil {
		return nil, err
	}

	consumerConfig := DefaultConsumerConfig()
	consumerConfig.Brokers = cfg.Kafka.Brokers
	consumerConfig.Topics = []string{cfg.Kafka.PaymentEventsTopic}
	consumerConfig.GroupID = cfg.Kafka.ConsumerGroupID

	consumer, err := NewKafkaNotificationConsumer(consumerConfig, emailService)
	if err != nil {
		return nil, err
	}
	return &Service{consumer: consumer, workers: cfg.Kafka.ConsumerWorkers}, nil
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return fmt.Errorf("notification service is already running")
	}
	if err := s.consumer.StartConsumers(ctx, s.workers); err != nil {
		return fmt.Errorf("failed to start consumers: %w", err)
	}
	s.isRunning = true
	return nil
}

func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return nil
	}
	s.isRunning = false
	if err := s.consumer.Stop(); err != nil {
		return err
	}
	logger.GetDefault().Info("notification service stopped")
	return nil
}

func (s *Service) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	running := s.isRunning
	s.mu.Unlock()
	if !running {
		return fmt.Errorf("notification service is not running")
	}
	return s.consumer.HealthCheck(ctx)
}
