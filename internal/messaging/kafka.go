package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Aidin1998/investex/pkg/metrics"
	"github.com/Aidin1998/investex/pkg/models"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConfig contains configuration for Kafka connection
type KafkaConfig struct {
	Brokers      []string      `json:"brokers"`
	Topic        string        `json:"topic"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BatchTimeout time.Duration `json:"batch_timeout"`
	RequiredAcks int           `json:"required_acks"`
	RetryMax     int           `json:"retry_max"`
}

// DefaultKafkaConfig returns default producer configuration
func DefaultKafkaConfig() *KafkaConfig {
	return &KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		Topic:        "investex.notifications",
		WriteTimeout: 5 * time.Second,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: int(kafka.RequireOne),
		RetryMax:     3,
	}
}

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NotificationPublisher fans stored notifications out to a Kafka topic.
type NotificationPublisher struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewNotificationPublisher creates a publisher backed by a kafka.Writer.
func NewNotificationPublisher(config *KafkaConfig, logger *zap.Logger) *NotificationPublisher {
	if config == nil {
		config = DefaultKafkaConfig()
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Topic:                  config.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           config.BatchTimeout,
		WriteTimeout:           config.WriteTimeout,
		RequiredAcks:           kafka.RequiredAcks(config.RequiredAcks),
		MaxAttempts:            config.RetryMax,
		AllowAutoTopicCreation: true,
	}

	return newPublisher(writer, config.Topic, logger)
}

func newPublisher(w messageWriter, topic string, logger *zap.Logger) *NotificationPublisher {
	return &NotificationPublisher{
		writer: w,
		topic:  topic,
		logger: logger.Named("notification-publisher"),
	}
}

// Publish writes one notification message.
func (p *NotificationPublisher) Publish(ctx context.Context, n *models.Notification) error {
	msg := NewNotificationMessage(n)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Key()),
		Value: data,
		Time:  msg.Timestamp,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(msg.Type)},
			{Key: "category", Value: []byte(msg.Category)},
		},
	})
	if err != nil {
		metrics.NotificationsPublished.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to publish notification %s to %s: %w", n.ID, p.topic, err)
	}

	metrics.NotificationsPublished.WithLabelValues("ok").Inc()
	p.logger.Debug("Notification published",
		zap.String("notification_id", n.ID.String()),
		zap.String("category", n.Category))
	return nil
}

// Close flushes and closes the writer.
func (p *NotificationPublisher) Close() error {
	return p.writer.Close()
}
