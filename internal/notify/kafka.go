// Package notify publishes approval lifecycle events.
//
// The Kafka publisher is fire-and-forget from the caller's perspective:
// delivery problems are logged, never returned, so a broker outage cannot
// block request resolution. The noop notifier serves deployments without a
// broker and tests.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/wardstone/gatekeeper/internal/types"
)

// Event is the wire form of a lifecycle notification.
type Event struct {
	EventType string          `json:"event_type"` // request.created, request.resolved
	RequestID types.RequestID `json:"request_id"`
	UserID    string          `json:"user_id"`
	Title     string          `json:"title"`
	Trigger   types.Trigger   `json:"trigger"`
	Status    types.Status    `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
}

// KafkaConfig holds publisher configuration.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	Compression  string
}

// KafkaNotifier publishes events to a Kafka topic, keyed by request id so
// one request's events stay ordered within a partition.
type KafkaNotifier struct {
	writer *kafka.Writer
	topic  string
	logger *zap.Logger
}

// NewKafkaNotifier creates the Kafka publisher.
func NewKafkaNotifier(cfg KafkaConfig, logger *zap.Logger) *KafkaNotifier {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequireOne,
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &KafkaNotifier{writer: writer, topic: cfg.Topic, logger: logger}
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// RequestCreated publishes a request.created event.
func (n *KafkaNotifier) RequestCreated(ctx context.Context, req *types.ApprovalRequest) {
	n.publish(ctx, "request.created", req)
}

// RequestResolved publishes a request.resolved event.
func (n *KafkaNotifier) RequestResolved(ctx context.Context, req *types.ApprovalRequest) {
	n.publish(ctx, "request.resolved", req)
}

func (n *KafkaNotifier) publish(ctx context.Context, eventType string, req *types.ApprovalRequest) {
	event := Event{
		EventType: eventType,
		RequestID: req.ID,
		UserID:    req.UserID,
		Title:     req.Title,
		Trigger:   req.Trigger,
		Status:    req.Status,
		Timestamp: time.Now().UTC(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("failed to encode notification", zap.Error(err))
		return
	}

	msg := kafka.Message{
		Topic: n.topic,
		Key:   []byte(req.ID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
			{Key: "status", Value: []byte(req.Status)},
		},
	}

	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		n.logger.Error("failed to publish notification",
			zap.String("event_type", eventType),
			zap.String("request_id", string(req.ID)),
			zap.Error(err))
		return
	}

	n.logger.Debug("published notification",
		zap.String("event_type", eventType),
		zap.String("request_id", string(req.ID)))
}
