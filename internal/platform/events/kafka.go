package events

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Hero-Alpha/KrishiSetu/internal/platform/config"
	"github.com/Hero-Alpha/KrishiSetu/internal/services"
)

// KafkaPublisher writes order events to a Kafka topic keyed by order id, so every event for an
// order lands on the same partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

var _ services.OrderEventPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher dials the configured brokers with a synchronous producer.
func NewKafkaPublisher(cfg config.KafkaConfig, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka order publisher: brokers are required")
	}
	saramaCfg := sarama.NewConfig()
	saramaCfg.ClientID = cfg.ClientID
	saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	saramaCfg.Producer.Retry.Max = 5
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Idempotent = true
	saramaCfg.Net.MaxOpenRequests = 1
	saramaCfg.Version = sarama.V2_6_0_0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("kafka order publisher: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, cfg.Topic, logger)
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *zap.Logger) (*KafkaPublisher, error) {
	if producer == nil {
		return nil, errors.New("kafka order publisher: producer is required")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, errors.New("kafka order publisher: topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaPublisher{producer: producer, topic: topic, logger: logger}, nil
}

// PublishOrderEvent sends the event and waits for all in-sync replicas.
func (p *KafkaPublisher) PublishOrderEvent(_ context.Context, event services.OrderEvent) error {
	envelope := NewEnvelope(event)
	data, err := envelope.Marshal()
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := envelope.Attributes()
	headers := make([]sarama.RecordHeader, 0, len(attrs))
	for key, value := range attrs {
		headers = append(headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic:   p.topic,
		Key:     sarama.StringEncoder(envelope.OrderID),
		Value:   sarama.ByteEncoder(data),
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("publish order event: %w", err)
	}

	p.logger.Debug("order event published",
		zap.String("topic", p.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("order_id", envelope.OrderID),
		zap.String("event_type", envelope.Type),
	)
	return nil
}

// Close shuts the producer down.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
