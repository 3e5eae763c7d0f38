package kafka

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"equilex/internal/platform/config"
)

// Producer publishes engine events to the synchronizer's Kafka topic.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer builds a Kafka producer from configuration. Returns nil when no
// brokers are configured (the synchronizer falls back to HTTP polling).
func NewProducer(cfg config.KafkaConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &Producer{client: client, topic: cfg.Topic}, nil
}

// Publish produces a single record synchronously. The key keeps per-entity
// ordering within a partition.
func (p *Producer) Publish(ctx context.Context, key, value []byte) error {
	record := &kgo.Record{Topic: p.topic, Key: key, Value: value}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce event: %w", err)
	}
	return nil
}

// Close flushes and shuts down the underlying client.
func (p *Producer) Close() {
	p.client.Close()
}
