package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/notifile/notifile/cfg"
	"github.com/notifile/notifile/publisher"
)

// Sync events are sparse, a handful per resync at most, so the writer
// flushes every message immediately instead of waiting for a batch.
const kafkaWriteTimeout = 10 * time.Second

func init() {
	// Register kafka sink factory
	publisher.RegisterSink("kafka", func(config cfg.SinkConfiguration) (publisher.Sink, error) {
		return NewKafkaSink(config.Brokers)
	})
}

// KafkaSink publishes sync events to Kafka. Messages are keyed by
// target name, so every event for one file lands on the same
// partition and consumers see them in sync order.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink opens a writer against the given brokers. Topics are
// auto-created on first publish and writes wait for all in-sync
// replicas to acknowledge.
func NewKafkaSink(brokers []string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker address")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              1,
		WriteTimeout:           kafkaWriteTimeout,
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}

	return &KafkaSink{writer: writer}, nil
}

// Publish writes one message, keyed by target name. Retries and
// backoff live in the publisher worker, so a plain background context
// bounded by the writer's own timeout is enough here.
func (k *KafkaSink) Publish(topic, key string, value []byte) error {
	return k.writer.WriteMessages(context.Background(), kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
}

// Close releases resources held by the KafkaSink
func (k *KafkaSink) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
