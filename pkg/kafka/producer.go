// Package kafka wraps segmentio/kafka-go with a JSON-publishing producer and
// a worker-pool consumer with retries, DLQ, and Prometheus instrumentation.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// ProducerOption configures the producer.
type ProducerOption func(*producerConfig)

type producerConfig struct {
	brokers      []string
	requiredAcks int
	compression  string
	batchTimeout time.Duration
	hashByKey    bool
}

// WithBrokers sets the broker addresses.
func WithBrokers(brokers []string) ProducerOption {
	return func(c *producerConfig) { c.brokers = brokers }
}

// WithCompression selects the compression codec (gzip, snappy, lz4, zstd).
func WithCompression(codec string) ProducerOption {
	return func(c *producerConfig) { c.compression = codec }
}

// WithRequiredAcks sets the ack level (-1 = all replicas).
func WithRequiredAcks(acks int) ProducerOption {
	return func(c *producerConfig) { c.requiredAcks = acks }
}

// WithHashByKey routes messages by key hash so records sharing a key keep
// their order on one partition.
func WithHashByKey(on bool) ProducerOption {
	return func(c *producerConfig) { c.hashByKey = on }
}

// WithBatchTimeout bounds how long the writer buffers before flushing.
func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(c *producerConfig) { c.batchTimeout = d }
}

// Producer publishes JSON-encoded messages.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer builds a producer. Brokers are required.
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := &producerConfig{
		requiredAcks: -1,
		compression:  "gzip",
		batchTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.brokers) == 0 {
		return nil, fmt.Errorf("kafka producer: brokers required")
	}

	var balancer kafka.Balancer = &kafka.LeastBytes{}
	if cfg.hashByKey {
		balancer = &kafka.Hash{}
	}

	registerProducerMetrics()
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.brokers...),
			Balancer:     balancer,
			RequiredAcks: kafka.RequiredAcks(cfg.requiredAcks),
			Compression:  compressionCodec(cfg.compression),
			BatchTimeout: cfg.batchTimeout,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

// Publish sends one message. byte and string values pass through unencoded;
// anything else is marshaled to JSON.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}) error {
	payload, err := encodeValue(value)
	if err != nil {
		return err
	}

	start := time.Now()
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   key,
		Value: payload,
		Time:  start,
	})

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	producerPublished.WithLabelValues(topic, outcome).Inc()
	producerLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	return err
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		payload, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: marshal value: %w", err)
		}
		return payload, nil
	}
}

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Gzip
	}
}

var (
	producerMetricsOnce sync.Once
	producerPublished   *prometheus.CounterVec
	producerLatency     *prometheus.HistogramVec
)

func registerProducerMetrics() {
	producerMetricsOnce.Do(func() {
		producerPublished = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_kafka_producer_messages_total",
			Help: "Messages published, by topic and outcome.",
		}, []string{"topic", "outcome"})
		producerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "synth_kafka_producer_publish_seconds",
			Help:    "Publish round-trip latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
	})
}
