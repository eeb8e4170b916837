package kafka

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// MessageHandler consumes payloads from one topic.
type MessageHandler interface {
	Topic() string
	Handle(ctx context.Context, data []byte) error
}

// ConsumerOption configures the consumer.
type ConsumerOption func(*consumerConfig)

type consumerConfig struct {
	brokers    []string
	groupID    string
	workers    int
	bufferSize int
	retryMax   int
	backoffMin time.Duration
	backoffMax time.Duration
	dlqTopic   string
	minBytes   int
	maxBytes   int
}

// WithConsumerBrokers sets the broker addresses.
func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *consumerConfig) { c.brokers = brokers }
}

// WithConsumerGroupID sets the consumer group.
func WithConsumerGroupID(groupID string) ConsumerOption {
	return func(c *consumerConfig) { c.groupID = groupID }
}

// WithConsumerWorkers sets the handler worker count.
func WithConsumerWorkers(n int) ConsumerOption {
	return func(c *consumerConfig) { c.workers = n }
}

// WithConsumerBufferSize sets the pending-message channel capacity.
func WithConsumerBufferSize(n int) ConsumerOption {
	return func(c *consumerConfig) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// WithConsumerRetry bounds handler retries and the backoff window.
func WithConsumerRetry(max int, backoffMin, backoffMax time.Duration) ConsumerOption {
	return func(c *consumerConfig) {
		c.retryMax = max
		c.backoffMin = backoffMin
		c.backoffMax = backoffMax
	}
}

// WithConsumerDLQ names a dead-letter topic for messages that exhaust
// retries. Empty disables the DLQ.
func WithConsumerDLQ(topic string) ConsumerOption {
	return func(c *consumerConfig) { c.dlqTopic = topic }
}

// WithConsumerFetch sets fetch size bounds in bytes.
func WithConsumerFetch(minBytes, maxBytes int) ConsumerOption {
	return func(c *consumerConfig) {
		c.minBytes = minBytes
		c.maxBytes = maxBytes
	}
}

type inbound struct {
	topic string
	msg   kafka.Message
}

// Consumer reads registered topics and dispatches to handlers through a
// bounded worker pool. Offsets commit after a successful handle or after the
// message lands in the DLQ, so a poison message cannot wedge a partition.
type Consumer struct {
	cfg      *consumerConfig
	handlers map[string]MessageHandler
	readers  map[string]*kafka.Reader
	pending  chan inbound
	dlq      *kafka.Writer
	hook     ConsumerHook

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewConsumer builds a consumer. Brokers are required; handlers are attached
// with RegisterHandler before Start.
func NewConsumer(opts ...ConsumerOption) (*Consumer, error) {
	cfg := &consumerConfig{
		groupID:    "default",
		workers:    1,
		bufferSize: 64,
		retryMax:   3,
		backoffMin: 50 * time.Millisecond,
		backoffMax: 2 * time.Second,
		minBytes:   1,
		maxBytes:   10 << 20,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer: brokers required")
	}

	c := &Consumer{
		cfg:      cfg,
		handlers: make(map[string]MessageHandler),
		readers:  make(map[string]*kafka.Reader),
		pending:  make(chan inbound, cfg.bufferSize),
		hook:     NoopHook{},
		stop:     make(chan struct{}),
	}
	if cfg.dlqTopic != "" {
		c.dlq = &kafka.Writer{Addr: kafka.TCP(cfg.brokers...), Balancer: &kafka.LeastBytes{}}
	}
	registerConsumerMetrics()
	return c, nil
}

// RegisterHandler attaches a handler for its topic. Last registration wins.
func (c *Consumer) RegisterHandler(h MessageHandler) {
	c.handlers[h.Topic()] = h
}

// SetHook installs a lifecycle hook. Must be called before Start.
func (c *Consumer) SetHook(h ConsumerHook) {
	if h != nil {
		c.hook = h
	}
}

// Start opens one reader per registered topic and launches the worker pool.
func (c *Consumer) Start() error {
	if len(c.handlers) == 0 {
		return fmt.Errorf("kafka consumer: no handlers registered")
	}
	for topic := range c.handlers {
		c.readers[topic] = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  c.cfg.brokers,
			Topic:    topic,
			GroupID:  c.cfg.groupID,
			MinBytes: c.cfg.minBytes,
			MaxBytes: c.cfg.maxBytes,
		})
	}

	for i := 0; i < c.cfg.workers; i++ {
		c.wg.Add(1)
		go c.worker()
	}
	for topic, reader := range c.readers {
		c.wg.Add(1)
		go c.readLoop(topic, reader)
	}
	return nil
}

// Stop shuts the consumer down, waiting for in-flight work up to ctx.
func (c *Consumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		close(c.stop)
		close(c.pending)

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = fmt.Errorf("kafka consumer: shutdown wait: %w", ctx.Err())
		}

		for topic, reader := range c.readers {
			if cerr := reader.Close(); cerr != nil {
				log.Printf("kafka consumer: close reader %s: %v", topic, cerr)
			}
		}
		if c.dlq != nil {
			_ = c.dlq.Close()
		}
	})
	return err
}

func (c *Consumer) readLoop(topic string, reader *kafka.Reader) {
	defer c.wg.Done()
	for {
		select {
		case <-c.stop:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		msg, err := reader.ReadMessage(ctx)
		cancel()
		if err != nil {
			if !errors.Is(err, context.DeadlineExceeded) {
				log.Printf("kafka consumer: read %s: %v", topic, err)
			}
			continue
		}

		select {
		case c.pending <- inbound{topic: topic, msg: msg}:
			consumerQueueDepth.WithLabelValues(topic).Set(float64(len(c.pending)))
		case <-c.stop:
			return
		}
	}
}

func (c *Consumer) worker() {
	defer c.wg.Done()
	for in := range c.pending {
		c.process(in)
	}
}

func (c *Consumer) process(in inbound) {
	handler := c.handlers[in.topic]
	if handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("kafka consumer: handler panic on %s: %v", in.topic, r)
		}
	}()

	start := time.Now()
	var err error
	for attempt := 0; ; attempt++ {
		ctx, data, berr := c.hook.BeforeHandle(context.Background(), in.topic, in.msg, in.msg.Value)
		if berr != nil {
			err = berr
		} else {
			err = handler.Handle(ctx, data)
			c.hook.AfterHandle(ctx, in.topic, in.msg, data, err)
		}
		if err == nil || attempt >= c.cfg.retryMax {
			break
		}
		select {
		case <-time.After(jitteredBackoff(c.cfg.backoffMin, c.cfg.backoffMax, attempt)):
		case <-c.stop:
			return
		}
	}

	if err != nil {
		c.hook.OnError(context.Background(), in.topic, in.msg, in.msg.Value, err)
		consumerFailures.WithLabelValues(in.topic).Inc()
		log.Printf("kafka consumer: handle %s failed: %v", in.topic, err)
		if !c.sendToDLQ(in) {
			return // no DLQ: leave the offset uncommitted for redelivery
		}
	}

	if reader := c.readers[in.topic]; reader != nil {
		commitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if cerr := reader.CommitMessages(commitCtx, in.msg); cerr != nil {
			log.Printf("kafka consumer: commit %s: %v", in.topic, cerr)
		}
		cancel()
	}
	consumerLatency.WithLabelValues(in.topic).Observe(time.Since(start).Seconds())
}

// sendToDLQ forwards a poison message, reporting whether the offset may be
// committed.
func (c *Consumer) sendToDLQ(in inbound) bool {
	if c.dlq == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.dlq.WriteMessages(ctx, kafka.Message{
		Topic:   c.cfg.dlqTopic,
		Value:   in.msg.Value,
		Time:    time.Now(),
		Headers: []kafka.Header{{Key: "source_topic", Value: []byte(in.topic)}},
	})
	if err != nil {
		log.Printf("kafka consumer: dlq write: %v", err)
		return false
	}
	return true
}

func jitteredBackoff(min, max time.Duration, attempt int) time.Duration {
	if min <= 0 {
		min = 50 * time.Millisecond
	}
	if max < min {
		max = min
	}
	d := min << uint(attempt)
	if d > max || d < min {
		d = max
	}
	return d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
}

var (
	consumerMetricsOnce sync.Once
	consumerQueueDepth  *prometheus.GaugeVec
	consumerFailures    *prometheus.CounterVec
	consumerLatency     *prometheus.HistogramVec
)

func registerConsumerMetrics() {
	consumerMetricsOnce.Do(func() {
		consumerQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "synth_kafka_consumer_queue_depth",
			Help: "Messages waiting for a worker.",
		}, []string{"topic"})
		consumerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "synth_kafka_consumer_failures_total",
			Help: "Messages that exhausted handler retries.",
		}, []string{"topic"})
		consumerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "synth_kafka_consumer_handle_seconds",
			Help:    "Per-message handling time including retries.",
			Buckets: prometheus.DefBuckets,
		}, []string{"topic"})
	})
}
