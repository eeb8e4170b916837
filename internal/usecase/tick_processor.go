package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	domrepo "github.com/duke524-dev/synth-subnet/internal/domain/repository"
	"github.com/duke524-dev/synth-subnet/internal/middleware"
	"github.com/duke524-dev/synth-subnet/internal/repository"
	"github.com/duke524-dev/synth-subnet/internal/services/volatility"
	pkgkafka "github.com/duke524-dev/synth-subnet/pkg/kafka"
	"github.com/duke524-dev/synth-subnet/pkg/logger"
)

// TickProcessor folds live ticks into the per-asset EWMA. Ticks are bucketed
// onto the 1-minute grid: the last price inside a minute is that minute's
// close, applied when the next minute's first tick arrives. Completed closes
// are also batched into ClickHouse for bootstrap lookbacks and realized-price
// alignment.
type TickProcessor struct {
	store   *volatility.Store
	boot    *volatility.Bootstrap
	closes  *repository.ClickHouseCloseStore
	metrics domrepo.Metrics
	log     *logger.Logger

	mu      sync.Mutex
	current map[string]*minuteBucket
	pending map[string][]domrepo.PricePoint
}

type minuteBucket struct {
	minute time.Time
	close  float64
}

// NewTickProcessor wires the tick path. closes may be nil when ClickHouse is
// disabled; volatility updates still proceed.
func NewTickProcessor(store *volatility.Store, boot *volatility.Bootstrap, closes *repository.ClickHouseCloseStore, metrics domrepo.Metrics, log *logger.Logger) *TickProcessor {
	return &TickProcessor{
		store:   store,
		boot:    boot,
		closes:  closes,
		metrics: metrics,
		log:     log,
		current: make(map[string]*minuteBucket),
		pending: make(map[string][]domrepo.PricePoint),
	}
}

// Process handles one tick. Malformed ticks are counted and dropped; the
// stream keeps flowing.
func (p *TickProcessor) Process(ctx context.Context, tick domrepo.Tick) {
	if tick.Asset == "" || tick.Price <= 0 || tick.TS.IsZero() {
		p.metrics.RecordError("tick_invalid")
		return
	}
	p.metrics.RecordTick(tick.Asset, tick.Price)

	minute := tick.TS.UTC().Truncate(time.Minute)

	p.mu.Lock()
	bucket, ok := p.current[tick.Asset]
	if !ok {
		p.current[tick.Asset] = &minuteBucket{minute: minute, close: tick.Price}
		p.mu.Unlock()
		return
	}
	if minute.Equal(bucket.minute) {
		bucket.close = tick.Price
		p.mu.Unlock()
		return
	}
	// Minute rolled over: bucket.close is final.
	finished := domrepo.PricePoint{TS: bucket.minute, Price: bucket.close}
	p.current[tick.Asset] = &minuteBucket{minute: minute, close: tick.Price}
	p.pending[tick.Asset] = append(p.pending[tick.Asset], finished)
	p.mu.Unlock()

	p.applyClose(ctx, tick.Asset, finished)
}

func (p *TickProcessor) applyClose(ctx context.Context, asset string, pt domrepo.PricePoint) {
	_, err := p.store.ApplyClose(asset, pt.Price, pt.TS)
	if errors.Is(err, volatility.ErrStateMissing) {
		if _, bootErr := p.boot.Ensure(ctx, asset); bootErr != nil {
			p.metrics.RecordError("bootstrap")
			p.log.Warn("bootstrap on tick failed", logger.String("asset", asset), logger.Error(bootErr))
			return
		}
		_, err = p.store.ApplyClose(asset, pt.Price, pt.TS)
	}
	if err != nil {
		p.metrics.RecordError("ewma_update")
		p.log.Warn("close rejected", logger.String("asset", asset), logger.Error(err))
	}
}

// Flush writes buffered minute closes to ClickHouse.
func (p *TickProcessor) Flush(ctx context.Context) error {
	if p.closes == nil {
		return nil
	}

	p.mu.Lock()
	batch := p.pending
	p.pending = make(map[string][]domrepo.PricePoint)
	p.mu.Unlock()

	for asset, points := range batch {
		if err := p.closes.StoreCloses(ctx, asset, points); err != nil {
			p.metrics.RecordError("closes_insert")
			// Put the batch back so the next flush retries it.
			p.mu.Lock()
			p.pending[asset] = append(points, p.pending[asset]...)
			p.mu.Unlock()
			return err
		}
	}
	return nil
}

// TickCollector drives a TickStream into the processor, reconnecting on
// stream errors and flushing closes on an interval.
type TickCollector struct {
	stream        domrepo.TickStream
	proc          *TickProcessor
	pipe          *middleware.TickPipeline
	metrics       domrepo.Metrics
	log           *logger.Logger
	flushInterval time.Duration
}

// NewTickCollector wires the collector. pipe may be nil to feed the
// processor directly, without throttling or burst buffering.
func NewTickCollector(stream domrepo.TickStream, proc *TickProcessor, pipe *middleware.TickPipeline, metrics domrepo.Metrics, log *logger.Logger, flushInterval time.Duration) *TickCollector {
	if flushInterval <= 0 {
		flushInterval = 30 * time.Second
	}
	return &TickCollector{stream: stream, proc: proc, pipe: pipe, metrics: metrics, log: log, flushInterval: flushInterval}
}

// Start connects, subscribes, and consumes in the background until ctx ends.
func (c *TickCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	ticks, errs := c.stream.Read(ctx)
	go c.consume(ctx, ticks, errs)
	go c.flushLoop(ctx)
	return nil
}

func (c *TickCollector) consume(ctx context.Context, ticks <-chan domrepo.Tick, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errs:
			if err != nil {
				c.metrics.RecordError("stream")
				c.log.Warn("tick stream error, reconnecting", logger.Error(err))
				if r, ok := c.stream.(interface{ Reconnect(context.Context) error }); ok {
					if rerr := r.Reconnect(ctx); rerr != nil {
						c.log.Error("tick stream reconnect failed", logger.Error(rerr))
						return
					}
					ticks, errs = c.stream.Read(ctx)
				}
			}
		case tick, ok := <-ticks:
			if !ok {
				continue
			}
			if c.pipe != nil {
				c.pipe.Process(ctx, tick)
			} else {
				c.proc.Process(ctx, tick)
			}
		}
	}
}

func (c *TickCollector) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := c.proc.Flush(context.Background()); err != nil {
				c.log.Warn("final close flush failed", logger.Error(err))
			}
			return
		case <-ticker.C:
			if err := c.proc.Flush(ctx); err != nil {
				c.log.Warn("close flush failed", logger.Error(err))
			}
		}
	}
}

// Stop closes the stream and halts the pipeline drain.
func (c *TickCollector) Stop() error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}

// KafkaTicksHandler feeds ticks arriving over Kafka into the same processor,
// for deployments that fan prices out through the bus instead of a direct
// websocket. Implements pkgkafka.MessageHandler.
type KafkaTicksHandler struct {
	topic string
	proc  *TickProcessor
}

// NewKafkaTicksHandler creates the handler for one topic.
func NewKafkaTicksHandler(topic string, proc *TickProcessor) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, proc: proc}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// Handle decodes {symbol, t, c} messages; t may be seconds or milliseconds.
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Symbol string  `json:"symbol"`
		T      int64   `json:"t"`
		C      float64 `json:"c"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	if m.T > 1e11 {
		m.T /= 1000
	}
	h.proc.Process(ctx, domrepo.Tick{Asset: m.Symbol, TS: time.Unix(m.T, 0).UTC(), Price: m.C})
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
