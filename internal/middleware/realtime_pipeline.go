package middleware

import (
	"context"
	"math"
	"sync"
	"time"

	domrepo "github.com/duke524-dev/synth-subnet/internal/domain/repository"
)

// TickSink is the minimal downstream interface the pipeline feeds.
type TickSink interface {
	Process(ctx context.Context, tick domrepo.Tick)
}

// TickPipeline sits between the price stream and the volatility processor.
// It validates ticks, throttles per-asset rates, and smooths bursts through
// a bounded buffer so a flood on one asset cannot starve the others.
type TickPipeline struct {
	sink    TickSink
	metrics domrepo.Metrics
	maxRPS  int
	bufSize int
	bufCh   chan domrepo.Tick
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
	tokens  map[string]*tokenState
}

type tokenState struct {
	count  int
	window time.Time
}

type PipelineOption func(*TickPipeline)

// WithMaxRPS sets the max ticks per second per asset.
func WithMaxRPS(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the burst buffer size.
func WithBufferSize(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewTickPipeline creates a new pipeline.
func NewTickPipeline(sink TickSink, metrics domrepo.Metrics, opts ...PipelineOption) *TickPipeline {
	p := &TickPipeline{
		sink:    sink,
		metrics: metrics,
		maxRPS:  20,
		bufSize: 1000,
		stopCh:  make(chan struct{}),
		tokens:  make(map[string]*tokenState),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan domrepo.Tick, p.bufSize)
	return p
}

// Start launches the background drain of buffered ticks.
func (p *TickPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case tick := <-p.bufCh:
				p.sink.Process(ctx, tick)
			}
		}
	}()
}

// Stop stops the background drain.
func (p *TickPipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	close(p.stopCh)
}

// Process validates and throttles one tick, then enqueues it. A full buffer
// drops the tick; ticks are dense enough that the next one supersedes it.
func (p *TickPipeline) Process(ctx context.Context, tick domrepo.Tick) {
	if tick.Asset == "" || tick.Price <= 0 || math.IsNaN(tick.Price) || math.IsInf(tick.Price, 0) || tick.TS.IsZero() {
		p.metrics.RecordError("pipeline_validate")
		return
	}
	if !p.allow(tick.Asset, time.Now()) {
		p.metrics.RecordError("pipeline_throttle")
		return
	}

	select {
	case p.bufCh <- tick:
	default:
		p.metrics.RecordError("pipeline_buffer_full")
	}
}

// allow enforces the per-asset rate using a 1-second fixed window.
func (p *TickPipeline) allow(asset string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.tokens[asset]
	if !ok {
		p.tokens[asset] = &tokenState{count: 1, window: now}
		return true
	}
	if now.Sub(st.window) >= time.Second {
		st.window = now
		st.count = 1
		return true
	}
	if st.count >= p.maxRPS {
		return false
	}
	st.count++
	return true
}
