// Package stream - Cooperative frame loop driving detection over a frame provider.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/render"
	"github.com/nvr-ai/go-detect/source"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Processor detects objects in a frame and renders them onto a canvas.
// *detector.Detector implements it.
type Processor interface {
	Process(ctx context.Context, frame images.Frame, canvas render.Canvas, cfg *config.Config) (*detector.FrameResult, error)
}

// Option configures a Loop.
type Option func(*loopOptions)

type loopOptions struct {
	id         string
	cfg        *config.Config
	sink       Sink
	logger     *zap.Logger
	registerer prometheus.Registerer
}

// WithID sets the loop id used in logs and metrics. A random UUID is used otherwise.
func WithID(id string) Option {
	return func(o *loopOptions) { o.id = id }
}

// WithConfig sets the initial configuration. The default configuration is used otherwise.
func WithConfig(cfg *config.Config) Option {
	return func(o *loopOptions) { o.cfg = cfg }
}

// WithSink sets the receiver of frame events.
func WithSink(sink Sink) Option {
	return func(o *loopOptions) { o.sink = sink }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *loopOptions) { o.logger = logger }
}

// WithRegisterer registers the loop metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *loopOptions) { o.registerer = reg }
}

// Loop pulls frames from a provider at a fixed pace, processes them and
// renders the detections onto its canvas.
//
// Ticks never overlap: the next tick is scheduled only once the current one
// has finished, so an overloaded loop runs at a lower rate instead of queuing
// work. A stop request is honoured at the next tick boundary; the tick in
// flight always runs to completion.
type Loop struct {
	id        string
	processor Processor
	provider  source.Provider
	canvas    render.Canvas
	sink      Sink
	logger    *zap.Logger
	metrics   *Metrics

	cfg   atomic.Pointer[config.Config]
	state atomic.Int32

	mu      sync.Mutex
	running bool
	stopped bool
	cancel  context.CancelFunc

	sequence uint64
}

// NewLoop creates a loop.
//
// Arguments:
//   - processor: Runs detection and rendering for one frame.
//   - provider: Supplies frames.
//   - canvas: The drawing surface owned by the loop.
//   - opts: Loop options.
//
// Returns:
//   - *Loop: The loop, in StateIdle.
//   - error: An error if an argument is missing or metrics cannot be registered.
//
// @example
// loop, err := NewLoop(d, frames, render.NewImageCanvas(0), WithConfig(cfg))
//
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// go loop.Run(ctx)
func NewLoop(processor Processor, provider source.Provider, canvas render.Canvas, opts ...Option) (*Loop, error) {
	if processor == nil || provider == nil || canvas == nil {
		return nil, errors.New("processor, provider and canvas are required")
	}

	o := loopOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	if o.cfg == nil {
		o.cfg = config.DefaultConfig()
	}

	metrics, err := NewMetrics(o.registerer, o.id)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		id:        o.id,
		processor: processor,
		provider:  provider,
		canvas:    canvas,
		sink:      o.sink,
		logger:    o.logger.With(zap.String("loop", o.id)),
		metrics:   metrics,
	}
	l.cfg.Store(o.cfg)
	l.state.Store(int32(StateIdle))
	return l, nil
}

// ID returns the loop id.
func (l *Loop) ID() string {
	return l.id
}

// State returns the current state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Metrics returns the loop's collectors.
func (l *Loop) Metrics() *Metrics {
	return l.metrics
}

// Config returns the current configuration snapshot.
func (l *Loop) Config() *config.Config {
	return l.cfg.Load()
}

// UpdateConfig merges opts into the current configuration.
//
// The new snapshot takes effect at the next tick. When the merged result is
// invalid the current configuration is kept and an error wrapping
// config.ErrInvalid is returned.
func (l *Loop) UpdateConfig(opts config.Options) error {
	for {
		current := l.cfg.Load()
		next, err := current.Merge(opts)
		if err != nil {
			return err
		}
		if l.cfg.CompareAndSwap(current, next) {
			l.logger.Info("configuration updated")
			return nil
		}
	}
}

// Stop requests the loop to stop at the next tick boundary. It never blocks
// and may be called any number of times, before or during Run.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopped = true
	if l.cancel != nil {
		l.cancel()
	}
}

// Run drives the loop until Stop is called or ctx is done.
//
// The first tick starts immediately. Run returns nil after Stop and ctx.Err()
// when ctx ends the loop. A loop runs at most once.
func (l *Loop) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return errors.New("loop already started")
	}
	l.running = true
	l.cancel = cancel
	if l.stopped {
		cancel()
	}
	l.mu.Unlock()

	defer l.setState(StateStopped)

	l.logger.Info("loop started")
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-runCtx.Done():
			return l.exit(ctx)
		case <-timer.C:
		}
		// Both channels may be ready; a stop always wins over a new tick.
		if runCtx.Err() != nil {
			return l.exit(ctx)
		}

		l.tick(runCtx)

		l.setState(StateWaitingForNextTick)
		timer.Reset(l.cfg.Load().TickInterval)
	}
}

func (l *Loop) exit(ctx context.Context) error {
	l.logger.Info("loop stopped", zap.Uint64("frames", l.sequence))
	return ctx.Err()
}

// tick processes one frame. Processing is detached from cancellation so an
// in-flight frame always completes; only sink delivery observes runCtx.
func (l *Loop) tick(runCtx context.Context) {
	ctx := context.WithoutCancel(runCtx)
	cfg := l.cfg.Load()

	l.setState(StateRequestingFrame)
	frame, ok, err := l.provider.Next(ctx)
	if err != nil {
		l.metrics.Errors.WithLabelValues("frame").Inc()
		l.logger.Warn("frame provider failed", zap.Error(err))
	}
	if err != nil || !ok {
		l.metrics.Unavailable.Inc()
		l.canvas.Clear()
		return
	}

	l.setState(StateProcessing)
	l.sequence++
	seq := l.sequence
	start := time.Now()

	result, err := l.processor.Process(ctx, frame, l.canvas, cfg)
	l.metrics.Duration.Observe(time.Since(start).Seconds())
	if err != nil {
		l.metrics.Errors.WithLabelValues("process").Inc()
		l.logger.Error("frame processing failed", zap.Uint64("sequence", seq), zap.Error(err))
	}
	if result == nil {
		return
	}

	result.Sequence = seq
	l.metrics.Frames.Inc()
	l.metrics.Detections.Add(float64(len(result.Detections)))
	l.logger.Debug("frame processed",
		zap.Uint64("sequence", seq),
		zap.Int("detections", len(result.Detections)),
		zap.Duration("elapsed", result.Elapsed),
	)

	if l.sink == nil {
		return
	}
	event := Event{Result: result, Payload: result.Payload(cfg)}
	if err := l.sink.Deliver(runCtx, event); err != nil {
		l.metrics.Errors.WithLabelValues("sink").Inc()
		l.logger.Warn("frame delivery failed", zap.Uint64("sequence", seq), zap.Error(err))
	}
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}
