package stream

import (
	"context"
	"image/color"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/render"
	"github.com/nvr-ai/go-detect/source"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCanvas struct {
	clears atomic.Int32
}

func (c *fakeCanvas) Resize(int, int) error { return nil }
func (c *fakeCanvas) Clear() { c.clears.Add(1) }

func (c *fakeCanvas) StrokeRect(_, _, _, _ float64, _ color.Color, _ float64) error {
	return nil
}

func (c *fakeCanvas) FillRect(_, _, _, _ float64, _ color.Color) error {
	return nil
}

func (c *fakeCanvas) DrawText(string, float64, float64, color.Color) error {
	return nil
}

func (c *fakeCanvas) MeasureText(string) (float64, float64) {
	return 0, 0
}

var _ render.Canvas = (*fakeCanvas)(nil)

// fakeProcessor returns one detection per frame, or the error queued for that call.
type fakeProcessor struct {
	mu      sync.Mutex
	calls   int
	errs    map[int]error
	configs []*config.Config
	ctxErrs []error
	hook    func()
}

func (p *fakeProcessor) Process(ctx context.Context, frame images.Frame, _ render.Canvas, cfg *config.Config) (*detector.FrameResult, error) {
	p.mu.Lock()
	p.calls++
	call := p.calls
	p.configs = append(p.configs, cfg)
	hook := p.hook
	err := p.errs[call]
	p.mu.Unlock()

	if hook != nil {
		hook()
	}

	p.mu.Lock()
	p.ctxErrs = append(p.ctxErrs, ctx.Err())
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &detector.FrameResult{
		Width:  frame.Width,
		Height: frame.Height,
		Detections: []postprocess.Detection{
			{Box: images.Box{Y1: 1, X1: 2, Y2: 3, X2: 4}, Score: 0.9, Class: 0, Label: "person"},
			{Box: images.Box{Y1: 1, X1: 2, Y2: 3, X2: 4}, Score: 0.3, Class: 1, Label: "bicycle"},
		},
	}, nil
}

func (p *fakeProcessor) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func frames(available bool) source.Provider {
	frame := images.Frame{Width: 2, Height: 2, Pix: make([]byte, 16)}
	return source.ProviderFunc(func(context.Context) (images.Frame, bool, error) {
		if !available {
			return images.Frame{}, false, nil
		}
		return frame, true, nil
	})
}

func fastConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.New(config.Options{TickInterval: config.Ptr(time.Millisecond)})
	require.NoError(t, err)
	return cfg
}

func runLoop(ctx context.Context, l *Loop) <-chan error {
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
		return nil
	}
}

func TestLoopDeliversFramesInOrder(t *testing.T) {
	sink := NewChannelSink(0)
	l, err := NewLoop(&fakeProcessor{}, frames(true), &fakeCanvas{}, WithConfig(fastConfig(t)), WithSink(sink))
	require.NoError(t, err)
	assert.Equal(t, StateIdle, l.State())

	done := runLoop(context.Background(), l)

	for want := uint64(1); want <= 3; want++ {
		select {
		case ev := <-sink.Events():
			assert.Equal(t, want, ev.Result.Sequence)
			// Only the detection above the display threshold is in the payload.
			assert.Equal(t, 1, ev.Payload.Len())
			assert.Equal(t, []string{"person"}, ev.Payload.Labels)
			assert.Equal(t, []float32{1, 2, 3, 4}, ev.Payload.Boxes)
		case <-time.After(5 * time.Second):
			t.Fatal("no event")
		}
	}

	l.Stop()
	assert.NoError(t, wait(t, done))
	assert.Equal(t, StateStopped, l.State())
	assert.GreaterOrEqual(t, testutil.ToFloat64(l.Metrics().Frames), 3.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(l.Metrics().Detections), 6.0)
}

func TestLoopClearsCanvasWithoutFrame(t *testing.T) {
	canvas := &fakeCanvas{}
	processor := &fakeProcessor{}
	l, err := NewLoop(processor, frames(false), canvas, WithConfig(fastConfig(t)))
	require.NoError(t, err)

	done := runLoop(context.Background(), l)
	require.Eventually(t, func() bool { return canvas.clears.Load() >= 3 }, 5*time.Second, time.Millisecond)
	l.Stop()
	require.NoError(t, wait(t, done))

	assert.Zero(t, processor.Calls())
	assert.GreaterOrEqual(t, testutil.ToFloat64(l.Metrics().Unavailable), 3.0)
	assert.Zero(t, testutil.ToFloat64(l.Metrics().Frames))
}

func TestLoopContinuesAfterErrors(t *testing.T) {
	var calls atomic.Int32
	frame := images.Frame{Width: 2, Height: 2, Pix: make([]byte, 16)}
	provider := source.ProviderFunc(func(context.Context) (images.Frame, bool, error) {
		if calls.Add(1) == 1 {
			return images.Frame{}, false, errors.New("camera unplugged")
		}
		return frame, true, nil
	})
	processor := &fakeProcessor{errs: map[int]error{1: errors.New("inference failed")}}

	var mu sync.Mutex
	var sequences []uint64
	sink := SinkFunc(func(_ context.Context, ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		sequences = append(sequences, ev.Result.Sequence)
		return nil
	})

	canvas := &fakeCanvas{}
	l, err := NewLoop(processor, provider, canvas, WithConfig(fastConfig(t)), WithSink(sink))
	require.NoError(t, err)

	done := runLoop(context.Background(), l)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(sequences) >= 2
	}, 5*time.Second, time.Millisecond)
	l.Stop()
	require.NoError(t, wait(t, done))

	mu.Lock()
	defer mu.Unlock()
	// The failed frame consumed sequence 1.
	assert.Equal(t, []uint64{2, 3}, sequences[:2])
	assert.Equal(t, 1.0, testutil.ToFloat64(l.Metrics().Errors.WithLabelValues("frame")))
	assert.Equal(t, 1.0, testutil.ToFloat64(l.Metrics().Errors.WithLabelValues("process")))
	assert.Equal(t, int32(1), canvas.clears.Load())
}

func TestLoopStopCompletesInFlightTick(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	processor := &fakeProcessor{hook: func() {
		once.Do(func() { close(started) })
		<-release
	}}

	var delivered atomic.Int32
	sink := SinkFunc(func(context.Context, Event) error {
		delivered.Add(1)
		return nil
	})

	l, err := NewLoop(processor, frames(true), &fakeCanvas{}, WithConfig(fastConfig(t)), WithSink(sink))
	require.NoError(t, err)

	done := runLoop(context.Background(), l)
	<-started
	assert.Equal(t, StateProcessing, l.State())

	l.Stop()
	close(release)
	require.NoError(t, wait(t, done))

	assert.Equal(t, 1, processor.Calls(), "no tick may start after a stop")
	assert.Equal(t, int32(1), delivered.Load())
	processor.mu.Lock()
	assert.NoError(t, processor.ctxErrs[0], "in-flight processing must not observe the stop")
	processor.mu.Unlock()
	assert.Equal(t, StateStopped, l.State())
}

func TestLoopStopKeepsCompletedFrameEvent(t *testing.T) {
	for range 50 {
		started := make(chan struct{})
		release := make(chan struct{})
		var once sync.Once
		processor := &fakeProcessor{hook: func() {
			once.Do(func() { close(started) })
			<-release
		}}

		sink := NewChannelSink(8)
		l, err := NewLoop(processor, frames(true), &fakeCanvas{}, WithConfig(fastConfig(t)), WithSink(sink))
		require.NoError(t, err)

		done := runLoop(context.Background(), l)
		<-started
		l.Stop()
		close(release)
		require.NoError(t, wait(t, done))

		require.Len(t, sink.Events(), 1, "the frame completed before the stop must be delivered")
		ev := <-sink.Events()
		assert.Equal(t, uint64(1), ev.Result.Sequence)
	}
}

func TestChannelSinkDeliversBufferedAfterCancel(t *testing.T) {
	sink := NewChannelSink(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, sink.Deliver(ctx, Event{}))
	assert.ErrorIs(t, sink.Deliver(ctx, Event{}), context.Canceled, "a full buffer gives way to ctx")
}

func TestLoopContextCancel(t *testing.T) {
	canvas := &fakeCanvas{}
	l, err := NewLoop(&fakeProcessor{}, frames(false), canvas, WithConfig(fastConfig(t)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := runLoop(ctx, l)
	require.Eventually(t, func() bool { return canvas.clears.Load() >= 1 }, 5*time.Second, time.Millisecond)
	cancel()

	assert.ErrorIs(t, wait(t, done), context.Canceled)
	assert.Equal(t, StateStopped, l.State())
}

func TestLoopStopBeforeRun(t *testing.T) {
	var calls atomic.Int32
	provider := source.ProviderFunc(func(context.Context) (images.Frame, bool, error) {
		calls.Add(1)
		return images.Frame{}, false, nil
	})
	l, err := NewLoop(&fakeProcessor{}, provider, &fakeCanvas{})
	require.NoError(t, err)

	l.Stop()
	l.Stop()
	assert.NoError(t, l.Run(context.Background()))
	assert.Zero(t, calls.Load())
	assert.Equal(t, StateStopped, l.State())

	assert.Error(t, l.Run(context.Background()), "a loop runs once")
}

func TestLoopUpdateConfig(t *testing.T) {
	processor := &fakeProcessor{}
	l, err := NewLoop(processor, frames(true), &fakeCanvas{}, WithConfig(fastConfig(t)))
	require.NoError(t, err)

	before := l.Config()
	err = l.UpdateConfig(config.Options{ScoreThreshold: config.Ptr[float32](2)})
	assert.ErrorIs(t, err, config.ErrInvalid)
	assert.Same(t, before, l.Config(), "rejected updates keep the prior configuration")

	require.NoError(t, l.UpdateConfig(config.Options{ScoreThreshold: config.Ptr[float32](0.8)}))
	assert.Equal(t, float32(0.8), l.Config().ScoreThreshold)
	assert.Equal(t, time.Millisecond, l.Config().TickInterval, "unspecified fields keep their value")

	done := runLoop(context.Background(), l)
	require.Eventually(t, func() bool { return processor.Calls() >= 1 }, 5*time.Second, time.Millisecond)
	l.Stop()
	require.NoError(t, wait(t, done))

	processor.mu.Lock()
	defer processor.mu.Unlock()
	assert.Equal(t, float32(0.8), processor.configs[0].ScoreThreshold)
}

func TestNewLoop(t *testing.T) {
	_, err := NewLoop(nil, frames(true), &fakeCanvas{})
	assert.Error(t, err)
	_, err = NewLoop(&fakeProcessor{}, nil, &fakeCanvas{})
	assert.Error(t, err)
	_, err = NewLoop(&fakeProcessor{}, frames(true), nil)
	assert.Error(t, err)

	l, err := NewLoop(&fakeProcessor{}, frames(true), &fakeCanvas{})
	require.NoError(t, err)
	assert.NotEmpty(t, l.ID())
	assert.Equal(t, config.DefaultConfig().TickInterval, l.Config().TickInterval)

	reg := prometheus.NewRegistry()
	_, err = NewLoop(&fakeProcessor{}, frames(true), &fakeCanvas{}, WithID("cam-1"), WithRegisterer(reg))
	require.NoError(t, err)
	_, err = NewLoop(&fakeProcessor{}, frames(true), &fakeCanvas{}, WithID("cam-1"), WithRegisterer(reg))
	assert.Error(t, err, "two loops cannot share an id in one registry")
}

func TestChannelSinkHonorsContext(t *testing.T) {
	sink := NewChannelSink(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sink.Deliver(ctx, Event{}), context.Canceled)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "waiting-for-next-tick", StateWaitingForNextTick.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "unknown", State(42).String())
}
