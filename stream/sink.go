package stream

import (
	"context"

	"github.com/nvr-ai/go-detect/detector"
)

// Event is delivered to a Sink once per completed frame.
type Event struct {
	// Result is the full detection result.
	Result *detector.FrameResult
	// Payload holds the detections that passed the display gate.
	Payload detector.Payload
}

// Sink receives frame events in frame order.
type Sink interface {
	Deliver(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, event Event) error

// Deliver implements Sink.
func (f SinkFunc) Deliver(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// ChannelSink delivers events on a channel.
//
// Deliver blocks until the event is received or ctx is done, so a slow reader
// slows the loop down instead of piling up events. An event that fits in the
// buffer is always delivered, even when ctx is already done.
type ChannelSink struct {
	ch chan Event
}

// NewChannelSink creates a sink with the given channel buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan Event, max(buffer, 0))}
}

// Events returns the receiving side of the channel.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

// Deliver implements Sink.
func (s *ChannelSink) Deliver(ctx context.Context, event Event) error {
	select {
	case s.ch <- event:
		return nil
	default:
	}

	select {
	case s.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
