package stream

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the Prometheus collectors of one loop. Each collector carries
// the loop id as a constant label.
type Metrics struct {
	Frames      prometheus.Counter
	Unavailable prometheus.Counter
	Errors      *prometheus.CounterVec
	Detections  prometheus.Counter
	Duration    prometheus.Histogram
}

// NewMetrics creates the collectors for a loop and registers them with reg.
//
// Arguments:
//   - reg: The registerer; nil leaves the collectors unregistered.
//   - loopID: The value of the "loop" label.
//
// Returns:
//   - *Metrics: The collectors.
//   - error: An error if registration fails.
func NewMetrics(reg prometheus.Registerer, loopID string) (*Metrics, error) {
	labels := prometheus.Labels{"loop": loopID}

	m := &Metrics{
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "detect",
			Subsystem:   "stream",
			Name:        "frames_total",
			Help:        "Frames processed.",
			ConstLabels: labels,
		}),
		Unavailable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "detect",
			Subsystem:   "stream",
			Name:        "frames_unavailable_total",
			Help:        "Ticks on which no frame was available.",
			ConstLabels: labels,
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "detect",
			Subsystem:   "stream",
			Name:        "errors_total",
			Help:        "Tick errors by stage.",
			ConstLabels: labels,
		}, []string{"stage"}),
		Detections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "detect",
			Subsystem:   "stream",
			Name:        "detections_total",
			Help:        "Detections kept after suppression.",
			ConstLabels: labels,
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "detect",
			Subsystem:   "stream",
			Name:        "frame_duration_seconds",
			Help:        "Time spent processing one frame.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Frames, m.Unavailable, m.Errors, m.Detections, m.Duration} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register stream metrics")
		}
	}
	return m, nil
}
