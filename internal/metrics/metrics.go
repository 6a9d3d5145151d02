// Package metrics exposes squat analysis counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ayusman/squatcoach/internal/rep"
)

const namespace = "squatcoach"

// Metrics records frame, rep and phase observations. It satisfies
// analysis.Recorder.
type Metrics struct {
	frames  *prometheus.CounterVec
	reps    *prometheus.CounterVec
	phase   *prometheus.GaugeVec
	latency prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		frames: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_total",
				Help:      "Frames analysed, by outcome.",
			},
			[]string{"status"},
		),
		reps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reps_total",
				Help:      "Completed squat reps, by form.",
			},
			[]string{"form"},
		),
		phase: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "phase",
				Help:      "1 for the current rep phase, 0 otherwise.",
			},
			[]string{"phase"},
		),
		latency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "frame_duration_seconds",
				Help:      "Time to detect, analyse and annotate one frame.",
				Buckets:   []float64{.005, .01, .02, .035, .05, .075, .1, .2, .5},
			},
		),
	}
	reg.MustRegister(m.frames, m.reps, m.phase, m.latency)
	return m
}

// RecordFrame counts one frame with the given status.
func (m *Metrics) RecordFrame(status string) {
	m.frames.WithLabelValues(status).Inc()
}

// RecordRep counts one completed rep.
func (m *Metrics) RecordRep(correct bool) {
	form := "incorrect"
	if correct {
		form = "correct"
	}
	m.reps.WithLabelValues(form).Inc()
}

// SetPhase marks p as the current phase.
func (m *Metrics) SetPhase(p rep.Phase) {
	for _, candidate := range []rep.Phase{rep.Standing, rep.Descending, rep.Bottom, rep.Ascending} {
		v := 0.0
		if candidate == p {
			v = 1
		}
		m.phase.WithLabelValues(candidate.String()).Set(v)
	}
}

// ObserveLatency records one frame's processing time.
func (m *Metrics) ObserveLatency(d time.Duration) {
	m.latency.Observe(d.Seconds())
}
