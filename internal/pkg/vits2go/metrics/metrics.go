// Package metrics exports synthesis counters and latencies to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vits2go/internal/pkg/vits2go/engine"
)

const namespace = "vits2go"

// Recorder collects synthesis metrics. A nil *Recorder records nothing.
type Recorder struct {
	registry   *prometheus.Registry
	encode     prometheus.Histogram
	decode     prometheus.Histogram
	utterances prometheus.Counter
	chunks     prometheus.Counter
	samples    prometheus.Counter
	failures   *prometheus.CounterVec
}

// New creates a recorder on its own registry, together with the Go runtime
// and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		encode: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "encode_seconds",
			Help:      "Encoder call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		decode: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_seconds",
			Help:      "Decoder call latency per chunk.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		utterances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Token sequences synthesized.",
		}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Decoder chunks emitted.",
		}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Audio samples emitted.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Failed synthesis requests by error kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(
		r.encode, r.decode, r.utterances, r.chunks, r.samples, r.failures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) ObserveEncode(d time.Duration) {
	if r == nil {
		return
	}
	r.encode.Observe(d.Seconds())
	r.utterances.Inc()
}

func (r *Recorder) ObserveChunk(d time.Duration, samples int) {
	if r == nil {
		return
	}
	r.decode.Observe(d.Seconds())
	r.chunks.Inc()
	r.samples.Add(float64(samples))
}

// Failure counts err under its engine error kind.
func (r *Recorder) Failure(err error) {
	if r == nil || err == nil {
		return
	}
	r.failures.WithLabelValues(engine.Kind(err)).Inc()
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the recorder's registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
