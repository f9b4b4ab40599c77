package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const serializerNamespace = "serializer"

// Serializer collects activity of update serializers. It implements updater.Observer.
// The name label is the serializer kind, not the owner, to keep cardinality bounded.
type Serializer struct {
	submitted *prometheus.CounterVec
	coalesced *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	failed    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

func NewSerializer() *Serializer {
	return &Serializer{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: serializerNamespace,
			Name:      "submitted_total",
			Help:      "Forms submitted to update serializers",
		}, []string{"name"}),
		coalesced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: serializerNamespace,
			Name:      "coalesced_total",
			Help:      "Pending forms replaced by a newer submission before being written",
		}, []string{"name"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: serializerNamespace,
			Name:      "dropped_total",
			Help:      "Forms discarded because the serializer was closed",
		}, []string{"name"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: serializerNamespace,
			Name:      "failed_updates_total",
			Help:      "Update calls that returned an error",
		}, []string{"name"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: serializerNamespace,
			Name:      "update_duration_seconds",
			Help:      "Duration of update calls",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"name"}),
	}
}

// Register adds the collectors to r.
func (s *Serializer) Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{s.submitted, s.coalesced, s.dropped, s.failed, s.duration} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Serializer) Submitted(name string) { s.submitted.WithLabelValues(name).Inc() }

func (s *Serializer) Coalesced(name string) { s.coalesced.WithLabelValues(name).Inc() }

func (s *Serializer) Dropped(name string) { s.dropped.WithLabelValues(name).Inc() }

func (s *Serializer) CycleFinished(name string, d time.Duration, err error) {
	s.duration.WithLabelValues(name).Observe(d.Seconds())
	if err != nil {
		s.failed.WithLabelValues(name).Inc()
	}
}
