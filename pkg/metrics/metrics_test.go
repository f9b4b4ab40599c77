package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drinktrack/drinktrack/pkg/updater"
)

var _ updater.Observer = (*Serializer)(nil)

func TestSerializerCounters(t *testing.T) {
	m := NewSerializer()
	reg := prometheus.NewRegistry()
	require.NoError(t, m.Register(reg))
	require.Error(t, m.Register(reg), "double registration must fail")

	m.Submitted("session")
	m.Submitted("session")
	m.Coalesced("session")
	m.Dropped("session")
	m.CycleFinished("session", 3*time.Millisecond, nil)
	m.CycleFinished("session", time.Millisecond, errors.New("failed"))

	assert.InDelta(t, 2, testutil.ToFloat64(m.submitted.WithLabelValues("session")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.coalesced.WithLabelValues("session")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.dropped.WithLabelValues("session")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.failed.WithLabelValues("session")), 1e-9)
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}
