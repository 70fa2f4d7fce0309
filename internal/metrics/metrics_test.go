package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncrementCounter(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter("messages_dispatched_total", nil, "Total dispatched messages")
	r.IncrementCounter("messages_dispatched_total", nil, "Total dispatched messages")
	r.AddToCounter("messages_dispatched_total", 3, nil, "Total dispatched messages")

	snap := r.GetSnapshot()
	counter := snap.Counters["messages_dispatched_total"]
	require.NotNil(t, counter)
	assert.Equal(t, 5.0, counter.Value)
	assert.Equal(t, Counter, counter.Type)
}

func TestCounter_LabelsCreateSeparateSeries(t *testing.T) {
	r := NewRegistry()

	r.IncrementCounter("dispatch_total", map[string]string{"provider": "openai"}, "")
	r.IncrementCounter("dispatch_total", map[string]string{"provider": "claude"}, "")
	r.IncrementCounter("dispatch_total", map[string]string{"provider": "openai"}, "")

	snap := r.GetSnapshot()
	assert.Len(t, snap.Counters, 2)
	assert.Equal(t, 2.0, snap.Counters["dispatch_total_provider:openai"].Value)
	assert.Equal(t, 1.0, snap.Counters["dispatch_total_provider:claude"].Value)
}

func TestMetricKey_LabelOrderStable(t *testing.T) {
	a := metricKey("m", map[string]string{"a": "1", "b": "2"})
	b := metricKey("m", map[string]string{"b": "2", "a": "1"})

	assert.Equal(t, a, b)
}

func TestRecordTimer(t *testing.T) {
	r := NewRegistry()

	r.RecordTimer("response_extraction_ms", 100*time.Millisecond, nil, "")
	r.RecordTimer("response_extraction_ms", 300*time.Millisecond, nil, "")

	snap := r.GetSnapshot()
	timer := snap.Timers["response_extraction_ms"]
	require.NotNil(t, timer)
	assert.Equal(t, int64(2), timer.Count)
	assert.InDelta(t, 400.0, timer.Sum, 1.0)
	assert.InDelta(t, 100.0, timer.Min, 1.0)
	assert.InDelta(t, 300.0, timer.Max, 1.0)
	assert.InDelta(t, 200.0, timer.Average, 1.0)
}

func TestRecordTimer_Percentiles(t *testing.T) {
	r := NewRegistry()

	for i := 1; i <= 100; i++ {
		r.RecordTimer("op_ms", time.Duration(i)*time.Millisecond, nil, "")
	}

	snap := r.GetSnapshot()
	timer := snap.Timers["op_ms"]
	require.NotNil(t, timer)
	assert.InDelta(t, 95.0, timer.P95, 2.0)
	assert.InDelta(t, 99.0, timer.P99, 2.0)
}

func TestTime_RecordsElapsed(t *testing.T) {
	r := NewRegistry()

	stop := r.Time("timed_op_ms", nil, "")
	time.Sleep(10 * time.Millisecond)
	stop()

	snap := r.GetSnapshot()
	timer := snap.Timers["timed_op_ms"]
	require.NotNil(t, timer)
	assert.Equal(t, int64(1), timer.Count)
	assert.GreaterOrEqual(t, timer.Sum, 5.0)
}

func TestSetGauge(t *testing.T) {
	r := NewRegistry()

	r.SetGauge("sessions_ready", 2, nil, "Provider sessions in ready state")
	r.SetGauge("sessions_ready", 3, nil, "Provider sessions in ready state")

	snap := r.GetSnapshot()
	gauge := snap.Gauges["sessions_ready"]
	require.NotNil(t, gauge)
	assert.Equal(t, 3.0, gauge.Value)
	assert.Equal(t, Gauge, gauge.Type)
}

func TestGetSnapshot_IsCopy(t *testing.T) {
	r := NewRegistry()
	r.IncrementCounter("c", nil, "")

	snap := r.GetSnapshot()
	snap.Counters["c"].Value = 99

	fresh := r.GetSnapshot()
	assert.Equal(t, 1.0, fresh.Counters["c"].Value)
}

func TestSnapshot_Uptime(t *testing.T) {
	r := NewRegistry()
	snap := r.GetSnapshot()

	assert.GreaterOrEqual(t, snap.UptimeMs, int64(0))
	assert.NotZero(t, snap.Timestamp)
}

func TestReset(t *testing.T) {
	r := NewRegistry()
	r.IncrementCounter("c", nil, "")
	r.RecordTimer("t", time.Millisecond, nil, "")
	r.SetGauge("g", 1, nil, "")

	r.Reset()

	snap := r.GetSnapshot()
	assert.Empty(t, snap.Counters)
	assert.Empty(t, snap.Timers)
	assert.Empty(t, snap.Gauges)
}

func TestGlobalRegistry(t *testing.T) {
	GetRegistry().Reset()

	IncrementCounter("global_counter", nil, "")
	RecordTimer("global_timer", time.Millisecond, nil, "")
	SetGauge("global_gauge", 7, nil, "")

	snap := GetSnapshot()
	assert.Contains(t, snap.Counters, "global_counter")
	assert.Contains(t, snap.Timers, "global_timer")
	assert.Contains(t, snap.Gauges, "global_gauge")

	GetRegistry().Reset()
}
