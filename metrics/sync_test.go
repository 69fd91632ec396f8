package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}
	return byName
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestNewSyncMetricsWithRegistry(t *testing.T) {
	m := NewSyncMetricsWithRegistry(prometheus.NewRegistry())
	require.NotNil(t, m)
	assert.NotNil(t, m.CycleDurationSeconds)
	assert.NotNil(t, m.CyclesTotal)
	assert.NotNil(t, m.RecordsAppliedTotal)
	assert.NotNil(t, m.Watermark)
}

func TestSyncMetrics_RecordCycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetricsWithRegistry(reg)

	m.RecordCycle(2*time.Second, 7, nil)
	m.RecordCycle(time.Second, 0, errors.New("source down"))

	families := gather(t, reg)

	found := families["retail_sync_changes_found_total"]
	require.NotNil(t, found)
	assert.Equal(t, float64(7), found.GetMetric()[0].GetCounter().GetValue())

	cycles := families["retail_sync_cycles_total"]
	require.NotNil(t, cycles)
	results := map[string]float64{}
	for _, metric := range cycles.GetMetric() {
		results[labelValue(metric, "result")] = metric.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"ok": 1, "error": 1}, results)

	hist := families["retail_sync_cycle_duration_seconds"]
	require.NotNil(t, hist)
	assert.Equal(t, uint64(2), hist.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestSyncMetrics_RecordGroup(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetricsWithRegistry(reg)

	m.RecordGroup("sales", 3, 2, false)
	m.RecordGroup("sales", 1, 0, true)
	m.RecordDeadLettered("sales", 4)
	m.RecordDeadLettered("sales", 0)

	families := gather(t, reg)

	applied := families["retail_sync_records_applied_total"].GetMetric()
	require.Len(t, applied, 1)
	assert.Equal(t, "sales", labelValue(applied[0], "table"))
	assert.Equal(t, float64(4), applied[0].GetCounter().GetValue())

	skipped := families["retail_sync_records_skipped_total"].GetMetric()
	assert.Equal(t, float64(2), skipped[0].GetCounter().GetValue())

	failures := families["retail_sync_group_failures_total"].GetMetric()
	assert.Equal(t, float64(1), failures[0].GetCounter().GetValue())

	dead := families["retail_sync_dead_lettered_total"].GetMetric()
	assert.Equal(t, float64(4), dead[0].GetCounter().GetValue())
}

func TestSyncMetrics_SetWatermark(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSyncMetricsWithRegistry(reg)

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	m.SetWatermark(ts)

	families := gather(t, reg)
	gauge := families["retail_sync_watermark_timestamp"]
	require.NotNil(t, gauge)
	assert.Equal(t, float64(ts.Unix()), gauge.GetMetric()[0].GetGauge().GetValue())
}

func TestSyncMetrics_NilIsNoop(t *testing.T) {
	var m *SyncMetrics

	assert.NotPanics(t, func() {
		m.RecordCycle(time.Second, 1, nil)
		m.RecordGroup("customers", 1, 0, false)
		m.RecordDeadLettered("customers", 1)
		m.SetWatermark(time.Now())
	})
}
