package alertengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/42ity/fty-alert-engine-sub000/internal/metric"
	"github.com/42ity/fty-alert-engine-sub000/internal/rule"
)

func thresholdJSON(name, topic, asset string) []byte {
	return []byte(`{
  "threshold": {
    "rule_name": "` + name + `",
    "target": "` + topic + `",
    "element": "` + asset + `",
    "values": {"low_critical": 30, "low_warning": 40, "high_warning": 50, "high_critical": 60},
    "results": [
      {"low_critical": {"action": ["EMAIL"], "severity": "CRITICAL", "description": "too low"}},
      {"low_warning": {"action": ["EMAIL"], "severity": "WARNING", "description": "low"}},
      {"high_warning": {"action": ["EMAIL"], "severity": "WARNING", "description": "high"}},
      {"high_critical": {"action": ["EMAIL"], "severity": "CRITICAL", "description": "too high"}},
      {"ok": {"action": [], "severity": "OK", "description": "normal"}}
    ]
  }
}`)
}

// TestEngine_ThresholdScenario reproduces the boundary scenario:
// 20 -> ACTIVE/CRITICAL, 42 -> RESOLVED, 52 -> ACTIVE/WARNING,
// 62 -> ACTIVE/CRITICAL, 42 -> RESOLVED, in order.
func TestEngine_ThresholdScenario(t *testing.T) {
	dir := t.TempDir()
	c := rule.NewCatalog(dir)
	_, err := c.Add(thresholdJSON("threshrule", "abc", "fff"))
	require.NoError(t, err)

	var messages []Message
	e := New(c, func(m Message) { messages = append(messages, m) })
	e.now = func() uint64 { return 1000 }

	values := []float64{20, 42, 52, 62, 42}
	for _, v := range values {
		e.OnMetricSample(metric.Sample{
			ElementName: "fff", Type: "abc", Value: v, TimestampS: 1000, TTLSeconds: 60,
		})
	}

	require.Len(t, messages, 5)
	assert.Equal(t, StateActive, messages[0].State)
	assert.Equal(t, rule.SeverityCritical, messages[0].Severity)
	assert.Equal(t, StateResolved, messages[1].State)
	assert.Equal(t, StateActive, messages[2].State)
	assert.Equal(t, rule.SeverityWarning, messages[2].Severity)
	assert.Equal(t, StateActive, messages[3].State)
	assert.Equal(t, rule.SeverityCritical, messages[3].Severity)
	assert.Equal(t, StateResolved, messages[4].State)
}

func TestEngine_RepeatedSampleIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	c := rule.NewCatalog(dir)
	_, err := c.Add(thresholdJSON("threshrule", "abc", "fff"))
	require.NoError(t, err)

	var messages []Message
	e := New(c, func(m Message) { messages = append(messages, m) })
	e.now = func() uint64 { return 1000 }

	s := metric.Sample{ElementName: "fff", Type: "abc", Value: 20, TimestampS: 1000, TTLSeconds: 60}
	e.OnMetricSample(s)
	e.OnMetricSample(s)

	assert.Len(t, messages, 1)
}

func TestEngine_TouchWithoutChangeEmitsNothing(t *testing.T) {
	dir := t.TempDir()
	c := rule.NewCatalog(dir)
	_, err := c.Add(thresholdJSON("threshrule", "abc", "fff"))
	require.NoError(t, err)

	var messages []Message
	e := New(c, func(m Message) { messages = append(messages, m) })
	e.now = func() uint64 { return 1000 }

	e.OnMetricSample(metric.Sample{ElementName: "fff", Type: "abc", Value: 20, TimestampS: 1000, TTLSeconds: 60})
	require.Len(t, messages, 1)

	require.NoError(t, e.Touch("threshrule"))
	assert.Len(t, messages, 1)
}

func TestEngine_MetricUnavailableResolvesAlerts(t *testing.T) {
	dir := t.TempDir()
	c := rule.NewCatalog(dir)
	_, err := c.Add(thresholdJSON("r1", "metrictouch1", "element1"))
	require.NoError(t, err)
	_, err = c.Add(thresholdJSON("r2", "metrictouch2", "element2"))
	require.NoError(t, err)

	var messages []Message
	e := New(c, func(m Message) { messages = append(messages, m) })
	e.now = func() uint64 { return 1000 }

	e.OnMetricSample(metric.Sample{ElementName: "element1", Type: "metrictouch1", Value: 20, TimestampS: 1000, TTLSeconds: 60})
	e.OnMetricSample(metric.Sample{ElementName: "element2", Type: "metrictouch2", Value: 20, TimestampS: 1000, TTLSeconds: 60})
	require.Len(t, messages, 2)

	e.OnMetricUnavailable("metrictouch1@element1")
	require.Len(t, messages, 3)
	assert.Equal(t, StateResolved, messages[2].State)

	e.OnMetricUnavailable("metrictouch2@element2")
	require.Len(t, messages, 4)
	assert.Equal(t, StateResolved, messages[3].State)
}

func TestEngine_DeletingReferencedAssetResolvesAlert(t *testing.T) {
	dir := t.TempDir()
	c := rule.NewCatalog(dir)
	_, err := c.Add(thresholdJSON("r1", "abc", "fff"))
	require.NoError(t, err)

	var messages []Message
	e := New(c, func(m Message) { messages = append(messages, m) })
	e.now = func() uint64 { return 1000 }

	e.OnMetricSample(metric.Sample{ElementName: "fff", Type: "abc", Value: 20, TimestampS: 1000, TTLSeconds: 60})
	require.Len(t, messages, 1)

	removed, err := c.DeleteByElement("fff")
	require.NoError(t, err)
	require.Len(t, removed, 1)
	e.ResolveRule(removed[0])

	require.Len(t, messages, 2)
	assert.Equal(t, StateResolved, messages[1].State)
}

func singleJSON(name string, topics []string, asset string) []byte {
	targets := `["` + topics[0] + `"`
	for _, t := range topics[1:] {
		targets += `, "` + t + `"`
	}
	targets += `]`
	return []byte(`{
  "single": {
    "rule_name": "` + name + `",
    "target": ` + targets + `,
    "element": "` + asset + `",
    "evaluation": "function main(a, b) if a == nil or b == nil then return OK end return HIGH_CRITICAL end",
    "results": [
      {"high_critical": {"action": [], "severity": "CRITICAL", "description": "bad"}},
      {"ok": {"action": [], "severity": "OK", "description": "normal"}}
    ]
  }
}`)
}

func TestEngine_MissingOneOfTwoSingleMetricsResolves(t *testing.T) {
	dir := t.TempDir()
	c := rule.NewCatalog(dir)
	_, err := c.Add(singleJSON("s1", []string{"m1", "m2"}, "fff"))
	require.NoError(t, err)

	var messages []Message
	e := New(c, func(m Message) { messages = append(messages, m) })
	now := uint64(1000)
	e.now = func() uint64 { return now }

	e.OnMetricSample(metric.Sample{ElementName: "fff", Type: "m1", Value: 1, TimestampS: now, TTLSeconds: 60})
	e.OnMetricSample(metric.Sample{ElementName: "fff", Type: "m2", Value: 1, TimestampS: now, TTLSeconds: 60})
	require.Len(t, messages, 1)
	assert.Equal(t, StateActive, messages[0].State)

	// m2 goes stale; the next m1 sample should resolve, not error.
	now += 120
	e.OnMetricSample(metric.Sample{ElementName: "fff", Type: "m1", Value: 1, TimestampS: now, TTLSeconds: 60})

	require.Len(t, messages, 2)
	assert.Equal(t, StateResolved, messages[1].State)
}
