package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func TestCatalog_AddGetDelete(t *testing.T) {
	dir := t.TempDir()
	c := NewCatalog(dir)

	r, err := c.Add(thresholdJSON("rule1", "temp", "fff"))
	require.NoError(t, err)
	assert.Equal(t, "rule1", r.Name)

	got, err := c.Get("rule1")
	require.NoError(t, err)
	assert.Equal(t, r, got)

	_, err = c.Add(thresholdJSON("rule1", "temp", "fff"))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	deleted, err := c.Delete("rule1")
	require.NoError(t, err)
	assert.Equal(t, "rule1", deleted.Name)

	_, err = c.Get("rule1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalog_PersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := NewCatalog(dir)

	_, err := c.Add(thresholdJSON("persisted", "temp", "fff"))
	require.NoError(t, err)

	c2 := NewCatalog(dir)
	require.NoError(t, c2.LoadAll())

	r, err := c2.Get("persisted")
	require.NoError(t, err)
	assert.Equal(t, "persisted", r.Name)
	assert.Equal(t, KindThreshold, r.Kind)
}

func TestCatalog_DeleteByElement(t *testing.T) {
	dir := t.TempDir()
	c := NewCatalog(dir)

	_, err := c.Add(thresholdJSON("ruleA", "temp", "rack-3"))
	require.NoError(t, err)
	_, err = c.Add(thresholdJSON("ruleB", "humid", "rack-3"))
	require.NoError(t, err)
	_, err = c.Add(thresholdJSON("ruleC", "temp", "rack-4"))
	require.NoError(t, err)

	removed, err := c.DeleteByElement("rack-3")
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	_, err = c.Get("ruleC")
	require.NoError(t, err)

	_, err = c.DeleteByElement("rack-3")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestCatalog_List(t *testing.T) {
	dir := t.TempDir()
	c := NewCatalog(dir)

	_, err := c.Add(thresholdJSON("r1", "temp", "fff"))
	require.NoError(t, err)

	all, err := c.List("all")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	single, err := c.List("single")
	require.NoError(t, err)
	assert.Empty(t, single)

	_, err = c.List("bogus")
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestCatalog_Update(t *testing.T) {
	dir := t.TempDir()
	c := NewCatalog(dir)

	_, err := c.Add(thresholdJSON("original", "temp", "fff"))
	require.NoError(t, err)

	oldRule, newRule, err := c.Update(thresholdJSON("renamed", "temp", "fff"), "original")
	require.NoError(t, err)
	assert.Equal(t, "original", oldRule.Name)
	assert.Equal(t, "renamed", newRule.Name)

	_, err = c.Get("original")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.Get("renamed")
	require.NoError(t, err)

	_, _, err = c.Update(thresholdJSON("x", "temp", "fff"), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalog_RulesForTopic(t *testing.T) {
	dir := t.TempDir()
	c := NewCatalog(dir)

	_, err := c.Add(thresholdJSON("r1", "temp", "fff"))
	require.NoError(t, err)

	rules := c.RulesForTopic("temp@fff")
	require.Len(t, rules, 1)
	assert.Equal(t, "r1", rules[0].Name)

	assert.Empty(t, c.RulesForTopic("other@fff"))
}
