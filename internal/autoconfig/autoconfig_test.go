package autoconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/42ity/fty-alert-engine-sub000/internal/rule"
	"github.com/42ity/fty-alert-engine-sub000/internal/secure"
)

func writeTemplate(t *testing.T, dir, name, ruleName string) {
	t.Helper()
	body := `{"threshold": {"rule_name": "` + ruleName + `", "target": "` + ruleName + `", ` +
		`"element": "__name__", ` + thresholdTemplateTail + `}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

// thresholdTemplateTail is the values/results part every threshold template
// needs: the four threshold variables plus the four direction outcomes and ok.
const thresholdTemplateTail = `"values": {"low_critical": 30, "low_warning": 40, "high_warning": 50, "high_critical": 60}, ` +
	`"results": [` +
	`{"low_critical": {"action": [], "severity": "CRITICAL", "description": "too low"}}, ` +
	`{"low_warning": {"action": [], "severity": "WARNING", "description": "low"}}, ` +
	`{"high_warning": {"action": [], "severity": "WARNING", "description": "high"}}, ` +
	`{"high_critical": {"action": [], "severity": "CRITICAL", "description": "too high"}}, ` +
	`{"ok": {"action": [], "severity": "OK", "description": "normal"}}]`

func newTestAutoconfig(t *testing.T) (*Autoconfig, *rule.Catalog) {
	t.Helper()
	templatesDir := t.TempDir()
	stateDir := t.TempDir()
	rulesDir := t.TempDir()

	cipher, err := secure.NewCipher("")
	require.NoError(t, err)

	catalog := rule.NewCatalog(rulesDir)
	cfg := Config{
		TemplatesDir:        templatesDir,
		StateDir:            stateDir,
		DefaultPollInterval: 60 * time.Second,
		FastPollInterval:    5 * time.Second,
	}
	return New(cfg, catalog, cipher), catalog
}

func TestAutoconfig_RackAssetInstantiatesFourTemplates(t *testing.T) {
	a, catalog := newTestAutoconfig(t)

	writeTemplate(t, a.cfg.TemplatesDir, "average.humidity-input@__rack__.rule", "average.humidity-input@__name__")
	writeTemplate(t, a.cfg.TemplatesDir, "average.temperature-input@__rack__.rule", "average.temperature-input@__name__")
	writeTemplate(t, a.cfg.TemplatesDir, "phase_imbalance@__rack__.rule", "phase_imbalance@__name__")
	writeTemplate(t, a.cfg.TemplatesDir, "realpower.default@__rack__.rule", "realpower.default@__name__")

	removed, err := a.OnAsset(Event{
		Operation: OpCreate,
		Asset: Asset{
			ID:       "rack-3",
			Status:   "active",
			Type:     "rack",
			ExtAttrs: map[string]string{"name": "rack-3", "update_ts": "1"},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, removed)

	anyPending, err := a.PollOnce(time.Now())
	require.NoError(t, err)
	assert.False(t, anyPending)

	names := map[string]bool{}
	for _, r := range mustList(t, catalog) {
		names[r.Name] = true
	}
	assert.True(t, names["average.humidity-input@rack-3"])
	assert.True(t, names["average.temperature-input@rack-3"])
	assert.True(t, names["phase_imbalance@rack-3"])
	assert.True(t, names["realpower.default@rack-3"])
	assert.Len(t, names, 4)
}

func mustList(t *testing.T, c *rule.Catalog) []*rule.Rule {
	t.Helper()
	rules, err := c.List("")
	require.NoError(t, err)
	return rules
}

func TestAutoconfig_NoMatchingTemplateMarksDeviceConfiguredWithoutError(t *testing.T) {
	a, _ := newTestAutoconfig(t)

	_, err := a.OnAsset(Event{
		Operation: OpCreate,
		Asset: Asset{
			ID:       "ups-9",
			Status:   "active",
			Type:     "ups",
			ExtAttrs: map[string]string{"name": "ups-9", "update_ts": "1"},
		},
	})
	require.NoError(t, err)

	anyPending, err := a.PollOnce(time.Now())
	require.NoError(t, err)
	assert.False(t, anyPending)
}

func TestAutoconfig_DeleteRemovesTrackedRules(t *testing.T) {
	a, catalog := newTestAutoconfig(t)
	writeTemplate(t, a.cfg.TemplatesDir, "phase_imbalance@__rack__.rule", "phase_imbalance@__name__")

	_, err := a.OnAsset(Event{
		Operation: OpCreate,
		Asset: Asset{
			ID:       "rack-3",
			Status:   "active",
			Type:     "rack",
			ExtAttrs: map[string]string{"name": "rack-3", "update_ts": "1"},
		},
	})
	require.NoError(t, err)
	_, err = a.PollOnce(time.Now())
	require.NoError(t, err)

	removed, err := a.OnAsset(Event{
		Operation: OpDelete,
		Asset: Asset{
			ID:       "rack-3",
			Status:   "nonactive",
			Type:     "rack",
			ExtAttrs: map[string]string{"name": "rack-3", "update_ts": "1"},
		},
	})
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "phase_imbalance@rack-3", removed[0].Name)

	_, err = catalog.Get("phase_imbalance@rack-3")
	assert.ErrorIs(t, err, rule.ErrNotFound)
}

func TestAutoconfig_ContainersIndexFeedsLogicalAssetToken(t *testing.T) {
	a, catalog := newTestAutoconfig(t)

	_, err := a.OnAsset(Event{
		Operation: OpCreate,
		Asset: Asset{
			ID:       "rack-3",
			Status:   "active",
			Type:     "rack",
			ExtAttrs: map[string]string{"name": "RACK-THREE", "update_ts": "1"},
		},
	})
	require.NoError(t, err)

	body := `{"threshold": {"rule_name": "sensor.gpi1@__name__", "target": "sensor.gpi1@__name__", ` +
		`"element": "__logicalasset__", ` + thresholdTemplateTail + `}}`
	require.NoError(t, os.WriteFile(filepath.Join(a.cfg.TemplatesDir, "sensor.gpi1@__sensor_sensorgpio__.rule"), []byte(body), 0o644))

	_, err = a.OnAsset(Event{
		Operation: OpCreate,
		Asset: Asset{
			ID:      "sensor-1",
			Status:  "active",
			Type:    "sensor",
			Subtype: "sensorgpio",
			ExtAttrs: map[string]string{
				"name": "sensor-1", "update_ts": "1",
				"logical_asset": "rack-3",
			},
		},
	})
	require.NoError(t, err)

	_, err = a.PollOnce(time.Now())
	require.NoError(t, err)

	r, err := catalog.Get("sensor.gpi1@sensor-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"RACK-THREE"}, r.Assets)
}

func TestAutoconfig_StateRoundTrip(t *testing.T) {
	a, _ := newTestAutoconfig(t)
	cipher, err := secure.NewCipher("abababababababababababababababababababababababababababababababab")
	require.NoError(t, err)
	a.cipher = cipher
	writeTemplate(t, a.cfg.TemplatesDir, "phase_imbalance@__rack__.rule", "phase_imbalance@__name__")

	_, err = a.OnAsset(Event{
		Operation: OpCreate,
		Asset: Asset{
			ID:       "rack-3",
			Status:   "active",
			Type:     "rack",
			ExtAttrs: map[string]string{"name": "rack-3", "update_ts": "1", "contact_email": "ops@example.com"},
		},
	})
	require.NoError(t, err)
	_, err = a.PollOnce(time.Now())
	require.NoError(t, err)
	require.NoError(t, a.SaveState())

	b := New(a.cfg, rule.NewCatalog(t.TempDir()), a.cipher)
	require.NoError(t, b.LoadState())

	anyPending, err := b.PollOnce(time.Now())
	require.NoError(t, err)
	assert.False(t, anyPending)

	encrypted, err := os.ReadFile(b.statePath())
	require.NoError(t, err)
	assert.NotContains(t, string(encrypted), "ops@example.com")
}
