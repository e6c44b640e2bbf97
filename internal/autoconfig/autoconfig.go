// Package autoconfig instantiates rule templates per asset and reconciles
// the rule catalog on asset lifecycle events: the device inventory cache,
// template enumeration/substitution, phase-count applicability filtering,
// and encrypted-at-rest state persistence all live here.
package autoconfig

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/42ity/fty-alert-engine-sub000/internal/rule"
	"github.com/42ity/fty-alert-engine-sub000/internal/secure"
)

// Config drives template lookup, polling cadence, and the Xphase filter
// toggle.
type Config struct {
	TemplatesDir        string
	StateDir            string
	DefaultPollInterval time.Duration
	FastPollInterval    time.Duration
	DisableXPhaseFilter bool
}

// Autoconfig tracks every active asset seen on the inventory stream and
// drives rule instantiation against the shared catalog.
type Autoconfig struct {
	mu      sync.Mutex
	cfg     Config
	catalog *rule.Catalog
	cipher  *secure.Cipher

	devices    map[string]deviceInfo
	containers map[string]string // asset iname -> display name, locations only
}

// New builds an Autoconfig bound to catalog. cipher may be a disabled
// (zero-value) Cipher if no encryption key is configured.
func New(cfg Config, catalog *rule.Catalog, cipher *secure.Cipher) *Autoconfig {
	return &Autoconfig{
		cfg:        cfg,
		catalog:    catalog,
		cipher:     cipher,
		devices:    make(map[string]deviceInfo),
		containers: make(map[string]string),
	}
}

// OnAsset applies one lifecycle event: tracks or drops the device, updates
// the containers index for location-type assets, and for a delete event, or
// any event whose asset status is not "active", removes every rule the
// catalog has for that element. The caller is
// responsible for publishing a DELETE_ELEMENT notification for removedRules
// if a downstream subscriber needs to hear about it.
func (a *Autoconfig) OnAsset(ev Event) (removedRules []*rule.Rule, err error) {
	asset := ev.Asset

	a.mu.Lock()
	defer a.mu.Unlock()

	if asset.IsContainerType() {
		if ev.Operation != OpDelete && asset.Status == "active" {
			a.containers[asset.ID] = asset.Name()
		} else {
			delete(a.containers, asset.ID)
		}
	}

	if asset.Type == "" {
		return nil, nil
	}

	isActive := ev.Operation != OpDelete && asset.Status == "active"
	if isActive {
		existing, tracked := a.devices[asset.ID]
		configured := tracked && existing.Configured
		if tracked && existing.UpdateTS != asset.UpdateTS() {
			// changed asset: republish against the latest attributes
			configured = false
		}
		a.devices[asset.ID] = deviceInfo{
			Type:       asset.Type,
			Subtype:    asset.Subtype,
			UpdateTS:   asset.UpdateTS(),
			Configured: configured,
			Attempted:  tracked && existing.Attempted,
			Attributes: cloneAttrs(asset.ExtAttrs),
		}
		return nil, nil
	}

	delete(a.devices, asset.ID)

	if asset.Subtype == "sensorgpio" || asset.Subtype == "gpo" {
		return nil, nil
	}
	removedRules, err = a.catalog.DeleteByElement(asset.ID)
	if err == rule.ErrNoMatch {
		return nil, nil
	}
	return removedRules, err
}

// PollOnce walks every unconfigured device, instantiates matching templates
// against the catalog, and marks devices fully configured once every
// matching template has been added successfully. It reports whether any
// device remains unconfigured after the pass.
func (a *Autoconfig) PollOnce(now time.Time) (anyPending bool, err error) {
	a.mu.Lock()
	ids := make([]string, 0, len(a.devices))
	for id := range a.devices {
		ids = append(ids, id)
	}
	a.mu.Unlock()

	changed := false
	for _, id := range ids {
		a.mu.Lock()
		info, ok := a.devices[id]
		a.mu.Unlock()
		if !ok || info.Configured {
			continue
		}

		ok2, attemptErr := a.configureDevice(id, info)
		if attemptErr != nil {
			return true, attemptErr
		}

		a.mu.Lock()
		info = a.devices[id]
		info.Attempted = true
		if ok2 {
			info.Configured = true
			changed = true
		}
		a.devices[id] = info
		a.mu.Unlock()
	}

	if changed {
		if err := a.SaveState(); err != nil {
			return true, err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, info := range a.devices {
		if !info.Configured {
			return true, nil
		}
	}
	return false, nil
}

// configureDevice instantiates every matching template for one device,
// returning true when every applicable template was added (or already
// existed), including when no template matches the device at all, and false
// (not an error) when at least one template could not be added.
func (a *Autoconfig) configureDevice(assetID string, info deviceInfo) (bool, error) {
	// No matching template at all: there is nothing further to do for this
	// device, so it counts as configured rather than perpetually pending.
	if !hasTemplateFor(a.cfg.TemplatesDir, info.Type, info.Subtype) {
		return true, nil
	}

	fastTrack := info.Attributes["fast_track"] == "true"
	templates, err := loadTemplates(a.cfg.TemplatesDir, info.Type, info.Subtype, fastTrack)
	if err != nil {
		return false, fmt.Errorf("autoconfig: load templates for %s: %w", assetID, err)
	}
	if len(templates) == 0 {
		return true, nil
	}

	logicalAssetIname := info.Attributes["logical_asset"]
	a.mu.Lock()
	logicalAssetEname := a.containers[logicalAssetIname]
	a.mu.Unlock()

	patterns, replacements, _, model := substitutionTokens(assetID, logicalAssetEname, logicalAssetIname, info.Attributes)

	allOK := true
	for _, tmpl := range templates {
		if info.Subtype == "sensorgpio" && !isModelOk(model, tmpl.body) {
			continue
		}

		doc := replaceTokens(string(tmpl.body), patterns, replacements)
		ruleName := extractRuleName(doc)
		if ruleName != "" && !isXPhaseApplicable(ruleName, Asset{ExtAttrs: info.Attributes}, a.cfg.DisableXPhaseFilter) {
			continue
		}

		if _, err := a.catalog.Add([]byte(doc)); err != nil {
			if err == rule.ErrAlreadyExists {
				continue
			}
			allOK = false
		}
	}
	return allOK, nil
}

// extractRuleName pulls rule_name out of a wire-format rule document
// without going through the full decoder, so the Xphase filter can run
// before a malformed candidate is handed to the catalog.
func extractRuleName(doc string) string {
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(doc), &top); err != nil {
		return ""
	}
	for _, body := range top {
		var fields struct {
			RuleName string `json:"rule_name"`
		}
		if json.Unmarshal(body, &fields) == nil && fields.RuleName != "" {
			return fields.RuleName
		}
	}
	return ""
}

// PollInterval reports how soon PollOnce should run again: fast while any
// device is still awaiting configuration, the default interval otherwise
// (there is no "never poll again" state here, unlike the block-indefinitely
// original, since new assets can arrive at any time).
func (a *Autoconfig) PollInterval() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, info := range a.devices {
		if !info.Configured {
			return a.cfg.FastPollInterval
		}
	}
	return a.cfg.DefaultPollInterval
}

// TemplateInfo describes one rule template file for the listing interface.
type TemplateInfo struct {
	Name          string
	Body          string
	MatchingAsset []string
}

// ListTemplates returns every template whose body contains categoryFilter
// (a case-insensitive substring match; an empty filter keeps every
// template), paired with the ids of currently tracked devices that template
// would apply to.
func (a *Autoconfig) ListTemplates(categoryFilter string) ([]TemplateInfo, error) {
	entries, err := loadAllTemplateFiles(a.cfg.TemplatesDir)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var out []TemplateInfo
	for _, t := range entries {
		if categoryFilter != "" && !containsFold(string(t.body), categoryFilter) {
			continue
		}
		var matching []string
		for id, info := range a.devices {
			if containsFold(t.name, convertTypeSubType2Name(info.Type, info.Subtype)) {
				matching = append(matching, id)
			}
		}
		out = append(out, TemplateInfo{Name: t.name, Body: string(t.body), MatchingAsset: matching})
	}
	return out, nil
}
