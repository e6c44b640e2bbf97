package rule

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/42ity/fty-alert-engine-sub000/internal/metric"
	"github.com/42ity/fty-alert-engine-sub000/internal/metrics"
)

// allKinds enumerates the four rule kinds, used to zero out gauges for
// kinds with no rules rather than leaving them unexported.
var allKinds = []Kind{KindThreshold, KindSingle, KindPattern, KindFlexible}

// patternTopicSentinel is the synthetic by_metric_topic bucket pattern
// rules are indexed under ("a synthetic sentinel... is used to
// route triggering samples"). It is never matched directly against a real
// topic; dispatch instead walks patternNames and calls MatchesTopic.
const patternTopicSentinel = "^pattern-rules$"

// Catalog is the in-memory rule store plus its indexes, guarded by a
// single mutex since it can be read concurrently by other in-process
// helper threads enumerating rules.
type Catalog struct {
	dir string

	mu            sync.Mutex
	byName        map[string]*Rule
	byMetricTopic map[string][]string // topic -> rule names
	byAsset       map[string][]string // asset id -> rule names
	patternNames  map[string]bool     // rule names that are pattern rules

	metrics *metrics.Registry
}

// SetMetrics attaches a metrics registry. Rule-count gauges and mutation
// counters only get exported after this is called; a nil-metrics Catalog
// runs unobserved.
func (c *Catalog) SetMetrics(m *metrics.Registry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
	c.refreshRuleCountsLocked()
}

func (c *Catalog) refreshRuleCountsLocked() {
	if c.metrics == nil {
		return
	}
	counts := make(map[Kind]int, len(allKinds))
	for _, r := range c.byName {
		counts[r.Kind]++
	}
	for _, k := range allKinds {
		c.metrics.RulesByKind.WithLabelValues(string(k)).Set(float64(counts[k]))
	}
}

func (c *Catalog) bumpMutationLocked(operation string) {
	if c.metrics == nil {
		return
	}
	c.metrics.CatalogMutations.WithLabelValues(operation).Inc()
}

// NewCatalog creates an empty catalog persisting rules under dir.
func NewCatalog(dir string) *Catalog {
	return &Catalog{
		dir:           dir,
		byName:        make(map[string]*Rule),
		byMetricTopic: make(map[string][]string),
		byAsset:       make(map[string][]string),
		patternNames:  make(map[string]bool),
	}
}

// LoadAll scans dir for "*.rule" files and indexes every valid one. A rule
// whose file name disagrees with its internal name is skipped with a
// warning; a duplicate name is skipped (first wins).
func (c *Catalog) LoadAll() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("rule catalog: scan %s: %w", c.dir, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".rule") {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("[RuleCatalog] failed to read %s: %v", path, err)
			continue
		}
		r, err := ParseJSON(data)
		if err != nil {
			log.Printf("[RuleCatalog] failed to parse %s: %v", path, err)
			continue
		}
		expected := r.FileName()
		if expected != entry.Name() {
			log.Printf("[RuleCatalog] skipping %s: internal name %q does not match file name", path, r.Name)
			continue
		}
		if _, exists := c.byName[r.Name]; exists {
			log.Printf("[RuleCatalog] skipping %s: duplicate rule name %q (first wins)", path, r.Name)
			continue
		}
		if _, err := r.Evaluator(); err != nil {
			log.Printf("[RuleCatalog] skipping %s: %v", path, err)
			continue
		}
		c.insertLocked(r)
	}
	c.refreshRuleCountsLocked()
	return nil
}

func (c *Catalog) insertLocked(r *Rule) {
	c.byName[r.Name] = r
	if r.Kind == KindPattern {
		c.patternNames[r.Name] = true
		c.byMetricTopic[patternTopicSentinel] = appendUnique(c.byMetricTopic[patternTopicSentinel], r.Name)
	} else {
		for _, metricName := range r.Metrics {
			for _, asset := range r.Assets {
				topic := metric.Topic(metricName, asset)
				c.byMetricTopic[topic] = appendUnique(c.byMetricTopic[topic], r.Name)
			}
		}
	}
	for _, asset := range r.Assets {
		c.byAsset[asset] = appendUnique(c.byAsset[asset], r.Name)
	}
}

func (c *Catalog) removeLocked(r *Rule) {
	delete(c.byName, r.Name)
	delete(c.patternNames, r.Name)
	for topic, names := range c.byMetricTopic {
		c.byMetricTopic[topic] = removeName(names, r.Name)
	}
	for asset, names := range c.byAsset {
		c.byAsset[asset] = removeName(names, r.Name)
	}
	r.CloseEvaluator()
}

func appendUnique(names []string, name string) []string {
	for _, n := range names {
		if n == name {
			return names
		}
	}
	return append(names, name)
}

func removeName(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}

func (c *Catalog) persist(r *Rule) error {
	data, err := r.MarshalJSON()
	if err != nil {
		return fmt.Errorf("internal error: serialize rule %q: %w", r.Name, err)
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("internal error: create rules dir: %w", err)
	}
	final := filepath.Join(c.dir, r.FileName())
	tmp, err := os.CreateTemp(c.dir, ".tmp-*.rule")
	if err != nil {
		return fmt.Errorf("internal error: create temp rule file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("internal error: write temp rule file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("internal error: close temp rule file: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("internal error: rename rule file into place: %w", err)
	}
	return nil
}

func (c *Catalog) deleteFile(r *Rule) {
	path := filepath.Join(c.dir, r.FileName())
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("[RuleCatalog] failed to remove rule file %s: %v", path, err)
	}
}

// Add parses, compiles and persists a new rule. Returns ErrAlreadyExists if
// the name is already taken.
func (c *Catalog) Add(jsonDoc []byte) (*Rule, error) {
	r, err := ParseJSON(jsonDoc)
	if err != nil {
		return nil, err
	}
	if _, err := r.Evaluator(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byName[r.Name]; exists {
		r.CloseEvaluator()
		return nil, fmt.Errorf("%w: rule %q", ErrAlreadyExists, r.Name)
	}
	if err := c.persist(r); err != nil {
		r.CloseEvaluator()
		return nil, err
	}
	c.insertLocked(r)
	c.refreshRuleCountsLocked()
	c.bumpMutationLocked("add")
	return r, nil
}

// Update replaces the rule named oldName with a newly parsed one, possibly
// under a new name. Returns the old rule (for alert resolution by the
// caller) and the new rule.
func (c *Catalog) Update(jsonDoc []byte, oldName string) (oldRule, newRule *Rule, err error) {
	r, err := ParseJSON(jsonDoc)
	if err != nil {
		return nil, nil, err
	}
	if _, err := r.Evaluator(); err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	old, exists := c.lookupLocked(oldName)
	if !exists {
		r.CloseEvaluator()
		return nil, nil, fmt.Errorf("%w: rule %q", ErrNotFound, oldName)
	}
	if !NamesEqual(r.Name, old.Name) {
		if _, taken := c.byName[r.Name]; taken {
			r.CloseEvaluator()
			return nil, nil, fmt.Errorf("%w: rule %q", ErrAlreadyExists, r.Name)
		}
	}

	if err := c.persist(r); err != nil {
		r.CloseEvaluator()
		return nil, nil, err
	}
	if !NamesEqual(r.Name, old.Name) {
		c.deleteFile(old)
	}
	c.removeLocked(old)
	c.insertLocked(r)
	c.refreshRuleCountsLocked()
	c.bumpMutationLocked("update")
	return old, r, nil
}

// Delete removes the named rule, deletes its file, and returns it so the
// caller can resolve its alerts. Returns ErrNoMatch if not found.
func (c *Catalog) Delete(name string) (*Rule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, ok := c.lookupLocked(name)
	if !ok {
		return nil, fmt.Errorf("%w: rule %q", ErrNoMatch, name)
	}
	c.removeLocked(r)
	c.deleteFile(r)
	c.refreshRuleCountsLocked()
	c.bumpMutationLocked("delete")
	return r, nil
}

// DeleteByElement removes every rule that references assetID, deletes
// their files, and returns the removed rules. Returns ErrNoMatch if none
// matched.
func (c *Catalog) DeleteByElement(assetID string) ([]*Rule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := append([]string(nil), c.byAsset[assetID]...)
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: asset %q", ErrNoMatch, assetID)
	}
	var removed []*Rule
	for _, name := range names {
		r, ok := c.byName[name]
		if !ok {
			continue
		}
		c.removeLocked(r)
		c.deleteFile(r)
		removed = append(removed, r)
	}
	c.refreshRuleCountsLocked()
	c.bumpMutationLocked("delete_element")
	return removed, nil
}

// Get returns the named rule. Returns ErrNotFound if absent.
func (c *Catalog) Get(name string) (*Rule, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.lookupLocked(name)
	if !ok {
		return nil, fmt.Errorf("%w: rule %q", ErrNotFound, name)
	}
	return r, nil
}

func (c *Catalog) lookupLocked(name string) (*Rule, bool) {
	if r, ok := c.byName[name]; ok {
		return r, true
	}
	for candidate, r := range c.byName {
		if NamesEqual(candidate, name) {
			return r, true
		}
	}
	return nil, false
}

// List returns every rule of the given kind filter ("all", or one of the
// four kind names). Returns ErrInvalidType for anything else.
func (c *Catalog) List(kindFilter string) ([]*Rule, error) {
	if kindFilter != "all" && !Kind(kindFilter).Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, kindFilter)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*Rule
	for _, r := range c.byName {
		if kindFilter == "all" || string(r.Kind) == kindFilter {
			out = append(out, r)
		}
	}
	return out, nil
}

// RulesForTopic returns every rule that should be considered for an
// incoming metric sample on topic: exact by_metric_topic matches plus any
// pattern rule whose regex matches the topic.
func (c *Catalog) RulesForTopic(topic string) []*Rule {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*Rule
	seen := make(map[string]bool)
	for _, name := range c.byMetricTopic[topic] {
		if r, ok := c.byName[name]; ok && !seen[name] {
			out = append(out, r)
			seen[name] = true
		}
	}
	for name := range c.patternNames {
		r, ok := c.byName[name]
		if !ok || seen[name] {
			continue
		}
		if r.MatchesTopic(topic) {
			out = append(out, r)
			seen[name] = true
		}
	}
	return out
}

// DeleteMatching removes every rule matching m, deletes their files, and
// returns the removed rules, mirroring the original RuleMatcher-driven
// deletion path.
func (c *Catalog) DeleteMatching(m Matcher) []*Rule {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed []*Rule
	for _, r := range c.byName {
		if m.Matches(r) {
			removed = append(removed, r)
		}
	}
	for _, r := range removed {
		c.removeLocked(r)
		c.deleteFile(r)
	}
	if len(removed) > 0 {
		c.refreshRuleCountsLocked()
		c.bumpMutationLocked("delete_matching")
	}
	return removed
}
