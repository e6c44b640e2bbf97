package alertengine

import (
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/42ity/fty-alert-engine-sub000/internal/evalengine"
	"github.com/42ity/fty-alert-engine-sub000/internal/metric"
	"github.com/42ity/fty-alert-engine-sub000/internal/metrics"
	"github.com/42ity/fty-alert-engine-sub000/internal/rule"
)

// allStates enumerates the six alert states, used to zero out gauges for
// states with no tracked alerts.
var allStates = []State{StateActive, StateResolved, StateAckWIP, StateAckPause, StateAckIgnore, StateAckSilence}

// warrantyRuleName is the well-known pattern rule whose description gets
// rewritten with a day count derived from the triggering metric value.
const warrantyRuleName = "warranty"

// Publisher receives every alert message the engine decides to emit.
type Publisher func(Message)

// Engine ties together the metric cache, the alert store, and the evaluation
// dispatcher driven by metric samples, metric-unavailable signals, and
// explicit touches. One Engine instance per running rule-engine task —
// it is not safe to share across tasks, matching the cooperative
// single-threaded evaluation loop it drives.
type Engine struct {
	mu      sync.Mutex
	catalog *rule.Catalog
	cache   *metric.Cache
	alerts  *store
	publish Publisher
	now     func() uint64
	metrics *metrics.Registry
}

// SetMetrics attaches a metrics registry; evaluation counters and the
// alerts-by-state gauge only get exported after this is called.
func (e *Engine) SetMetrics(m *metrics.Registry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
	e.refreshAlertCountsLocked()
}

func (e *Engine) refreshAlertCountsLocked() {
	if e.metrics == nil {
		return
	}
	counts := make(map[State]int, len(allStates))
	for _, a := range e.alerts.all() {
		counts[a.State]++
	}
	for _, s := range allStates {
		e.metrics.AlertsByState.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}

// New creates an Engine backed by catalog, publishing alert messages via
// publish.
func New(catalog *rule.Catalog, publish Publisher) *Engine {
	return &Engine{
		catalog: catalog,
		cache:   metric.NewCache(),
		alerts:  newStore(),
		publish: publish,
		now:     metric.Now,
	}
}

func (e *Engine) emit(a *Alert) {
	e.refreshAlertCountsLocked()
	if e.publish != nil {
		e.publish(newMessage(a, e.now()))
	}
}

// OnMetricSample runs the full evaluation dispatcher for one sample:
// insert into cache, evict stale entries, look up interested rules,
// evaluate each, update the alert store.
func (e *Engine) OnMetricSample(s metric.Sample) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cache.Insert(s)
	now := e.now()
	e.cache.PurgeStale(now)

	topic := s.Topic()
	for _, r := range e.catalog.RulesForTopic(topic) {
		if r.Kind == rule.KindPattern {
			e.evaluatePattern(r, s, now)
			continue
		}
		for _, assetID := range r.Assets {
			e.evaluateForAsset(r, assetID, now)
		}
	}
}

// OnMetricUnavailable handles a METRICUNAVAILABLE frame: every rule that
// consumes topic has its corresponding alerts forced to RESOLVED, without
// invoking the evaluator.
func (e *Engine) OnMetricUnavailable(topic string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cache.Remove(topic)
	now := e.now()

	for _, r := range e.catalog.RulesForTopic(topic) {
		if r.Kind == rule.KindPattern {
			for _, a := range e.alerts.forRule(r.Name) {
				e.resolveAlert(a, now)
			}
			continue
		}
		for _, assetID := range r.Assets {
			if a, ok := e.alerts.get(ID(r.Name, assetID)); ok {
				e.resolveAlert(a, now)
			}
		}
	}
}

// Touch forces re-evaluation of the named rule against the current cache
// state, without inserting anything new. Returns ErrNotFound if the rule
// is unknown.
func (e *Engine) Touch(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.catalog.Get(name)
	if err != nil {
		return err
	}
	now := e.now()

	if r.Kind == rule.KindPattern {
		if s, ok := e.cache.LastInserted(); ok && r.MatchesTopic(s.Topic()) {
			e.evaluatePattern(r, s, now)
		}
		return nil
	}
	for _, assetID := range r.Assets {
		e.evaluateForAsset(r, assetID, now)
	}
	return nil
}

// ResolveRule resolves every alert owned by r, used after DELETE/UPDATE.
// If r is a pattern rule with no tracked alerts, a synthetic RESOLVED is
// emitted with element "*", since a pattern rule's deletion still needs
// to clear any alert dashboard entry tied to it even with no tracked alerts.
func (e *Engine) ResolveRule(r *rule.Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	owned := e.alerts.forRule(r.Name)
	if len(owned) == 0 && r.Kind == rule.KindPattern {
		synthetic := &Alert{
			RuleName:   r.Name,
			Element:    "*",
			State:      StateResolved,
			OutcomeKey: outcomeOK,
			CTimeS:     now,
			MTimeS:     now,
		}
		e.emit(synthetic)
		return
	}
	for _, a := range owned {
		e.resolveAlert(a, now)
	}
}

const outcomeOK = "ok"

// Alerts returns a snapshot of every tracked alert, used by the broker's
// health/debug surface.
func (e *Engine) Alerts() []*Alert {
	return e.alerts.all()
}

// gatherArgs builds the ordered argument vector for r against assetID from
// the current cache, reporting whether any required metric was missing or
// stale.
func (e *Engine) gatherArgs(r *rule.Rule, assetID string, now uint64) ([]float64, bool) {
	args := make([]float64, len(r.Metrics))
	missing := false
	for i, metricName := range r.Metrics {
		topic := metric.Topic(metricName, assetID)
		sample, ok := e.cache.Get(topic, now)
		if !ok {
			args[i] = math.NaN()
			missing = true
			continue
		}
		args[i] = sample.Value
	}
	return args, missing
}

// evaluateForAsset runs the threshold/single/flexible evaluation path for
// one (rule, asset) pair.
func (e *Engine) evaluateForAsset(r *rule.Rule, assetID string, now uint64) {
	args, missing := e.gatherArgs(r, assetID, now)

	// Missing-data policy: threshold/single rules resolve outright
	// rather than invoking the script with a NaN argument. Flexible rules
	// go on to the evaluator, which rejects a NaN argument (KindBadArg),
	// so their evaluation is logged and skipped for this tick.
	if missing && (r.Kind == rule.KindThreshold || r.Kind == rule.KindSingle) {
		e.applyOutcome(r, assetID, outcomeOK, now, nil)
		return
	}

	outcomeKey, err := e.callEvaluator(r, args)
	if err != nil {
		e.logEvalFailure(r, assetID, err)
		return
	}
	e.applyOutcome(r, assetID, outcomeKey, now, nil)
}

// evaluatePattern runs the pattern-rule evaluation path: element comes from
// the triggering sample, not a static asset list.
func (e *Engine) evaluatePattern(r *rule.Rule, s metric.Sample, now uint64) {
	outcomeKey, err := e.callEvaluator(r, []float64{s.Value})
	if err != nil {
		e.logEvalFailure(r, s.ElementName, err)
		return
	}
	var override *string
	if strings.EqualFold(r.Name, warrantyRuleName) && outcomeKey != outcomeOK {
		d := warrantyDescription(s.Value)
		override = &d
	}
	e.applyOutcome(r, s.ElementName, outcomeKey, now, override)
}

func (e *Engine) callEvaluator(r *rule.Rule, args []float64) (string, error) {
	start := time.Now()
	ev, err := r.Evaluator()
	if err == nil {
		var outcomeKey string
		outcomeKey, err = ev.Evaluate(args)
		if e.metrics != nil {
			e.metrics.ObserveEvaluation(string(r.Kind), time.Since(start).Seconds(), err)
		}
		return outcomeKey, err
	}
	if e.metrics != nil {
		e.metrics.ObserveEvaluation(string(r.Kind), time.Since(start).Seconds(), err)
	}
	return "", err
}

func (e *Engine) logEvalFailure(r *rule.Rule, element string, err error) {
	kind, _ := evalengine.AsKind(err)
	log.Printf("[AlertEngine] rule %q element %q evaluation failed (kind=%d): %v — skipping this tick", r.Name, element, kind, err)
}

// applyOutcome maps outcomeKey through r.Results, updates (or creates) the
// alert for (r, element), and emits a message if the change-detection rule
// of fires. descriptionOverride, when non-nil, replaces the rule's
// declared description (used by the warranty special case).
func (e *Engine) applyOutcome(r *rule.Rule, element, outcomeKey string, now uint64, descriptionOverride *string) {
	id := ID(r.Name, element)
	existing, existed := e.alerts.get(id)

	if outcomeKey == outcomeOK {
		if !existed {
			return // never created, nothing to resolve
		}
		e.resolveAlert(existing, now)
		return
	}

	outcome, known := r.Results[outcomeKey]
	if !known {
		log.Printf("[AlertEngine] rule %q returned unrecognized outcome key %q — skipping", r.Name, outcomeKey)
		return
	}

	description := outcome.Description
	if descriptionOverride != nil {
		description = *descriptionOverride
	}

	ttl := sourceTTL(r, element, e.cache, now)

	next := &Alert{
		RuleName:    r.Name,
		Element:     element,
		State:       StateActive,
		OutcomeKey:  outcomeKey,
		Severity:    outcome.Severity,
		Description: description,
		Actions:     outcome.Actions,
		CTimeS:      now,
		MTimeS:      now,
		TTLSeconds:  ttl,
	}

	if !existed {
		e.alerts.put(next)
		e.emit(next)
		return
	}

	// ACK-* is preserved across continuing ACTIVE evaluations: the
	// engine never resets an acknowledged alert back to ACTIVE on its own.
	if existing.State.IsAck() {
		changed := !existing.fields().equal(outcomeFields{outcomeKey, outcome.Severity, description, outcome.Actions})
		existing.OutcomeKey = outcomeKey
		existing.Severity = outcome.Severity
		existing.Description = description
		existing.Actions = outcome.Actions
		existing.MTimeS = now
		existing.TTLSeconds = ttl
		if changed {
			e.emit(existing)
		}
		return
	}

	changed := existing.State != StateActive || !existing.fields().equal(next.fields())
	existing.State = StateActive
	existing.OutcomeKey = next.OutcomeKey
	existing.Severity = next.Severity
	existing.Description = next.Description
	existing.Actions = next.Actions
	existing.MTimeS = now
	existing.TTLSeconds = ttl
	if changed {
		e.emit(existing)
	}
}

func (e *Engine) resolveAlert(a *Alert, now uint64) {
	if a.State == StateResolved {
		return
	}
	a.State = StateResolved
	a.OutcomeKey = outcomeOK
	a.MTimeS = now
	e.emit(a)
}

// sourceTTL returns 3x the TTL of the metric sample that most plausibly
// drove this evaluation, defaulting to a conservative floor if no sample
// is cached for any of the rule's metrics against element (e.g. a
// flexible rule coping with missing data).
func sourceTTL(r *rule.Rule, element string, cache *metric.Cache, now uint64) uint32 {
	for _, metricName := range r.Metrics {
		topic := metric.Topic(metricName, element)
		if s, ok := cache.Get(topic, now); ok {
			return 3 * s.TTLSeconds
		}
	}
	return 3 * 60
}

func warrantyDescription(days float64) string {
	if days < 0 {
		return fmt.Sprintf("expired %d days ago", int(-days))
	}
	return fmt.Sprintf("expires in less than %d days", int(days))
}
