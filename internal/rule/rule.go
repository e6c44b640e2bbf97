// Package rule implements the rule catalog: the typed rule model, its
// JSON codec, per-file persistence, and the by_name/by_metric_topic/by_asset
// indexes.
package rule

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/42ity/fty-alert-engine-sub000/internal/evalengine"
	"golang.org/x/text/unicode/norm"
)

// Kind discriminates the four rule variants. Rule is a sealed sum
// type over these: Threshold | Single | Pattern | Flexible, dispatching on
// Kind for the JSON codec and for evaluation semantics.
type Kind string

const (
	KindThreshold Kind = "threshold"
	KindSingle    Kind = "single"
	KindPattern   Kind = "pattern"
	KindFlexible  Kind = "flexible"
)

// Valid reports whether k is one of the four known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindThreshold, KindSingle, KindPattern, KindFlexible:
		return true
	}
	return false
}

// Severity is the alert severity a non-"ok" outcome declares.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
	SeverityOK       Severity = "OK"
)

// outcomeOK is the implicit outcome key that always resolves to RESOLVED.
const outcomeOK = "ok"

// Outcome is what a rule declares for one outcome key: what to do
// (actions), how severe it is, and a human description.
type Outcome struct {
	Actions       []string
	Severity      Severity
	Description   string
	ThresholdName string
}

// Equal implements the original rule.h Outcome::operator==. The alert
// engine's change detection does not call it: it compares its own copy of
// the outcome key, severity, description and actions (alertengine's
// outcomeFields).
func (o Outcome) Equal(other Outcome) bool {
	if o.Severity != other.Severity || o.Description != other.Description || o.ThresholdName != other.ThresholdName {
		return false
	}
	if len(o.Actions) != len(other.Actions) {
		return false
	}
	for i := range o.Actions {
		if o.Actions[i] != other.Actions[i] {
			return false
		}
	}
	return true
}

// Rule is the common header shared by all four kinds.
type Rule struct {
	Name        string
	Kind        Kind
	Description string
	Class       string
	Categories  []string
	// Metrics is the ordered list of metric names, or for KindPattern a
	// single-element slice holding the topic regex source.
	Metrics []string
	// Assets is the ordered list of element names the rule applies to; may
	// be empty for KindPattern.
	Assets    []string
	Results   map[string]Outcome
	Source    string
	Variables map[string]float64
	Code      string
	Hierarchy string

	// topTrash/bodyTrash preserve unrecognized JSON members verbatim for
	// round-tripping, the "trash tolerance" property.
	topTrash  map[string]rawJSON
	bodyTrash map[string]rawJSON

	pattern   *regexp.Regexp
	evaluator *evalengine.Evaluator
}

const defaultSource = "Manual user input"

// NamesEqual compares two rule names the way the original utf8eq did:
// case-sensitive but UTF-8 normalized, so visually identical names that
// differ only in Unicode composition still match.
func NamesEqual(a, b string) bool {
	return norm.NFC.String(a) == norm.NFC.String(b)
}

// FileName is the persistence file name for this rule: "{name}.rule".
func (r *Rule) FileName() string {
	return r.Name + ".rule"
}

// HasAsset reports whether assetID appears in r.Assets.
func (r *Rule) HasAsset(assetID string) bool {
	for _, a := range r.Assets {
		if a == assetID {
			return true
		}
	}
	return false
}

// Pattern returns the compiled POSIX regex for a KindPattern rule, compiling
// it lazily on first use.
func (r *Rule) Pattern() (*regexp.Regexp, error) {
	if r.Kind != KindPattern {
		return nil, fmt.Errorf("%w: pattern() called on %s rule", ErrBadJSON, r.Kind)
	}
	if r.pattern != nil {
		return r.pattern, nil
	}
	if len(r.Metrics) != 1 {
		return nil, fmt.Errorf("%w: pattern rule must have exactly one metrics entry (the regex)", ErrBadJSON)
	}
	re, err := regexp.CompilePOSIX(r.Metrics[0])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid pattern regex: %v", ErrBadJSON, err)
	}
	r.pattern = re
	return re, nil
}

// MatchesTopic reports whether a pattern rule's regex matches topic.
func (r *Rule) MatchesTopic(topic string) bool {
	re, err := r.Pattern()
	if err != nil {
		return false
	}
	return re.MatchString(topic)
}

// Validate enforces the structural requirements specific to each kind.
func (r *Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: rule_name is required", ErrBadJSON)
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown rule kind %q", ErrBadJSON, r.Kind)
	}
	if len(r.Results) == 0 {
		return fmt.Errorf("%w: results must be nonempty", ErrBadJSON)
	}
	if _, ok := r.Results[outcomeOK]; !ok {
		// The implicit "ok" outcome always resolves to RESOLVED: dispatch
		// resolves on an "ok" outcome key (and on missing data) without
		// looking it up in Results, so a rule that does not declare it
		// still resolves. Not a validation failure.
		_ = ok
	}

	switch r.Kind {
	case KindThreshold:
		if len(r.Metrics) != 1 {
			return fmt.Errorf("%w: threshold rule requires exactly one metric", ErrBadJSON)
		}
		if len(r.Assets) != 1 {
			return fmt.Errorf("%w: threshold rule requires exactly one asset", ErrBadJSON)
		}
		for _, want := range []string{"low_critical", "low_warning", "high_warning", "high_critical"} {
			if _, ok := r.Variables[want]; !ok {
				return fmt.Errorf("%w: threshold rule missing variable %q", ErrBadJSON, want)
			}
		}
		for _, want := range []string{"low_critical", "low_warning", "high_warning", "high_critical", outcomeOK} {
			if _, ok := r.Results[want]; !ok {
				return fmt.Errorf("%w: threshold rule missing outcome %q", ErrBadJSON, want)
			}
		}
	case KindSingle:
		if len(r.Metrics) == 0 {
			return fmt.Errorf("%w: single rule requires at least one metric", ErrBadJSON)
		}
		if len(r.Assets) != 1 {
			return fmt.Errorf("%w: single rule requires exactly one asset", ErrBadJSON)
		}
	case KindPattern:
		if len(r.Metrics) != 1 {
			return fmt.Errorf("%w: pattern rule requires exactly one regex entry", ErrBadJSON)
		}
		if _, err := regexp.CompilePOSIX(r.Metrics[0]); err != nil {
			return fmt.Errorf("%w: invalid pattern regex: %v", ErrBadJSON, err)
		}
	case KindFlexible:
		if len(r.Assets) == 0 {
			return fmt.Errorf("%w: flexible rule rejected without at least one bound asset", ErrBadJSON)
		}
	}
	return nil
}
