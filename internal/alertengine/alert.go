// Package alertengine implements the metric cache driven dispatcher and
// the per-(rule, element) alert state machine.
package alertengine

import (
	"fmt"

	"github.com/42ity/fty-alert-engine-sub000/internal/rule"
)

// State is one of the six alert states.
type State string

const (
	StateActive     State = "ACTIVE"
	StateResolved   State = "RESOLVED"
	StateAckWIP     State = "ACK-WIP"
	StateAckPause   State = "ACK-PAUSE"
	StateAckIgnore  State = "ACK-IGNORE"
	StateAckSilence State = "ACK-SILENCE"
)

// IsAck reports whether s is one of the four operator-acknowledged states.
func (s State) IsAck() bool {
	switch s {
	case StateAckWIP, StateAckPause, StateAckIgnore, StateAckSilence:
		return true
	}
	return false
}

// Alert is a single (rule, element) tracking record.
type Alert struct {
	RuleName    string
	Element     string
	State       State
	OutcomeKey  string
	Severity    rule.Severity
	Description string
	Actions     []string
	CTimeS      uint64
	MTimeS      uint64
	TTLSeconds  uint32
}

// ID is "{rule}@{element}", the alert store's primary key.
func (a *Alert) ID() string {
	return ID(a.RuleName, a.Element)
}

// ID builds the primary key for a (rule, element) pair.
func ID(ruleName, element string) string {
	return fmt.Sprintf("%s@%s", ruleName, element)
}

// outcomeFields is what Outcome.Equal-style change detection compares,
// alongside State itself.
type outcomeFields struct {
	OutcomeKey  string
	Severity    rule.Severity
	Description string
	Actions     []string
}

func (a *Alert) fields() outcomeFields {
	return outcomeFields{
		OutcomeKey:  a.OutcomeKey,
		Severity:    a.Severity,
		Description: a.Description,
		Actions:     a.Actions,
	}
}

func sameActions(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (f outcomeFields) equal(o outcomeFields) bool {
	return f.OutcomeKey == o.OutcomeKey && f.Severity == o.Severity &&
		f.Description == o.Description && sameActions(f.Actions, o.Actions)
}

// Message is what gets published to the ALERTS stream on a change.
type Message struct {
	RuleName    string
	Element     string
	State       State
	Severity    rule.Severity
	Description string
	Actions     []string
	TimestampS  uint64
	TTLSeconds  uint32
}

// Subject is the ALERTS stream subject: "{rule_name}/{severity}@{element}".
func (m Message) Subject() string {
	return fmt.Sprintf("%s/%s@%s", m.RuleName, m.Severity, m.Element)
}

func newMessage(a *Alert, now uint64) Message {
	return Message{
		RuleName:    a.RuleName,
		Element:     a.Element,
		State:       a.State,
		Severity:    a.Severity,
		Description: a.Description,
		Actions:     a.Actions,
		TimestampS:  now,
		TTLSeconds:  a.TTLSeconds,
	}
}
