package rule

import (
	"fmt"

	"github.com/42ity/fty-alert-engine-sub000/internal/evalengine"
)

// Evaluator lazily creates (on first use) and thereafter returns this
// rule's single sandboxed evaluator instance. Each rule owns one evaluator
// instance, destroyed along with the rule. The catalog makes the first call
// when it adds, updates or loads the rule, to compile its script, so the
// instance exists before the rule's first evaluation.
func (r *Rule) Evaluator() (*evalengine.Evaluator, error) {
	if r.evaluator != nil {
		return r.evaluator, nil
	}
	e := evalengine.New()
	if err := e.SetCode(r.Code); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadLua, err)
	}
	if err := e.SetGlobals(r.Variables); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadLua, err)
	}
	r.evaluator = e
	return r.evaluator, nil
}

// CloseEvaluator destroys this rule's evaluator instance, if any. Called
// when the rule is deleted or replaced.
func (r *Rule) CloseEvaluator() {
	if r.evaluator != nil {
		r.evaluator.Close()
		r.evaluator = nil
	}
}
