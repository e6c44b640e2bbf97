// Package evalengine implements the single-threaded sandboxed script
// evaluator that turns a metric tuple into an outcome key for one rule.
//
// Each rule owns exactly one Evaluator instance (internal/rule creates it
// on first request, which the catalog makes when it adds, updates or loads
// the rule, and drops it when the rule is deleted). The
// sandbox exposes arithmetic, comparison, string and table operations to
// rule authors via gopher-lua, a pure-Go Lua 5.1 VM — no file, network or
// process primitive is ever registered into the VM's globals.
package evalengine

import (
	"errors"
	"fmt"
	"math"

	lua "github.com/yuin/gopher-lua"
)

// Kind classifies why an Evaluate call failed.
type Kind int

const (
	// KindNone means no error.
	KindNone Kind = iota
	// KindBadCode means set_code failed to compile, run its top-level
	// definitions, or did not expose a "main" function.
	KindBadCode
	// KindBadArg means an evaluation argument was NaN.
	KindBadArg
	// KindEvalFail means main() raised a runtime error.
	KindEvalFail
	// KindBadReturn means main() returned something other than a string
	// outcome key or one of the symbolic integer constants.
	KindBadReturn
)

// Error wraps a Kind with a human-readable message.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newErr(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// AsKind extracts the Kind from err, if err is (or wraps) an *Error.
func AsKind(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindNone, false
}

// Symbolic outcome constants always injected as Lua globals.
// Values are internal only; what matters is the mapping back to outcome
// key names performed by outcomeKeyForConstant.
const (
	constUnknown      = 0
	constOK           = 1
	constLowCritical  = 2
	constLowWarning   = 3
	constHighWarning  = 4
	constHighCritical = 5
)

var constantNames = map[string]lua.LNumber{
	"UNKNOWN":       constUnknown,
	"OK":            constOK,
	"LOW_CRITICAL":  constLowCritical,
	"LOW_WARNING":   constLowWarning,
	"HIGH_WARNING":  constHighWarning,
	"HIGH_CRITICAL": constHighCritical,
}

var outcomeKeyForConstant = map[int]string{
	constUnknown:      "unknown",
	constOK:           "ok",
	constLowCritical:  "low_critical",
	constLowWarning:   "low_warning",
	constHighWarning:  "high_warning",
	constHighCritical: "high_critical",
}

// blockedGlobals are removed from the base library after opening it, so
// that scripts cannot load arbitrary code or touch the filesystem even via
// functions that ship in gopher-lua's "base" library.
var blockedGlobals = []string{"load", "loadstring", "dofile", "loadfile", "require", "module", "collectgarbage"}

// Evaluator compiles and runs one rule's script. Not safe for concurrent
// use — the rule engine task is single-threaded.
type Evaluator struct {
	state *lua.LState
	code  string
}

// New creates an Evaluator with no code loaded yet.
func New() *Evaluator {
	return &Evaluator{}
}

// SetCode compiles src, executes its top-level definitions, and verifies it
// exposes a callable "main". Returns a *Error with KindBadCode on failure.
func (e *Evaluator) SetCode(src string) error {
	st := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, open := range []func(*lua.LState){lua.OpenBase, lua.OpenString, lua.OpenMath, lua.OpenTable} {
		open(st)
	}
	for _, name := range blockedGlobals {
		st.SetGlobal(name, lua.LNil)
	}

	if err := st.DoString(src); err != nil {
		st.Close()
		return newErr(KindBadCode, "compile/execute failed: %v", err)
	}

	fn := st.GetGlobal("main")
	if fn.Type() != lua.LTFunction {
		st.Close()
		return newErr(KindBadCode, "script does not define function \"main\"")
	}

	if e.state != nil {
		e.state.Close()
	}
	e.state = st
	e.code = src
	return nil
}

// Code returns the currently loaded script source.
func (e *Evaluator) Code() string { return e.code }

// SetGlobals injects each named numeric variable, plus the fixed symbolic
// outcome constants, as globals in the evaluator's Lua state.
func (e *Evaluator) SetGlobals(vars map[string]float64) error {
	if e.state == nil {
		return newErr(KindBadCode, "no code loaded")
	}
	for name, v := range vars {
		e.state.SetGlobal(name, lua.LNumber(v))
	}
	for name, v := range constantNames {
		e.state.SetGlobal(name, v)
	}
	return nil
}

// Evaluate calls main(args...) and returns the resolved outcome key.
func (e *Evaluator) Evaluate(args []float64) (string, error) {
	if e.state == nil {
		return "", newErr(KindBadCode, "no code loaded")
	}
	for _, a := range args {
		if math.IsNaN(a) {
			return "", newErr(KindBadArg, "argument is NaN (missing metric)")
		}
	}

	fn := e.state.GetGlobal("main")
	if fn.Type() != lua.LTFunction {
		return "", newErr(KindBadCode, "script does not define function \"main\"")
	}

	lvArgs := make([]lua.LValue, len(args))
	for i, a := range args {
		lvArgs[i] = lua.LNumber(a)
	}

	if err := e.state.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lvArgs...); err != nil {
		return "", newErr(KindEvalFail, "script evaluation failed: %v", err)
	}
	defer e.state.Pop(1)

	ret := e.state.Get(-1)
	switch ret.Type() {
	case lua.LTString:
		s := ret.String()
		if s == "" {
			return "", newErr(KindBadReturn, "main returned an empty string")
		}
		return s, nil
	case lua.LTNumber:
		n := int(ret.(lua.LNumber))
		key, ok := outcomeKeyForConstant[n]
		if !ok {
			return "", newErr(KindBadReturn, "main returned unrecognized constant %d", n)
		}
		return key, nil
	default:
		return "", newErr(KindBadReturn, "main returned unsupported type %s", ret.Type())
	}
}

// Close releases the underlying Lua state. Safe to call multiple times.
func (e *Evaluator) Close() {
	if e.state != nil {
		e.state.Close()
		e.state = nil
	}
}
