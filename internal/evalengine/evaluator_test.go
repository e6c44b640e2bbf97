package evalengine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluator_ThresholdScript(t *testing.T) {
	e := New()
	defer e.Close()

	script := `
function main(value)
  if value < low_critical then return LOW_CRITICAL end
  if value < low_warning then return LOW_WARNING end
  if value > high_critical then return HIGH_CRITICAL end
  if value > high_warning then return HIGH_WARNING end
  return OK
end
`
	require.NoError(t, e.SetCode(script))
	require.NoError(t, e.SetGlobals(map[string]float64{
		"low_critical":  30,
		"low_warning":   40,
		"high_warning":  50,
		"high_critical": 60,
	}))

	cases := []struct {
		value float64
		want  string
	}{
		{20, "low_critical"},
		{42, "ok"},
		{52, "high_warning"},
		{62, "high_critical"},
		{42, "ok"},
	}
	for _, c := range cases {
		got, err := e.Evaluate([]float64{c.value})
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}
}

func TestEvaluator_StringOutcome(t *testing.T) {
	e := New()
	defer e.Close()
	require.NoError(t, e.SetCode(`function main(a, b) if a > b then return "high" else return "ok" end end`))
	require.NoError(t, e.SetGlobals(nil))

	got, err := e.Evaluate([]float64{5, 1})
	require.NoError(t, err)
	assert.Equal(t, "high", got)
}

func TestEvaluator_MissingMain(t *testing.T) {
	e := New()
	defer e.Close()
	err := e.SetCode(`x = 1 + 1`)
	require.Error(t, err)
	kind, ok := AsKind(err)
	require.True(t, ok)
	assert.Equal(t, KindBadCode, kind)
}

func TestEvaluator_CompileError(t *testing.T) {
	e := New()
	defer e.Close()
	err := e.SetCode(`function main( return end`)
	require.Error(t, err)
	kind, _ := AsKind(err)
	assert.Equal(t, KindBadCode, kind)
}

func TestEvaluator_NaNArgIsBadArg(t *testing.T) {
	e := New()
	defer e.Close()
	require.NoError(t, e.SetCode(`function main(v) return OK end`))
	require.NoError(t, e.SetGlobals(nil))

	_, err := e.Evaluate([]float64{math.NaN()})
	require.Error(t, err)
	kind, _ := AsKind(err)
	assert.Equal(t, KindBadArg, kind)
}

func TestEvaluator_BadReturnShape(t *testing.T) {
	e := New()
	defer e.Close()
	require.NoError(t, e.SetCode(`function main() return {} end`))
	require.NoError(t, e.SetGlobals(nil))

	_, err := e.Evaluate(nil)
	require.Error(t, err)
	kind, _ := AsKind(err)
	assert.Equal(t, KindBadReturn, kind)
}

func TestEvaluator_RuntimeError(t *testing.T) {
	e := New()
	defer e.Close()
	require.NoError(t, e.SetCode(`function main() error("boom") end`))
	require.NoError(t, e.SetGlobals(nil))

	_, err := e.Evaluate(nil)
	require.Error(t, err)
	kind, _ := AsKind(err)
	assert.Equal(t, KindEvalFail, kind)
}

func TestEvaluator_Sandboxed_NoIO(t *testing.T) {
	e := New()
	defer e.Close()
	err := e.SetCode(`function main() return tostring(io) end`)
	// io table itself is undefined (nil) in the sandbox: tostring(nil) == "nil",
	// not an error, but io.open must not exist as a callable.
	require.NoError(t, err)
	require.NoError(t, e.SetGlobals(nil))
	got, evalErr := e.Evaluate(nil)
	require.NoError(t, evalErr)
	assert.Equal(t, "nil", got)

	err = e.SetCode(`function main() os.execute("echo hi") end`)
	require.NoError(t, err)
	require.NoError(t, e.SetGlobals(nil))
	_, evalErr = e.Evaluate(nil)
	require.Error(t, evalErr)
}
