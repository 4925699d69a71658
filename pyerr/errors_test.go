package pyerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/heysb/pyvalue"
)

func TestExcIsCatchableAndMatches(t *testing.T) {
	err := Exc(ValueError, "bad value %d", 7)
	assert.True(t, err.Catchable())
	assert.True(t, err.Matches(ValueError))
	assert.False(t, err.Matches(TypeError))
	assert.Equal(t, "ValueError: bad value 7", err.Error())
}

func TestUncatchableIsNotCatchable(t *testing.T) {
	err := Uncatchable(RecursionError, "maximum recursion depth exceeded")
	assert.False(t, err.Catchable())
	// Uncatchable still reports its kind via Matches so traceback
	// formatting can name it even though no except clause may bind it.
	assert.True(t, err.Matches(RecursionError))
}

func TestInternalErrorIsNeverCatchable(t *testing.T) {
	err := InternalError("fell off the end of a function body")
	assert.False(t, err.Catchable())
	assert.False(t, err.Matches(RuntimeError))
	assert.Equal(t, "internal error: fell off the end of a function body", err.Error())
}

func TestIsKindMatchesViaErrorsIs(t *testing.T) {
	err := Exc(KeyError, "missing")
	assert.True(t, errors.Is(err, IsKind(KeyError)))
	assert.False(t, errors.Is(err, IsKind(ValueError)))

	internal := InternalError("boom")
	assert.False(t, errors.Is(internal, IsKind(KeyError)))
}

func TestExcInstancePreservesIdentity(t *testing.T) {
	v := pyvalue.Ref(42)
	err := ExcInstance(v, RuntimeError, "custom message")
	require.NotNil(t, err.Raise)
	assert.Equal(t, v, err.Raise.Instance)
	assert.Equal(t, v, err.Raise.OriginalValue)
	assert.Equal(t, RuntimeError, err.Raise.Exc.Kind)
}

func TestFromResourceErrorIsUncatchableMemoryError(t *testing.T) {
	src := errors.New("instructions: used 1000, limit 1000")
	err := FromResourceError(src)
	assert.False(t, err.Catchable())
	assert.Equal(t, MemoryError, err.Raise.Exc.Kind)
	assert.Contains(t, err.Error(), src.Error())
}

func TestPushFramePreservesOrder(t *testing.T) {
	raise := &ExceptionRaise{Exc: New(ValueError, "boom")}
	raise.PushFrame(StackLocation{ScriptName: "<test>", Line: 3, Function: "inner"})
	raise.PushFrame(StackLocation{ScriptName: "<test>", Line: 9, Function: "outer"})
	require.Len(t, raise.Trace, 2)
	assert.Equal(t, "inner", raise.Trace[0].Function)
	assert.Equal(t, "outer", raise.Trace[1].Function)
}

func TestSimpleExceptionErrorStringWithAndWithoutMessage(t *testing.T) {
	withMsg := &SimpleException{Kind: TypeError, Message: "expected int"}
	assert.Equal(t, "TypeError: expected int", withMsg.Error())

	bare := &SimpleException{Kind: StopIteration}
	assert.Equal(t, "StopIteration", bare.Error())
}

// TestContextAndCauseChaining exercises the fields vm.raiseWithContext/
// execRaiseFrom populate (spec.md §3.5/§4.3/§7): a context-chained
// exception records what was being handled, and a `raise X from Y`
// additionally carries an explicit cause with context suppressed.
func TestContextAndCauseChaining(t *testing.T) {
	context := New(KeyError, "original")
	chained := New(ValueError, "follow-up")
	chained.Context = context
	require.NotNil(t, chained.Context)
	assert.Equal(t, KeyError, chained.Context.Kind)
	assert.False(t, chained.SuppressContext)

	cause := New(RuntimeError, "root cause")
	fromRaise := New(ValueError, "explicit")
	fromRaise.Cause = cause
	fromRaise.SuppressContext = true
	assert.Equal(t, RuntimeError, fromRaise.Cause.Kind)
	assert.True(t, fromRaise.SuppressContext)
}
