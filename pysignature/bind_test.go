package pysignature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wudi/heysb/heap"
	"github.com/wudi/heysb/intern"
	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pyvalue"
	"github.com/wudi/heysb/registry"
	"github.com/wudi/heysb/tracker"
)

func newTestHeap() *heap.Heap {
	return heap.New(tracker.NoLimit(), intern.New())
}

func posOrKw(name string, slot int) registry.Param {
	return registry.Param{Name: name, Kind: registry.ParamPositionalOrKeyword, Slot: slot}
}

// TestBindSimpleExactArgCount exercises def f(a, b): every parameter
// required, positional-or-keyword, no defaults — the fast BindSimple
// path (spec.md §4.4).
func TestBindSimpleExactArgCount(t *testing.T) {
	sig := registry.NewSignature([]registry.Param{posOrKw("a", 0), posOrKw("b", 1)}, nil)
	require.Equal(t, registry.BindSimple, sig.Strategy)

	h := newTestHeap()
	ns, err := Bind(h, sig, []pyvalue.Value{pyvalue.Int(1), pyvalue.Int(2)}, nil)
	require.NoError(t, err)
	assert.Equal(t, pyvalue.Int(1), ns[0])
	assert.Equal(t, pyvalue.Int(2), ns[1])
}

// TestBindSimpleFallsBackToGenericOnKeyword: a BindSimple signature
// called with a keyword argument still binds correctly via the generic
// path, rather than erroring just because the fast path can't handle it.
func TestBindSimpleFallsBackToGenericOnKeyword(t *testing.T) {
	sig := registry.NewSignature([]registry.Param{posOrKw("a", 0), posOrKw("b", 1)}, nil)
	h := newTestHeap()
	ns, err := Bind(h, sig, []pyvalue.Value{pyvalue.Int(1)}, []KwArg{{Name: "b", Value: pyvalue.Int(2)}})
	require.NoError(t, err)
	assert.Equal(t, pyvalue.Int(1), ns[0])
	assert.Equal(t, pyvalue.Int(2), ns[1])
}

// TestBindSimpleWithDefaultsAppliesDefault: def f(a, b=5): calling f(1)
// fills b from Signature.Defaults via CloneValue (spec.md §4.4).
func TestBindSimpleWithDefaultsAppliesDefault(t *testing.T) {
	b := registry.Param{Name: "b", Kind: registry.ParamPositionalOrKeyword, Slot: 1, HasDefault: true, DefaultIndex: 0}
	sig := registry.NewSignature([]registry.Param{posOrKw("a", 0), b}, []pyvalue.Value{pyvalue.Int(5)})
	require.Equal(t, registry.BindSimpleWithDefaults, sig.Strategy)

	h := newTestHeap()
	ns, err := Bind(h, sig, []pyvalue.Value{pyvalue.Int(1)}, nil)
	require.NoError(t, err)
	assert.Equal(t, pyvalue.Int(1), ns[0])
	assert.Equal(t, pyvalue.Int(5), ns[1])
}

// TestBindGenericMissingRequiredArgument covers the error path and its
// cleanup_on_error discipline: every already-bound Value must be dropped
// before the TypeError propagates (spec.md §4.4), including a heap-backed
// one so a leak would show up as a nonzero LiveCount.
func TestBindGenericMissingRequiredArgument(t *testing.T) {
	a := registry.Param{Name: "a", Kind: registry.ParamPositionalOrKeyword, Slot: 0}
	b := registry.Param{Name: "b", Kind: registry.ParamPositionalOrKeyword, Slot: 1}
	kwOnly := registry.Param{Name: "c", Kind: registry.ParamKeywordOnly, Slot: 2}
	sig := registry.NewSignature([]registry.Param{a, b, kwOnly}, nil)
	require.Equal(t, registry.BindGeneric, sig.Strategy)

	h := newTestHeap()
	id, err := h.Allocate(heap.NewStr("bound but will be dropped"))
	require.NoError(t, err)

	_, bindErr := Bind(h, sig, []pyvalue.Value{pyvalue.Ref(id), pyvalue.Int(2)}, nil)
	require.Error(t, bindErr)
	runErr, ok := bindErr.(*pyerr.RunError)
	require.True(t, ok)
	assert.True(t, runErr.Matches(pyerr.TypeError))
	assert.Equal(t, 0, h.LiveCount())
}

// TestBindGenericVarArgsAndVarKwargs covers def f(a, *args, **kwargs)
// called with excess positionals and extra keywords, both routed into
// heap-allocated Tuple/Dict containers (spec.md §4.4).
func TestBindGenericVarArgsAndVarKwargs(t *testing.T) {
	a := registry.Param{Name: "a", Kind: registry.ParamPositionalOrKeyword, Slot: 0}
	varArgs := registry.Param{Name: "args", Kind: registry.ParamVarArgs, Slot: 1}
	varKwargs := registry.Param{Name: "kwargs", Kind: registry.ParamVarKwargs, Slot: 2}
	sig := registry.NewSignature([]registry.Param{a, varArgs, varKwargs}, nil)

	h := newTestHeap()
	ns, err := Bind(h, sig,
		[]pyvalue.Value{pyvalue.Int(1), pyvalue.Int(2), pyvalue.Int(3)},
		[]KwArg{{Name: "extra", Value: pyvalue.Int(9)}})
	require.NoError(t, err)

	assert.Equal(t, pyvalue.Int(1), ns[0])
	require.Equal(t, pyvalue.KindRef, ns[1].Kind)
	tuple := h.Get(ns[1].Ref).(*heap.Tuple)
	assert.Equal(t, []pyvalue.Value{pyvalue.Int(2), pyvalue.Int(3)}, tuple.Items)

	require.Equal(t, pyvalue.KindRef, ns[2].Kind)
	dict := h.Get(ns[2].Ref).(*heap.Dict)
	length, _ := dict.Len()
	assert.Equal(t, 1, length)

	h.DropValues(ns)
	assert.Equal(t, 0, h.LiveCount())
}

// TestBindGenericDuplicateKeywordAndPositional: binding the same slot
// twice (once positionally, once by keyword) is a TypeError, and must
// clean up everything already bound, matching CPython's "got multiple
// values for argument" wording.
func TestBindGenericDuplicateKeywordAndPositional(t *testing.T) {
	a := registry.Param{Name: "a", Kind: registry.ParamPositionalOrKeyword, Slot: 0}
	sig := registry.NewSignature([]registry.Param{a}, nil)

	h := newTestHeap()
	_, err := Bind(h, sig, []pyvalue.Value{pyvalue.Int(1)}, []KwArg{{Name: "a", Value: pyvalue.Int(2)}})
	require.Error(t, err)
	assert.Equal(t, 0, h.LiveCount())
}

// TestBindGenericPositionalOnlyRejectsKeyword: def f(a, /): f(a=1) must
// fail even though "a" resolves to a real slot, since positional-only
// parameters never accept keyword binding (spec.md §4.4).
func TestBindGenericPositionalOnlyRejectsKeyword(t *testing.T) {
	a := registry.Param{Name: "a", Kind: registry.ParamPositionalOnly, Slot: 0}
	sig := registry.NewSignature([]registry.Param{a}, nil)

	h := newTestHeap()
	_, err := Bind(h, sig, nil, []KwArg{{Name: "a", Value: pyvalue.Int(1)}})
	require.Error(t, err)
	runErr, ok := err.(*pyerr.RunError)
	require.True(t, ok)
	assert.True(t, runErr.Matches(pyerr.TypeError))
}
