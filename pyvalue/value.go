// Package pyvalue implements the uniform Value representation shared by
// the heap, the VM, the signature binder and the stdlib (spec.md §3.2,
// §4.2). It is the Go analogue of the teacher's values.Value — a small
// tagged union with a Type discriminant — generalized from PHP's value
// set to Python's and split so that heap-backed payloads live in package
// heap instead of being embedded here.
package pyvalue

import (
	"github.com/wudi/heysb/intern"
)

// Kind discriminates a Value the way the teacher's ValueType discriminates
// its PHP values.
type Kind byte

const (
	KindUndefined Kind = iota
	KindNone
	KindNotImplemented
	KindEllipsis
	KindBool
	KindInt
	KindFloat
	KindInternString
	KindInternBytes
	KindInternLongInt
	KindBuiltin
	KindDefFunction
	KindExtFunction
	KindModuleFunction
	KindMarker
	KindProperty
	KindExternalFuture
	KindRef
)

// HeapId is re-declared here (rather than imported) to avoid a dependency
// cycle between pyvalue and heap: heap stores Values, and Values that are
// Kind == KindRef carry a HeapId. Both packages agree on the underlying
// type (uint64 generational index split as index:generation).
type HeapId uint64

// CallId identifies a suspended external call or future across the
// suspension boundary (spec.md §4.5, §6.1).
type CallId uint32

// FunctionId identifies a compiled, prepared function body (spec.md §3.2's
// DefFunction variant payload).
type FunctionId uint32

// Value is the uniform representation described by spec.md §3.2. Every
// owning Value with Kind == KindRef owns exactly one reference on its
// HeapId; callers must route every copy through Clone and every discard
// through a heap's DecRef (see heap.Heap.Drop).
type Value struct {
	Kind Kind

	// Immediate payloads. Only one is meaningful per Kind; they are kept
	// as separate fields (rather than interface{}) so that Value stays a
	// small, copyable, allocation-free struct — the same reason the
	// teacher's Value keeps Data as a single field is explicitly
	// sacrificed here because Python's immediates need more than one
	// machine word and boxing them would defeat the "no heap traffic for
	// immediates" invariant in spec.md §3.2.
	B    bool
	I    int64
	F    float64
	SID  intern.StringId
	BID  intern.BytesId
	LID  intern.LongIntId
	FnID FunctionId
	Call CallId
	Ref  HeapId

	// Builtin/ExtFunction/ModuleFunction/Marker/Property identify a
	// dispatch-table row by name; stored as an interned string id so
	// equality and hashing stay O(1).
	Name intern.StringId
}

// Undefined is the sentinel for unbound locals (spec.md §3.2). It is
// never Python-visible; the VM turns an observed access into
// UnboundLocalError/NameError before a caller ever sees this value.
var Undefined = Value{Kind: KindUndefined}

// None, NotImplemented and Ellipsis are Python's other singletons.
var (
	None           = Value{Kind: KindNone}
	NotImplemented = Value{Kind: KindNotImplemented}
	Ellipsis       = Value{Kind: KindEllipsis}
)

func Bool(b bool) Value    { return Value{Kind: KindBool, B: b} }
func Int(i int64) Value    { return Value{Kind: KindInt, I: i} }
func Float(f float64) Value { return Value{Kind: KindFloat, F: f} }

func InternString(id intern.StringId) Value { return Value{Kind: KindInternString, SID: id} }
func InternBytes(id intern.BytesId) Value   { return Value{Kind: KindInternBytes, BID: id} }
func InternLongInt(id intern.LongIntId) Value {
	return Value{Kind: KindInternLongInt, LID: id}
}

func ExternalFuture(id CallId) Value { return Value{Kind: KindExternalFuture, Call: id} }

func DefFunction(id FunctionId) Value { return Value{Kind: KindDefFunction, FnID: id} }

func Ref(id HeapId) Value { return Value{Kind: KindRef, Ref: id} }

// IsImmediate reports whether v needs no heap bookkeeping at all — the
// fast path every Clone/Drop call takes before touching a heap.
func (v Value) IsImmediate() bool { return v.Kind != KindRef }

// IsUndefined reports the unbound-local sentinel (spec.md §3.2).
func (v Value) IsUndefined() bool { return v.Kind == KindUndefined }

// Truthy is the Python boolean-coercion of immediates the VM can decide
// without consulting the heap (Ref values delegate to PyTrait.Bool via
// the heap, see heap.Heap.Bool).
func (v Value) Truthy() (bool, bool) {
	switch v.Kind {
	case KindNone, KindUndefined:
		return false, true
	case KindBool:
		return v.B, true
	case KindInt:
		return v.I != 0, true
	case KindFloat:
		return v.F != 0, true
	default:
		return false, false
	}
}

// Equal reports immediate-to-immediate equality; Ref-to-Ref equality is
// the heap's job since it may require calling a user __eq__.
func (v Value) Equal(o Value) (bool, bool) {
	if v.Kind != o.Kind {
		// Python's numeric tower compares Int and Float cross-kind.
		if v.Kind == KindInt && o.Kind == KindFloat {
			return float64(v.I) == o.F, true
		}
		if v.Kind == KindFloat && o.Kind == KindInt {
			return v.F == float64(o.I), true
		}
		return false, true
	}
	switch v.Kind {
	case KindNone, KindNotImplemented, KindEllipsis, KindUndefined:
		return true, true
	case KindBool:
		return v.B == o.B, true
	case KindInt:
		return v.I == o.I, true
	case KindFloat:
		return v.F == o.F, true
	case KindInternString:
		return v.SID == o.SID, true
	case KindInternBytes:
		return v.BID == o.BID, true
	case KindInternLongInt:
		return v.LID == o.LID, true
	case KindDefFunction:
		return v.FnID == o.FnID, true
	case KindExternalFuture:
		return v.Call == o.Call, true
	default:
		return false, false
	}
}
