// Package registry holds the compiled, prepare-time representation of
// functions, classes and signatures — the "already-prepared bytecode and
// identifier/namespace metadata" spec.md §1 says the VM consumes. Mirrors
// the shape of the teacher's registry.Function/registry.Parameter/
// registry.Class, generalized from PHP's parameter grammar (by-ref,
// variadic, typed) to Python's full grammar (positional-only,
// positional-or-keyword, *args, keyword-only, **kwargs) per spec.md §4.4.
package registry

import (
	"github.com/wudi/heysb/opcodes"
	"github.com/wudi/heysb/pyvalue"
)

// Function is a compiled, prepared function body.
type Function struct {
	ID           pyvalue.FunctionId
	Name         string
	ScriptName   string
	Instructions []opcodes.Instruction
	Constants    []pyvalue.Value
	ExceptTable  []opcodes.ExceptionTableEntry

	Signature *Signature

	NumLocals        int
	CellVarSlots     []int // indices within Locals that are Cell-scoped
	FreeVarEnclosing []int // indices in the enclosing frame's cells this function captures, parallel to CellVarSlots' tail

	IsGenerator bool
	IsAsync     bool
}

// Class is a compiled, prepared class body (spec.md §3.3's ClassObject
// payload is the heap-resident runtime instance of one of these).
type Class struct {
	Name      string
	UID       uint32
	Bases     []string // base class names, resolved to Class objects at BuildClass time
	MRO       []string
	Namespace map[string]pyvalue.Value // class-body-level methods/attributes, by name
	Slots     []string
}

// ParamKind discriminates the five slot categories Python's grammar
// allows (spec.md §4.4).
type ParamKind byte

const (
	ParamPositionalOnly ParamKind = iota
	ParamPositionalOrKeyword
	ParamVarArgs // *args
	ParamKeywordOnly
	ParamVarKwargs // **kwargs
)

// Param describes one parameter slot.
type Param struct {
	Name         string
	Kind         ParamKind
	Slot         int // index into the namespace layout (spec.md §4.4)
	HasDefault   bool
	DefaultIndex int // index into Signature.Defaults, meaningful iff HasDefault
}

// BindStrategy is decided once at Signature construction time
// (spec.md §4.4) so the binder never has to re-inspect the parameter
// list on every call.
type BindStrategy byte

const (
	BindGeneric BindStrategy = iota
	BindSimple             // no defaults, no *args/**kwargs, no kw-only, no pos-only
	BindSimpleWithDefaults // only positional-or-keyword params, some with defaults
)

// Signature is the precomputed shape of a callable's parameter list.
// Fields mirror spec.md §4.4: a per-parameter list plus the counts/flags
// the binder's fast paths need without rescanning Params.
type Signature struct {
	Params []Param

	NumPositionalOnly      int
	NumPositionalOrKeyword int
	NumKeywordOnly         int
	HasVarArgs             bool
	VarArgsSlot            int
	HasVarKwargs           bool
	VarKwargsSlot          int

	// Defaults holds default *values*, evaluated at function-definition
	// time and stored alongside the signature (spec.md §4.4). A
	// Signature is 1:1 with a Function, so there is no sharing concern
	// across closures with different captured defaults — only cells are
	// per-closure.
	Defaults []pyvalue.Value

	Strategy BindStrategy

	// NameToSlot supports O(1) keyword-argument lookup in the generic
	// bind path.
	NameToSlot map[string]int
}

// MaxBindableParams bounds the 64-bit bound-parameter bitmap spec.md
// §4.4 uses for duplicate-bind detection; a Signature with more
// parameters is rejected at prepare time ("functions exceeding the cap
// are rejected at prepare time").
const MaxBindableParams = 64

// NewSignature builds a Signature from params, computing the counts and
// the fast-path strategy once so the binder (package pysignature) never
// has to.
func NewSignature(params []Param, defaults []pyvalue.Value) *Signature {
	sig := &Signature{Params: params, Defaults: defaults, NameToSlot: make(map[string]int, len(params))}

	hasPosOnly := false
	hasKwOnly := false
	anyDefault := false

	for i, p := range params {
		sig.NameToSlot[p.Name] = i
		switch p.Kind {
		case ParamPositionalOnly:
			sig.NumPositionalOnly++
			hasPosOnly = true
		case ParamPositionalOrKeyword:
			sig.NumPositionalOrKeyword++
		case ParamKeywordOnly:
			sig.NumKeywordOnly++
			hasKwOnly = true
		case ParamVarArgs:
			sig.HasVarArgs = true
			sig.VarArgsSlot = p.Slot
		case ParamVarKwargs:
			sig.HasVarKwargs = true
			sig.VarKwargsSlot = p.Slot
		}
		if p.HasDefault {
			anyDefault = true
		}
	}

	switch {
	case !hasPosOnly && !hasKwOnly && !sig.HasVarArgs && !sig.HasVarKwargs && !anyDefault:
		sig.Strategy = BindSimple
	case !hasPosOnly && !hasKwOnly && !sig.HasVarArgs && !sig.HasVarKwargs:
		sig.Strategy = BindSimpleWithDefaults
	default:
		sig.Strategy = BindGeneric
	}
	return sig
}
