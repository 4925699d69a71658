// Package frame implements the per-function execution record described
// by spec.md §3.4/§3.6: a flat locals vector addressed by prepare-time
// scope decisions, plus the Frame that owns it, the operand-stack slice
// it claims, and its exception table. Mirrors the shape of the teacher's
// vm.CallFrame (compiled code + constants + IP + locals map + exception
// handlers + pending calls), generalized from PHP's string-keyed locals
// map to Python's flat, prepare-time-resolved slot vector.
package frame

import (
	"github.com/wudi/heysb/pyvalue"
	"github.com/wudi/heysb/registry"
)

// ScopeKind is the prepare-time decision spec.md §3.4 describes for every
// identifier: which of the four scopes it resolves to.
type ScopeKind byte

const (
	ScopeLocal ScopeKind = iota
	ScopeLocalUnassigned
	ScopeGlobal
	ScopeCell
)

// Frame is a single activation record. Locals is addressed by the slot
// indices registry.Signature/registry.Function computed at prepare time;
// Cell-scoped slots hold pyvalue.Ref(cellHeapId) values whose real
// storage is a heap.Cell, shared with whatever nested scope captured it.
type Frame struct {
	Code *registry.Function

	Locals []pyvalue.Value

	// CallerLoc is used to build a traceback entry if this frame raises
	// or is unwound past (spec.md §3.6).
	CallerLine int
	CallerFunc string

	StackBase int // index into the shared operand stack where this frame's slice begins
	IP        int

	// GeneratorID is non-zero when this frame's persistent state is
	// (or was) owned by a Generator/Coroutine heap object rather than
	// the live frame stack (spec.md §3.6/§3.7).
	GeneratorID pyvalue.HeapId
	HasGenerator bool

	// TaskID identifies the asyncio.gather-spawned task this frame
	// belongs to, 0 for the root call (spec.md §5).
	TaskID uint32
}

// New constructs a frame for fn with nLocals pre-sized slots, all
// Undefined (spec.md §3.2: Undefined is the sentinel for unbound
// locals — a frame never starts with zero-valued Go structs standing in
// for "unbound").
func New(fn *registry.Function, nLocals int, stackBase int) *Frame {
	locals := make([]pyvalue.Value, nLocals)
	for i := range locals {
		locals[i] = pyvalue.Undefined
	}
	return &Frame{Code: fn, Locals: locals, StackBase: stackBase}
}

