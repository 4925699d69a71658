// Package tracker implements the resource-tracker contract from spec.md
// §6.3: a gas counter consulted on every allocation, opcode step and
// frame push. It is the Go analogue of the teacher's DebugLevel-gated
// instrumentation (vm.VirtualMachine.profile) generalized into an
// explicit, swappable accounting interface so a host can plug in its own
// policy (including one that also consults a monotonic clock, per
// spec.md §5's "hosts wanting wall-clock limits" note).
package tracker

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// ResourceError is returned by a Tracker when a limit is exceeded. The VM
// (package vm) converts it into pyerr.UncatchableExc per spec.md §4.1/§7
// — it is never caught by a Python except clause.
type ResourceError struct {
	Kind    string // "memory", "instructions", "frames"
	Limit   int64
	Used    int64
}

func (e *ResourceError) Error() string {
	switch e.Kind {
	case "memory":
		return fmt.Sprintf("memory limit exceeded: used %s, limit %s",
			humanize.Bytes(uint64(e.Used)), humanize.Bytes(uint64(e.Limit)))
	default:
		return fmt.Sprintf("%s limit exceeded: used %s, limit %s",
			e.Kind, humanize.Comma(e.Used), humanize.Comma(e.Limit))
	}
}

// CostTable assigns a gas cost per opcode category. The exact cost
// function an implementation assesses per opcode is implementation
// defined (spec.md §9 open question); this table only needs to keep a
// stable relative ordering, which is all spec.md §8 property 7 asserts.
type CostTable struct {
	Arithmetic int64
	Compare    int64
	Branch     int64
	Alloc      int64
	Call       int64
	Attr       int64
	Default    int64
}

// DefaultCostTable matches the teacher's intuition that calls and
// allocations are the expensive opcodes and arithmetic/branches are
// cheap — values are illustrative, not a spec'd constant (spec.md §9).
var DefaultCostTable = CostTable{
	Arithmetic: 1,
	Compare:    1,
	Branch:     1,
	Alloc:      4,
	Call:       8,
	Attr:       2,
	Default:    1,
}

// Tracker is the contract spec.md §6.3 describes.
type Tracker interface {
	OnAllocate(sizeBytes int64) error
	OnInstruction() error
	OnFramePush() error
	// OnFramePop lets a LimitedTracker give back frame-depth budget; it
	// has no effect on a NoLimitTracker. Not part of spec.md's written
	// contract but required for any tracker that charges frame depth to
	// behave correctly across deep-but-not-wide recursion.
	OnFramePop()
}

// noLimit never refuses anything.
type noLimit struct{}

func (noLimit) OnAllocate(int64) error { return nil }
func (noLimit) OnInstruction() error   { return nil }
func (noLimit) OnFramePush() error     { return nil }
func (noLimit) OnFramePop()            {}

// NoLimit returns the always-Ok tracker (spec.md §6.3's NoLimitTracker).
func NoLimit() Tracker { return noLimit{} }

// Limited is spec.md §6.3's LimitedTracker: hard ceilings on heap bytes,
// instruction count and frame depth.
type Limited struct {
	MaxMemory       int64
	MaxInstructions int64
	MaxFrames       int64

	usedMemory   int64
	instructions int64
	frames       int64
}

// NewLimited constructs a Limited tracker. A zero limit means "unlimited"
// for that dimension, matching the common case of only wanting to bound
// one resource.
func NewLimited(maxMemory, maxInstructions, maxFrames int64) *Limited {
	return &Limited{MaxMemory: maxMemory, MaxInstructions: maxInstructions, MaxFrames: maxFrames}
}

func (t *Limited) OnAllocate(sizeBytes int64) error {
	if t.MaxMemory > 0 && t.usedMemory+sizeBytes > t.MaxMemory {
		return &ResourceError{Kind: "memory", Limit: t.MaxMemory, Used: t.usedMemory + sizeBytes}
	}
	t.usedMemory += sizeBytes
	return nil
}

func (t *Limited) OnInstruction() error {
	t.instructions++
	if t.MaxInstructions > 0 && t.instructions > t.MaxInstructions {
		return &ResourceError{Kind: "instructions", Limit: t.MaxInstructions, Used: t.instructions}
	}
	return nil
}

func (t *Limited) OnFramePush() error {
	t.frames++
	if t.MaxFrames > 0 && t.frames > t.MaxFrames {
		return &ResourceError{Kind: "frames", Limit: t.MaxFrames, Used: t.frames}
	}
	return nil
}

func (t *Limited) OnFramePop() {
	if t.frames > 0 {
		t.frames--
	}
}

// InstructionsUsed and MemoryUsed report current usage, chiefly for CLI
// diagnostics (cmd/heysb) and tests.
func (t *Limited) InstructionsUsed() int64 { return t.instructions }
func (t *Limited) MemoryUsed() int64       { return t.usedMemory }
func (t *Limited) FramesUsed() int64       { return t.frames }
