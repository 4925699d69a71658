// Package asm is the "prepare phase" stand-in spec.md §1 calls out: a
// small bytecode assembler used by tests and cmd/heysb to build a
// registry.Function/intern.Table pair from a Go call sequence, with no
// parsing or AST lowering — just an instruction emitter over the
// already-defined opcodes.Opcode set. Grounded on the teacher's
// compiler-internal instruction-emission helpers (compiler/compiler.go's
// emit/patchJump pattern: append an Instruction, remember its index for
// later backpatching), generalized to a small standalone builder since
// this repo ships no lexer/parser/compiler package at all.
package asm

import (
	"bytes"
	"encoding/gob"
	"os"

	"github.com/wudi/heysb/intern"
	"github.com/wudi/heysb/opcodes"
	"github.com/wudi/heysb/pyvalue"
	"github.com/wudi/heysb/registry"
)

// Builder accumulates one function's instructions, constants, exception
// table and locals layout.
type Builder struct {
	name       string
	scriptName string
	instrs     []opcodes.Instruction
	consts     []pyvalue.Value
	except     []opcodes.ExceptionTableEntry
	numLocals  int
	isGen      bool
	isAsync    bool
	params     []registry.Param
	defaults   []pyvalue.Value
}

// NewBuilder starts a function body named name, compiled from
// scriptName (used only for traceback text, spec.md §7).
func NewBuilder(name, scriptName string) *Builder {
	return &Builder{name: name, scriptName: scriptName}
}

// Generator/Async mark the function as a generator/coroutine body
// (spec.md §3.7); the VM's OpYield/OpAwait handling only makes sense
// when one of these is set.
func (b *Builder) Generator() *Builder { b.isGen = true; return b }
func (b *Builder) Async() *Builder     { b.isAsync = true; return b }

// Param declares one parameter slot, in declaration order; slot is the
// locals-vector index OpLoadLocal/OpStoreLocal address (spec.md §4.4).
func (b *Builder) Param(name string, kind registry.ParamKind, slot int) *Builder {
	b.params = append(b.params, registry.Param{Name: name, Kind: kind, Slot: slot})
	return b
}

// ParamWithDefault declares a parameter with a default value, evaluated
// once here the way CPython evaluates defaults at def time.
func (b *Builder) ParamWithDefault(name string, kind registry.ParamKind, slot int, def pyvalue.Value) *Builder {
	idx := len(b.defaults)
	b.defaults = append(b.defaults, def)
	b.params = append(b.params, registry.Param{Name: name, Kind: kind, Slot: slot, HasDefault: true, DefaultIndex: idx})
	return b
}

// Locals sets the total locals-vector size (spec.md §4.4's namespace
// layout); must cover every parameter slot plus any plain local/cell
// variable the body addresses.
func (b *Builder) Locals(n int) *Builder { b.numLocals = n; return b }

// Const interns a constant value, returning the constant-pool index
// OpLoadConst's Arg should carry.
func (b *Builder) Const(v pyvalue.Value) int32 {
	b.consts = append(b.consts, v)
	return int32(len(b.consts) - 1)
}

// Emit appends one instruction and returns its index, for callers that
// need to backpatch a forward jump's Arg once the target is known
// (mirrors the teacher's compiler emit/patchJump idiom).
func (b *Builder) Emit(op opcodes.Opcode, arg, arg2 int32, line int) int {
	b.instrs = append(b.instrs, opcodes.Instruction{Op: op, Arg: arg, Arg2: arg2, Line: line})
	return len(b.instrs) - 1
}

// Patch overwrites a previously emitted instruction's Arg, for resolving
// a forward jump once its target index is known.
func (b *Builder) Patch(index int, arg int32) {
	b.instrs[index].Arg = arg
}

// Here returns the index the next Emit call will land at, i.e. a jump
// target for a backward jump (a loop head) or the value to Patch a
// forward jump to once control reaches this point.
func (b *Builder) Here() int32 { return int32(len(b.instrs)) }

// ExceptRange declares one exception-table entry (spec.md §4.3).
func (b *Builder) ExceptRange(startPC, endPC, handlerPC, stackDepth int) *Builder {
	b.except = append(b.except, opcodes.ExceptionTableEntry{
		StartPC: startPC, EndPC: endPC, HandlerPC: handlerPC, StackDepth: stackDepth,
	})
	return b
}

// Build finalizes the function against id, binding its Signature from
// the declared parameters.
func (b *Builder) Build(id pyvalue.FunctionId) *registry.Function {
	return &registry.Function{
		ID:           id,
		Name:         b.name,
		ScriptName:   b.scriptName,
		Instructions: b.instrs,
		Constants:    b.consts,
		ExceptTable:  b.except,
		Signature:    registry.NewSignature(b.params, b.defaults),
		NumLocals:    b.numLocals,
		IsGenerator:  b.isGen,
		IsAsync:      b.isAsync,
	}
}

// Unit bundles every compiled function/class plus the intern table they
// were assembled against — the registry.Unit-shaped "prepare" output
// spec.md §1 says callers construct directly or via this package, ready
// to hand to sandbox.New.
type Unit struct {
	Functions     map[pyvalue.FunctionId]*registry.Function
	Classes       map[uint32]*registry.Class
	Interns       *intern.Table
	Entry         pyvalue.FunctionId
	InputNames    []string
	ExternalNames []string
}

// NewUnit starts an empty Unit over a fresh intern table.
func NewUnit() *Unit {
	return &Unit{
		Functions: make(map[pyvalue.FunctionId]*registry.Function),
		Classes:   make(map[uint32]*registry.Class),
		Interns:   intern.New(),
	}
}

// AddFunction registers a built function under id.
func (u *Unit) AddFunction(id pyvalue.FunctionId, fn *registry.Function) *Unit {
	u.Functions[id] = fn
	return u
}

// AddClass registers a prepared class under its UID.
func (u *Unit) AddClass(cls *registry.Class) *Unit {
	u.Classes[cls.UID] = cls
	return u
}

// SetEntry names which function Runner.Run/Start should invoke, and
// which of its declared inputs/external functions a host binding should
// validate calls against (spec.md §4.5).
func (u *Unit) SetEntry(id pyvalue.FunctionId, inputNames, externalNames []string) *Unit {
	u.Entry = id
	u.InputNames = inputNames
	u.ExternalNames = externalNames
	return u
}

// unitWire is Unit's gob wire form; every field is already exported, so
// no custom GobEncode/GobDecode is needed the way heap/intern/tracker's
// internally-unexported types require.
type unitWire struct {
	Functions     map[pyvalue.FunctionId]*registry.Function
	Classes       map[uint32]*registry.Class
	Interns       *intern.Table
	Entry         pyvalue.FunctionId
	InputNames    []string
	ExternalNames []string
}

// Save gob-encodes the Unit to path, for cmd/heysb's "run"/"repl"
// commands to load a prepared program without a parser (spec.md §1).
func (u *Unit) Save(path string) error {
	var buf bytes.Buffer
	wire := unitWire{
		Functions: u.Functions, Classes: u.Classes, Interns: u.Interns,
		Entry: u.Entry, InputNames: u.InputNames, ExternalNames: u.ExternalNames,
	}
	if err := gob.NewEncoder(&buf).Encode(wire); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// LoadUnit reads a Unit saved by Save.
func LoadUnit(path string) (*Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var wire unitWire
	wire.Interns = &intern.Table{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&wire); err != nil {
		return nil, err
	}
	return &Unit{
		Functions: wire.Functions, Classes: wire.Classes, Interns: wire.Interns,
		Entry: wire.Entry, InputNames: wire.InputNames, ExternalNames: wire.ExternalNames,
	}, nil
}
