package asm

import (
	"os"
	"testing"

	"github.com/wudi/heysb/opcodes"
	"github.com/wudi/heysb/pyvalue"
	"github.com/wudi/heysb/registry"
)

func TestBuilderBuildsFunction(t *testing.T) {
	b := NewBuilder("answer", "<test>")
	idx := b.Const(pyvalue.Int(42))
	b.Locals(0)
	b.Emit(opcodes.OpLoadConst, idx, 0, 1)
	b.Emit(opcodes.OpReturnValue, 0, 0, 1)

	fn := b.Build(1)
	if fn.Name != "answer" || len(fn.Instructions) != 2 {
		t.Fatalf("unexpected function: %+v", fn)
	}
	if fn.Instructions[0].Op != opcodes.OpLoadConst || fn.Instructions[0].Arg != idx {
		t.Fatalf("first instruction wrong: %+v", fn.Instructions[0])
	}
}

func TestBuilderPatchBackpatchesJump(t *testing.T) {
	b := NewBuilder("loop", "<test>")
	jumpIdx := b.Emit(opcodes.OpJump, -1, 0, 1)
	target := b.Here()
	b.Patch(jumpIdx, target)

	fn := b.Build(2)
	if fn.Instructions[jumpIdx].Arg != target {
		t.Fatalf("patch didn't take: got %d want %d", fn.Instructions[jumpIdx].Arg, target)
	}
}

func TestBuilderParamsAndDefaults(t *testing.T) {
	b := NewBuilder("greet", "<test>")
	b.Param("name", registry.ParamPositionalOnly, 0)
	b.ParamWithDefault("greeting", registry.ParamPositionalOnly, 1, pyvalue.Int(0))
	fn := b.Build(3)

	if len(fn.Signature.Params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(fn.Signature.Params))
	}
	if !fn.Signature.Params[1].HasDefault {
		t.Fatalf("second param should carry a default")
	}
}

func TestUnitSaveLoadRoundTrip(t *testing.T) {
	u := NewUnit()
	b := NewBuilder("main", "<test>")
	idx := b.Const(pyvalue.Int(7))
	b.Emit(opcodes.OpLoadConst, idx, 0, 1)
	b.Emit(opcodes.OpReturnValue, 0, 0, 1)
	u.AddFunction(1, b.Build(1))
	u.SetEntry(1, []string{"x"}, []string{"fetch"})

	path := t.TempDir() + "/unit.gob"
	if err := u.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	defer os.Remove(path)

	loaded, err := LoadUnit(path)
	if err != nil {
		t.Fatalf("LoadUnit: %v", err)
	}
	if loaded.Entry != 1 {
		t.Fatalf("Entry = %v, want 1", loaded.Entry)
	}
	if len(loaded.InputNames) != 1 || loaded.InputNames[0] != "x" {
		t.Fatalf("InputNames mismatch: %+v", loaded.InputNames)
	}
	if len(loaded.ExternalNames) != 1 || loaded.ExternalNames[0] != "fetch" {
		t.Fatalf("ExternalNames mismatch: %+v", loaded.ExternalNames)
	}
	fn, ok := loaded.Functions[1]
	if !ok || fn.Name != "main" {
		t.Fatalf("Functions[1] missing or wrong: %+v", loaded.Functions)
	}
	if loaded.Interns == nil {
		t.Fatalf("Interns should survive the round trip")
	}
}
