package sandbox

import (
	"testing"

	"github.com/wudi/heysb/asm"
	"github.com/wudi/heysb/iowriter"
	"github.com/wudi/heysb/opcodes"
	"github.com/wudi/heysb/pyvalue"
	"github.com/wudi/heysb/tracker"
)

// buildConstantReturner assembles a single function that returns its one
// constant, the smallest possible prepared program: `def f(): return 42`.
func buildConstantReturner(id pyvalue.FunctionId, v pyvalue.Value) *asm.Unit {
	b := asm.NewBuilder("f", "<test>")
	idx := b.Const(v)
	b.Locals(0)
	b.Emit(opcodes.OpLoadConst, idx, 0, 1)
	b.Emit(opcodes.OpReturnValue, 0, 0, 1)

	u := asm.NewUnit()
	u.AddFunction(id, b.Build(id))
	u.SetEntry(id, nil, nil)
	return u
}

func newRunner(u *asm.Unit) *Runner {
	return New("<test>", "", u.Entry, u.InputNames, u.ExternalNames, u.Functions, u.Classes, u.Interns)
}

func TestRunnerRunReturnsConstant(t *testing.T) {
	u := buildConstantReturner(1, pyvalue.Int(42))
	runner := newRunner(u)

	result, exc := runner.Run(nil, tracker.NoLimit(), iowriter.Discard)
	if exc != nil {
		t.Fatalf("Run: %v", exc)
	}
	if result.Kind != pyvalue.KindInt || result.I != 42 {
		t.Fatalf("result = %+v, want Int(42)", result)
	}
}

func TestRunnerRunIsIndependentAcrossCalls(t *testing.T) {
	u := buildConstantReturner(1, pyvalue.Int(7))
	runner := newRunner(u)

	r1, exc := runner.Run(nil, tracker.NoLimit(), iowriter.Discard)
	if exc != nil {
		t.Fatalf("first Run: %v", exc)
	}
	r2, exc := runner.Run(nil, tracker.NoLimit(), iowriter.Discard)
	if exc != nil {
		t.Fatalf("second Run: %v", exc)
	}
	if r1.I != r2.I {
		t.Fatalf("two independent Run calls over the same Runner disagreed: %v vs %v", r1, r2)
	}
}

func TestRunnerStartCompletesWithoutSuspending(t *testing.T) {
	u := buildConstantReturner(1, pyvalue.Int(9))
	runner := newRunner(u)

	progress, exc := runner.Start(nil, tracker.NoLimit(), iowriter.Discard)
	if exc != nil {
		t.Fatalf("Start: %v", exc)
	}
	if progress.Kind != ProgressComplete {
		t.Fatalf("Kind = %v, want ProgressComplete", progress.Kind)
	}
	if progress.Result.I != 9 {
		t.Fatalf("Result = %+v, want Int(9)", progress.Result)
	}
}
