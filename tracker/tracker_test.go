package tracker

import "testing"

func TestNoLimitNeverErrors(t *testing.T) {
	tr := NoLimit()
	if err := tr.OnAllocate(1 << 40); err != nil {
		t.Fatalf("OnAllocate: %v", err)
	}
	if err := tr.OnInstruction(); err != nil {
		t.Fatalf("OnInstruction: %v", err)
	}
	if err := tr.OnFramePush(); err != nil {
		t.Fatalf("OnFramePush: %v", err)
	}
	tr.OnFramePop()
}

func TestLimitedMemoryCeiling(t *testing.T) {
	tr := NewLimited(100, 0, 0)
	if err := tr.OnAllocate(60); err != nil {
		t.Fatalf("first allocate should fit: %v", err)
	}
	if err := tr.OnAllocate(60); err == nil {
		t.Fatalf("expected a ResourceError exceeding MaxMemory")
	}
	if tr.MemoryUsed() != 60 {
		t.Fatalf("a rejected allocation should not be charged, got %d", tr.MemoryUsed())
	}
}

func TestLimitedInstructionCeiling(t *testing.T) {
	tr := NewLimited(0, 2, 0)
	if err := tr.OnInstruction(); err != nil {
		t.Fatalf("first instruction: %v", err)
	}
	if err := tr.OnInstruction(); err != nil {
		t.Fatalf("second instruction: %v", err)
	}
	if err := tr.OnInstruction(); err == nil {
		t.Fatalf("expected a ResourceError on the third instruction")
	}
	if tr.InstructionsUsed() != 3 {
		t.Fatalf("InstructionsUsed should count the rejected call too, got %d", tr.InstructionsUsed())
	}
}

func TestLimitedFramePushPopSymmetry(t *testing.T) {
	tr := NewLimited(0, 0, 2)
	if err := tr.OnFramePush(); err != nil {
		t.Fatalf("push 1: %v", err)
	}
	if err := tr.OnFramePush(); err != nil {
		t.Fatalf("push 2: %v", err)
	}
	tr.OnFramePop()
	if err := tr.OnFramePush(); err != nil {
		t.Fatalf("push after pop should fit back under the limit: %v", err)
	}
	if tr.FramesUsed() != 2 {
		t.Fatalf("FramesUsed = %d, want 2", tr.FramesUsed())
	}
}
