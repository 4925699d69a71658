package intern

import (
	"math/big"
	"testing"
)

func TestInternStringDedups(t *testing.T) {
	tab := New()
	a := tab.InternString("hello")
	b := tab.InternString("hello")
	if a != b {
		t.Fatalf("expected the same id for repeated content, got %d and %d", a, b)
	}
	if tab.String(a) != "hello" {
		t.Fatalf("String(%d) = %q, want hello", a, tab.String(a))
	}
}

func TestInternBytesDedups(t *testing.T) {
	tab := New()
	a := tab.InternBytes([]byte("abc"))
	b := tab.InternBytes([]byte("abc"))
	if a != b {
		t.Fatalf("expected the same id for repeated content")
	}
}

func TestInternLongIntByDecimalText(t *testing.T) {
	tab := New()
	n := big.NewInt(123456789)
	a := tab.InternLongInt(n)
	b := tab.InternLongInt(new(big.Int).Set(n))
	if a != b {
		t.Fatalf("expected the same id for equal big.Int values")
	}
	if tab.LongInt(a).Cmp(n) != 0 {
		t.Fatalf("LongInt round trip mismatch")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	tab := New()
	tab.InternString("shared")
	clone := tab.Clone()

	clone.InternString("only-in-clone")
	if clone.Len() == tab.Len() {
		t.Fatalf("clone should grow independently of the original")
	}
}

func TestSeedStableAcrossInstances(t *testing.T) {
	a := New()
	b := New()
	if a.Seed() != b.Seed() {
		t.Fatalf("two freshly seeded tables should agree on Seed()")
	}
}
