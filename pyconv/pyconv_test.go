package pyconv

import (
	"testing"

	"github.com/wudi/heysb/heap"
	"github.com/wudi/heysb/intern"
	"github.com/wudi/heysb/pyvalue"
	"github.com/wudi/heysb/tracker"
)

func newHeap() *heap.Heap {
	return heap.New(tracker.NoLimit(), intern.New())
}

func TestConvertScalars(t *testing.T) {
	h := newHeap()
	r := NewRegistry()

	cases := []struct {
		name string
		in   pyvalue.Value
		kind Kind
	}{
		{"none", pyvalue.None, KindNone},
		{"true", pyvalue.Bool(true), KindBool},
		{"int", pyvalue.Int(42), KindInt},
		{"float", pyvalue.Float(3.5), KindFloat},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ext, err := Convert(h, r, c.in)
			if err != nil {
				t.Fatalf("Convert: %v", err)
			}
			if ext.Kind != c.kind {
				t.Fatalf("Kind = %v, want %v", ext.Kind, c.kind)
			}
		})
	}
}

func TestConvertStringRoundTrip(t *testing.T) {
	h := newHeap()
	r := NewRegistry()

	id, err := h.Allocate(heap.NewStr("hello"))
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	v := pyvalue.Value{Kind: pyvalue.KindRef, Ref: id}

	ext, err := Convert(h, r, v)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if ext.Kind != KindStr || ext.Str != "hello" {
		t.Fatalf("got %+v, want Str=hello", ext)
	}

	back, err := ToValue(h, ext)
	if err != nil {
		t.Fatalf("ToValue: %v", err)
	}
	s, ok := h.Get(back.Ref).(*heap.Str)
	if !ok || s.S != "hello" {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestConvertListAndDict(t *testing.T) {
	h := newHeap()
	r := NewRegistry()

	listID, err := h.Allocate(heap.NewList([]pyvalue.Value{pyvalue.Int(1), pyvalue.Int(2)}))
	if err != nil {
		t.Fatalf("Allocate list: %v", err)
	}
	listVal := pyvalue.Value{Kind: pyvalue.KindRef, Ref: listID}

	ext, err := Convert(h, r, listVal)
	if err != nil {
		t.Fatalf("Convert list: %v", err)
	}
	if ext.Kind != KindList || len(ext.Items) != 2 {
		t.Fatalf("got %+v", ext)
	}

	d := heap.NewDict()
	dictID, err := h.Allocate(d)
	if err != nil {
		t.Fatalf("Allocate dict: %v", err)
	}
	if _, err := d.Set(h, dictID, pyvalue.Int(1), pyvalue.Int(100)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	dictVal := pyvalue.Value{Kind: pyvalue.KindRef, Ref: dictID}

	dext, err := Convert(h, r, dictVal)
	if err != nil {
		t.Fatalf("Convert dict: %v", err)
	}
	if dext.Kind != KindDict || len(dext.Pairs) != 1 {
		t.Fatalf("got %+v", dext)
	}

	back, err := ToValue(h, dext)
	if err != nil {
		t.Fatalf("ToValue dict: %v", err)
	}
	got, ok := h.Get(back.Ref).(*heap.Dict).Get(h, pyvalue.Int(1))
	if !ok || got.I != 100 {
		t.Fatalf("dict round trip mismatch")
	}
}

func TestConvertSetFrozenFlag(t *testing.T) {
	h := newHeap()
	r := NewRegistry()

	s := heap.NewSet(true)
	id, err := h.Allocate(s)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := s.Add(h, id, pyvalue.Int(7)); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ext, err := Convert(h, r, pyvalue.Value{Kind: pyvalue.KindRef, Ref: id})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if ext.Kind != KindFrozenSet {
		t.Fatalf("Kind = %v, want KindFrozenSet", ext.Kind)
	}
}

func TestToValueDataclassRejected(t *testing.T) {
	h := newHeap()
	_, err := ToValue(h, External{Kind: KindDataclass, ClassName: "Point"})
	if err == nil {
		t.Fatalf("expected error converting a dataclass back into the sandbox")
	}
}

func TestRegistryRegisterLookup(t *testing.T) {
	r := NewRegistry()
	id := r.Register("Point")
	got, ok := r.lookup("Point")
	if !ok || got != id {
		t.Fatalf("lookup after Register mismatch")
	}
	if _, ok := r.lookup("Nope"); ok {
		t.Fatalf("expected no entry for unregistered class")
	}
}
