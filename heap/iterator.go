package heap

import (
	"fmt"

	"github.com/wudi/heysb/intern"
	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pyvalue"
)

// Range is Python's range(start, stop, step) object: lazily iterated,
// never materialized.
type Range struct {
	Start, Stop, Step int64
}

func NewRange(start, stop, step int64) *Range { return &Range{Start: start, Stop: stop, Step: step} }
func (r *Range) TypeName() string             { return "range" }
func (r *Range) Len() (int, bool) {
	if r.Step == 0 {
		return 0, false
	}
	if r.Step > 0 {
		if r.Stop <= r.Start {
			return 0, true
		}
		return int((r.Stop - r.Start + r.Step - 1) / r.Step), true
	}
	if r.Start <= r.Stop {
		return 0, true
	}
	return int((r.Start - r.Stop - r.Step - 1) / -r.Step), true
}
func (r *Range) Bool() bool { n, _ := r.Len(); return n != 0 }
func (r *Range) Repr(h *Heap) string {
	if r.Step == 1 {
		return fmt.Sprintf("range(%d, %d)", r.Start, r.Stop)
	}
	return fmt.Sprintf("range(%d, %d, %d)", r.Start, r.Stop, r.Step)
}
func (r *Range) Str(h *Heap) string                                              { return r.Repr(h) }
func (r *Range) ContainsRefs() bool                                              { return false }
func (r *Range) DecRefIds(scratch []HeapId) []HeapId                             { return scratch }
func (r *Range) EstimateSize() int64                                             { return 32 }
func (r *Range) GetAttr(h *Heap, attr intern.StringId) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}
func (r *Range) CallAttr(h *Heap, method intern.StringId, args []pyvalue.Value) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}

// At returns the i'th element of r (0-indexed), matching CPython's
// range indexing/iteration formula.
func (r *Range) At(i int64) int64 { return r.Start + i*r.Step }

// IterKind discriminates what an Iter walks, since list/tuple/dict-views/
// range/str/set all share __next__'s "index forward, raise StopIteration
// at the end" shape but read differently underneath.
type IterKind byte

const (
	IterList IterKind = iota
	IterTuple
	IterRange
	IterDictKeys
	IterDictValues
	IterDictItems
	IterSetItems
	IterStrChars
)

// Iter is the general-purpose sequence iterator CPython builds for
// `for`/`iter()`/`next()` over any of the container kinds above.
type Iter struct {
	Kind   IterKind
	Source pyvalue.Value // Ref to the List/Tuple/Dict/PySet/Range backing this iterator, or zero Value for IterStrChars
	Chars  []rune        // snapshot for IterStrChars (strings are immutable so this is safe to pre-split)
	Pos    int
}

func NewIter(kind IterKind, source pyvalue.Value) *Iter { return &Iter{Kind: kind, Source: source} }
func NewStrIter(s string) *Iter                         { return &Iter{Kind: IterStrChars, Chars: []rune(s)} }

func (it *Iter) TypeName() string { return "iterator" }
func (it *Iter) Len() (int, bool) { return 0, false }
func (it *Iter) Bool() bool       { return true }
func (it *Iter) Repr(h *Heap) string {
	return "<iterator>"
}
func (it *Iter) Str(h *Heap) string { return it.Repr(h) }
func (it *Iter) ContainsRefs() bool { return it.Source.Kind == pyvalue.KindRef }
func (it *Iter) DecRefIds(scratch []HeapId) []HeapId {
	if it.Source.Kind == pyvalue.KindRef {
		scratch = append(scratch, it.Source.Ref)
	}
	return scratch
}
func (it *Iter) EstimateSize() int64 { return int64(len(it.Chars))*4 + 32 }
func (it *Iter) GetAttr(h *Heap, attr intern.StringId) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}
func (it *Iter) CallAttr(h *Heap, method intern.StringId, args []pyvalue.Value) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}

// Next advances the iterator, returning pyerr.StopIteration (as a
// *pyerr.RunError) when exhausted, matching CPython's __next__ contract.
// The returned Value is already a fresh owning reference (cloned/allocated
// as needed); the caller becomes responsible for dropping it.
func (it *Iter) Next(h *Heap) (pyvalue.Value, error) {
	switch it.Kind {
	case IterStrChars:
		if it.Pos >= len(it.Chars) {
			return pyvalue.Value{}, pyerr.Exc(pyerr.StopIteration, "")
		}
		s := string(it.Chars[it.Pos])
		it.Pos++
		id, err := h.Allocate(NewStr(s))
		if err != nil {
			return pyvalue.Value{}, pyerr.FromResourceError(err)
		}
		return pyvalue.Ref(id), nil
	case IterRange:
		r := h.Get(it.Source.Ref).(*Range)
		n, _ := r.Len()
		if it.Pos >= n {
			return pyvalue.Value{}, pyerr.Exc(pyerr.StopIteration, "")
		}
		v := r.At(int64(it.Pos))
		it.Pos++
		return pyvalue.Int(v), nil
	case IterList:
		l := h.Get(it.Source.Ref).(*List)
		if it.Pos >= len(l.Items) {
			return pyvalue.Value{}, pyerr.Exc(pyerr.StopIteration, "")
		}
		v := h.CloneValue(l.Items[it.Pos])
		it.Pos++
		return v, nil
	case IterTuple:
		t := h.Get(it.Source.Ref).(*Tuple)
		if it.Pos >= len(t.Items) {
			return pyvalue.Value{}, pyerr.Exc(pyerr.StopIteration, "")
		}
		v := h.CloneValue(t.Items[it.Pos])
		it.Pos++
		return v, nil
	case IterDictKeys, IterDictValues, IterDictItems:
		d := h.Get(it.Source.Ref).(*Dict)
		keys := d.Keys()
		if it.Pos >= len(keys) {
			return pyvalue.Value{}, pyerr.Exc(pyerr.StopIteration, "")
		}
		k := keys[it.Pos]
		it.Pos++
		switch it.Kind {
		case IterDictKeys:
			return h.CloneValue(k), nil
		case IterDictValues:
			v, _ := d.Get(h, k)
			return h.CloneValue(v), nil
		default:
			val, _ := d.Get(h, k)
			tid, err := h.Allocate(NewTuple([]pyvalue.Value{h.CloneValue(k), h.CloneValue(val)}))
			if err != nil {
				return pyvalue.Value{}, pyerr.FromResourceError(err)
			}
			return pyvalue.Ref(tid), nil
		}
	case IterSetItems:
		s := h.Get(it.Source.Ref).(*PySet)
		items := s.Items()
		if it.Pos >= len(items) {
			return pyvalue.Value{}, pyerr.Exc(pyerr.StopIteration, "")
		}
		v := h.CloneValue(items[it.Pos])
		it.Pos++
		return v, nil
	default:
		return pyvalue.Value{}, pyerr.InternalError("unknown iterator kind")
	}
}
