package heap

import (
	"fmt"
	"strings"

	"github.com/wudi/heysb/intern"
	"github.com/wudi/heysb/pyvalue"
)

// Str is a heap-backed, dynamically constructed string (the result of a
// concatenation, format, or slice) as opposed to a literal, which is
// carried as an immediate pyvalue.KindInternString. Mirrors the
// teacher's HeapData::Str variant (spec.md §3.3).
type Str struct {
	S string
}

func NewStr(s string) *Str                { return &Str{S: s} }
func (s *Str) TypeName() string           { return "str" }
func (s *Str) Len() (int, bool)           { return len([]rune(s.S)), true }
func (s *Str) Bool() bool                 { return s.S != "" }
func (s *Str) Repr(h *Heap) string        { return fmt.Sprintf("%q", s.S) }
func (s *Str) Str(h *Heap) string         { return s.S }
func (s *Str) ContainsRefs() bool         { return false }
func (s *Str) DecRefIds(scratch []HeapId) []HeapId { return scratch }
func (s *Str) EstimateSize() int64        { return int64(len(s.S)) + 32 }

func (s *Str) GetAttr(h *Heap, attr intern.StringId) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}

func (s *Str) CallAttr(h *Heap, method intern.StringId, args []pyvalue.Value) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}

// List is a mutable, ordered, heterogeneous sequence (spec.md §3.3).
type List struct {
	Items []pyvalue.Value
}

func NewList(items []pyvalue.Value) *List { return &List{Items: items} }

func (l *List) TypeName() string { return "list" }
func (l *List) Len() (int, bool) { return len(l.Items), true }
func (l *List) Bool() bool       { return len(l.Items) != 0 }

func (l *List) Repr(h *Heap) string {
	parts := make([]string, len(l.Items))
	for i, v := range l.Items {
		parts[i] = reprValue(h, v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
func (l *List) Str(h *Heap) string { return l.Repr(h) }

func (l *List) ContainsRefs() bool {
	for _, v := range l.Items {
		if v.Kind == pyvalue.KindRef {
			return true
		}
	}
	return false
}

func (l *List) DecRefIds(scratch []HeapId) []HeapId {
	for _, v := range l.Items {
		if v.Kind == pyvalue.KindRef {
			scratch = append(scratch, v.Ref)
		}
	}
	return scratch
}

func (l *List) EstimateSize() int64 { return int64(len(l.Items))*16 + 32 }

func (l *List) GetAttr(h *Heap, attr intern.StringId) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}
func (l *List) CallAttr(h *Heap, method intern.StringId, args []pyvalue.Value) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}

// Append adds v to l, taking ownership of it (caller must not also drop
// v). Marks the list as a cycle candidate if v is itself a Ref, matching
// spec.md §3.3's "when a container accepts a Ref, mark_potential_cycle is
// called".
func (l *List) Append(h *Heap, self HeapId, v pyvalue.Value) {
	l.Items = append(l.Items, v)
	if v.Kind == pyvalue.KindRef {
		h.MarkPotentialCycle(self)
	}
}

// Tuple is List's immutable counterpart.
type Tuple struct {
	Items []pyvalue.Value
}

func NewTuple(items []pyvalue.Value) *Tuple { return &Tuple{Items: items} }
func (t *Tuple) TypeName() string           { return "tuple" }
func (t *Tuple) Len() (int, bool)           { return len(t.Items), true }
func (t *Tuple) Bool() bool                 { return len(t.Items) != 0 }
func (t *Tuple) Repr(h *Heap) string {
	parts := make([]string, len(t.Items))
	for i, v := range t.Items {
		parts[i] = reprValue(h, v)
	}
	suffix := ""
	if len(parts) == 1 {
		suffix = ","
	}
	return "(" + strings.Join(parts, ", ") + suffix + ")"
}
func (t *Tuple) Str(h *Heap) string { return t.Repr(h) }
func (t *Tuple) ContainsRefs() bool {
	for _, v := range t.Items {
		if v.Kind == pyvalue.KindRef {
			return true
		}
	}
	return false
}
func (t *Tuple) DecRefIds(scratch []HeapId) []HeapId {
	for _, v := range t.Items {
		if v.Kind == pyvalue.KindRef {
			scratch = append(scratch, v.Ref)
		}
	}
	return scratch
}
func (t *Tuple) EstimateSize() int64 { return int64(len(t.Items))*16 + 24 }
func (t *Tuple) GetAttr(h *Heap, attr intern.StringId) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}
func (t *Tuple) CallAttr(h *Heap, method intern.StringId, args []pyvalue.Value) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}

// dictKey is a hashable scalar projection of a Value, used as the Go map
// key backing Dict/Set. Only immediates and interned content are
// hashable in this representative stdlib surface; hashing a Ref that
// isn't itself interned content raises TypeError at the call site
// (package stdlib), not here.
type dictKey struct {
	kind pyvalue.Kind
	i    int64
	f    float64
	s    uint32
	str  string
}

// keyOf projects v onto a hashable Go key. A heap-backed Str is hashed by
// its content (not its HeapId) so that a dynamically built string ("a" +
// "b") compares equal, as a dict key, to the interned literal "ab" —
// matching Python's str hashing, which never distinguishes interned from
// constructed strings.
func keyOf(h *Heap, v pyvalue.Value) (dictKey, bool) {
	switch v.Kind {
	case pyvalue.KindNone, pyvalue.KindBool, pyvalue.KindInt:
		i := v.I
		if v.Kind == pyvalue.KindBool && v.B {
			i = 1
		}
		return dictKey{kind: pyvalue.KindInt, i: i}, true
	case pyvalue.KindFloat:
		return dictKey{kind: pyvalue.KindFloat, f: v.F}, true
	case pyvalue.KindInternString:
		return dictKey{kind: pyvalue.KindInternString, str: h.interns.String(v.SID)}, true
	case pyvalue.KindInternBytes:
		return dictKey{kind: pyvalue.KindInternBytes, s: uint32(v.BID)}, true
	case pyvalue.KindRef:
		if s, ok := h.Get(v.Ref).(*Str); ok {
			return dictKey{kind: pyvalue.KindInternString, str: s.S}, true
		}
		return dictKey{}, false
	default:
		return dictKey{}, false
	}
}

// Dict is an insertion-ordered mapping (spec.md §3.3; Python dicts have
// preserved insertion order since 3.7, so OrderedDict is layered on top
// of the same structure rather than a distinct algorithm).
type Dict struct {
	order []dictKey
	keys  map[dictKey]pyvalue.Value // original key Value, for iteration/repr
	vals  map[dictKey]pyvalue.Value

	// pendingPairs holds key/value pairs decoded by GobDecode before the
	// Heap they hash against exists; RebuildIndex drains it once the
	// whole Snapshot has been reloaded (spec.md §4.5 round-trip).
	pendingPairs []dictPairSnapshot
}

func NewDict() *Dict {
	return &Dict{keys: make(map[dictKey]pyvalue.Value), vals: make(map[dictKey]pyvalue.Value)}
}

func (d *Dict) TypeName() string { return "dict" }
func (d *Dict) Len() (int, bool) { return len(d.order), true }
func (d *Dict) Bool() bool       { return len(d.order) != 0 }

func (d *Dict) Repr(h *Heap) string {
	parts := make([]string, 0, len(d.order))
	for _, k := range d.order {
		parts = append(parts, fmt.Sprintf("%s: %s", reprValue(h, d.keys[k]), reprValue(h, d.vals[k])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
func (d *Dict) Str(h *Heap) string { return d.Repr(h) }

func (d *Dict) ContainsRefs() bool {
	for _, k := range d.order {
		if d.keys[k].Kind == pyvalue.KindRef || d.vals[k].Kind == pyvalue.KindRef {
			return true
		}
	}
	return false
}

func (d *Dict) DecRefIds(scratch []HeapId) []HeapId {
	for _, k := range d.order {
		if d.keys[k].Kind == pyvalue.KindRef {
			scratch = append(scratch, d.keys[k].Ref)
		}
		if d.vals[k].Kind == pyvalue.KindRef {
			scratch = append(scratch, d.vals[k].Ref)
		}
	}
	return scratch
}

func (d *Dict) EstimateSize() int64 { return int64(len(d.order))*40 + 48 }

func (d *Dict) GetAttr(h *Heap, attr intern.StringId) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}
func (d *Dict) CallAttr(h *Heap, method intern.StringId, args []pyvalue.Value) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}

// Set reports whether d had key already; Set always takes ownership of
// key and val (caller must not also drop them).
func (d *Dict) Set(h *Heap, self HeapId, key, val pyvalue.Value) (bool, error) {
	k, ok := keyOf(h, key)
	if !ok {
		return false, fmt.Errorf("unhashable type: %q", h.TypeName(key))
	}
	_, existed := d.vals[k]
	if existed {
		h.DropValue(d.keys[k])
		h.DropValue(d.vals[k])
	} else {
		d.order = append(d.order, k)
	}
	d.keys[k] = key
	d.vals[k] = val
	if key.Kind == pyvalue.KindRef || val.Kind == pyvalue.KindRef {
		h.MarkPotentialCycle(self)
	}
	return existed, nil
}

// Get returns the value for key without transferring ownership (caller
// must Clone it if keeping it beyond the dict's lifetime).
func (d *Dict) Get(h *Heap, key pyvalue.Value) (pyvalue.Value, bool) {
	k, ok := keyOf(h, key)
	if !ok {
		return pyvalue.Value{}, false
	}
	v, ok := d.vals[k]
	return v, ok
}

// Delete removes key, dropping its stored key/value and returning
// whether it was present.
func (d *Dict) Delete(h *Heap, key pyvalue.Value) bool {
	k, ok := keyOf(h, key)
	if !ok {
		return false
	}
	if _, ok := d.vals[k]; !ok {
		return false
	}
	h.DropValue(d.keys[k])
	h.DropValue(d.vals[k])
	delete(d.keys, k)
	delete(d.vals, k)
	for i, ok2 := range d.order {
		if ok2 == k {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return true
}

// Keys/Values return ordered snapshots without transferring ownership.
func (d *Dict) Keys() []pyvalue.Value {
	out := make([]pyvalue.Value, len(d.order))
	for i, k := range d.order {
		out[i] = d.keys[k]
	}
	return out
}
func (d *Dict) Values() []pyvalue.Value {
	out := make([]pyvalue.Value, len(d.order))
	for i, k := range d.order {
		out[i] = d.vals[k]
	}
	return out
}

// Set (the container type, not Dict.Set the method) mirrors CPython's
// set/frozenset: an unordered collection of hashable values with no
// associated value. Implemented as a Dict-shaped structure for maximum
// sharing with Dict's key-hashing logic — the teacher does the analogous
// thing for its own Counter-over-Array pattern in runtime/array.go.
type PySet struct {
	order  []dictKey
	items  map[dictKey]pyvalue.Value
	frozen bool

	// pendingItems mirrors Dict.pendingPairs for the value-less set case.
	pendingItems []pyvalue.Value
}

func NewSet(frozen bool) *PySet {
	return &PySet{items: make(map[dictKey]pyvalue.Value), frozen: frozen}
}

func (s *PySet) TypeName() string {
	if s.frozen {
		return "frozenset"
	}
	return "set"
}
func (s *PySet) Len() (int, bool) { return len(s.order), true }
func (s *PySet) Bool() bool       { return len(s.order) != 0 }
func (s *PySet) Repr(h *Heap) string {
	if len(s.order) == 0 {
		if s.frozen {
			return "frozenset()"
		}
		return "set()"
	}
	parts := make([]string, len(s.order))
	for i, k := range s.order {
		parts[i] = reprValue(h, s.items[k])
	}
	body := "{" + strings.Join(parts, ", ") + "}"
	if s.frozen {
		return "frozenset(" + body + ")"
	}
	return body
}
func (s *PySet) Str(h *Heap) string { return s.Repr(h) }
func (s *PySet) ContainsRefs() bool {
	for _, v := range s.items {
		if v.Kind == pyvalue.KindRef {
			return true
		}
	}
	return false
}
func (s *PySet) DecRefIds(scratch []HeapId) []HeapId {
	for _, v := range s.items {
		if v.Kind == pyvalue.KindRef {
			scratch = append(scratch, v.Ref)
		}
	}
	return scratch
}
func (s *PySet) EstimateSize() int64 { return int64(len(s.order))*24 + 32 }
func (s *PySet) GetAttr(h *Heap, attr intern.StringId) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}
func (s *PySet) CallAttr(h *Heap, method intern.StringId, args []pyvalue.Value) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}

// Add reports whether v was newly inserted; takes ownership of v always
// (a duplicate insert drops the incoming copy).
func (s *PySet) Add(h *Heap, self HeapId, v pyvalue.Value) (bool, error) {
	k, ok := keyOf(h, v)
	if !ok {
		return false, fmt.Errorf("unhashable type: %q", h.TypeName(v))
	}
	if _, exists := s.items[k]; exists {
		h.DropValue(v)
		return false, nil
	}
	s.order = append(s.order, k)
	s.items[k] = v
	if v.Kind == pyvalue.KindRef {
		h.MarkPotentialCycle(self)
	}
	return true, nil
}

func (s *PySet) Contains(h *Heap, v pyvalue.Value) bool {
	k, ok := keyOf(h, v)
	if !ok {
		return false
	}
	_, exists := s.items[k]
	return exists
}

func (s *PySet) Items() []pyvalue.Value {
	out := make([]pyvalue.Value, len(s.order))
	for i, k := range s.order {
		out[i] = s.items[k]
	}
	return out
}

// Frozen reports whether this is a frozenset, for callers (package
// pyconv's sandbox-boundary conversion) that need to pick Set vs
// FrozenSet without access to the unexported field directly.
func (s *PySet) Frozen() bool { return s.frozen }

// Cell is the shared storage backing closures over a captured local
// (spec.md §3.4).
type Cell struct {
	V pyvalue.Value
}

func NewCell(v pyvalue.Value) *Cell { return &Cell{V: v} }
func (c *Cell) TypeName() string    { return "cell" }
func (c *Cell) Len() (int, bool)    { return 0, false }
func (c *Cell) Bool() bool          { return true }
func (c *Cell) Repr(h *Heap) string { return "<cell>" }
func (c *Cell) Str(h *Heap) string  { return c.Repr(h) }
func (c *Cell) ContainsRefs() bool  { return c.V.Kind == pyvalue.KindRef }
func (c *Cell) DecRefIds(scratch []HeapId) []HeapId {
	if c.V.Kind == pyvalue.KindRef {
		scratch = append(scratch, c.V.Ref)
	}
	return scratch
}
func (c *Cell) EstimateSize() int64 { return 24 }
func (c *Cell) GetAttr(h *Heap, attr intern.StringId) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}
func (c *Cell) CallAttr(h *Heap, method intern.StringId, args []pyvalue.Value) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}

func reprValue(h *Heap, v pyvalue.Value) string { return h.Repr(v) }
