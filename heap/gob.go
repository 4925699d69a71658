package heap

import (
	"bytes"
	"encoding/gob"

	"github.com/wudi/heysb/pyvalue"
)

// init registers every concrete PyObject payload with the gob wire
// format. A Snapshot (package sandbox) gob-encodes the whole Heap, whose
// entries hold PyObject interface values; gob can only round-trip an
// interface field once every dynamic type that can appear in it has been
// registered once, process-wide (spec.md §4.5's "Reloads reconstruct
// every field").
func init() {
	gob.Register(&Closure{})
	gob.Register(&BoundMethod{})
	gob.Register(&BoundBuiltinMethod{})
	gob.Register(&BoundGeneratorMethod{})
	gob.Register(&StaticMethod{})
	gob.Register(&ClassMethod{})
	gob.Register(&ClassObject{})
	gob.Register(&Instance{})
	gob.Register(&Str{})
	gob.Register(&List{})
	gob.Register(&Tuple{})
	gob.Register(&Dict{})
	gob.Register(&PySet{})
	gob.Register(&Cell{})
	gob.Register(&Generator{})
	gob.Register(&GatherFuture{})
	gob.Register(&Range{})
	gob.Register(&Iter{})
}

// heapEntrySnapshot mirrors entry's fields under exported names, since
// gob can only see exported struct fields and entry deliberately keeps
// its own fields private to the rest of the package.
type heapEntrySnapshot struct {
	Data       PyObject
	Refcount   int32
	Generation uint32
	Cyclic     bool
	Live       bool
}

type heapSnapshot struct {
	Entries    []heapEntrySnapshot
	Free       []uint32
	Candidates []uint32
}

// GobEncode lets a Snapshot serialize a Heap despite every field being
// unexported by design (package heap's encapsulation is for the rest of
// this codebase, not for package sandbox's own serialization boundary).
// tracker and print are deliberately left out: the tracker travels on
// Interpreter.Tracker instead (so hosts that swap tracker policy are not
// forced through this path), and print is the live host callback spec.md
// §4.5 says must be re-supplied on load.
func (h *Heap) GobEncode() ([]byte, error) {
	snap := heapSnapshot{Free: append([]uint32(nil), h.free...)}
	snap.Entries = make([]heapEntrySnapshot, len(h.entries))
	for i, e := range h.entries {
		snap.Entries[i] = heapEntrySnapshot{Data: e.data, Refcount: e.refcount, Generation: e.generation, Cyclic: e.cyclic, Live: e.live}
	}
	snap.Candidates = make([]uint32, 0, len(h.candidates))
	for slot := range h.candidates {
		snap.Candidates = append(snap.Candidates, slot)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode rebuilds the arena from GobEncode's wire form. Dict/PySet
// payloads come back with their hash index not yet rebuilt (keyOf needs
// a live Heap to hash a heap-backed Str by content); package sandbox's
// Snapshot.Load calls RebuildIndexes once decoding the whole Interpreter
// (and therefore this Heap's interns) has finished.
func (h *Heap) GobDecode(data []byte) error {
	var snap heapSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return err
	}
	h.free = snap.Free
	h.entries = make([]entry, len(snap.Entries))
	for i, e := range snap.Entries {
		h.entries[i] = entry{data: e.Data, refcount: e.Refcount, generation: e.Generation, cyclic: e.Cyclic, live: e.Live}
	}
	h.candidates = make(map[uint32]struct{}, len(snap.Candidates))
	for _, slot := range snap.Candidates {
		h.candidates[slot] = struct{}{}
	}
	return nil
}

// RebuildIndexes walks every live entry and finishes reconstructing any
// Dict/PySet's hash index against h, completing the two-phase decode
// GobDecode started (spec.md §4.5 round-trip).
func (h *Heap) RebuildIndexes() {
	for i := range h.entries {
		if !h.entries[i].live {
			continue
		}
		switch payload := h.entries[i].data.(type) {
		case *Dict:
			payload.RebuildIndex(h)
		case *PySet:
			payload.RebuildIndex(h)
		}
	}
}

// dictPairSnapshot is one Dict entry's wire form: the original key Value
// travels instead of the unexported dictKey hash, since dictKey embeds a
// resolved string that only makes sense against a particular interns
// table.
type dictPairSnapshot struct {
	Key pyvalue.Value
	Val pyvalue.Value
}

func (d *Dict) GobEncode() ([]byte, error) {
	pairs := make([]dictPairSnapshot, len(d.order))
	for i, k := range d.order {
		pairs[i] = dictPairSnapshot{Key: d.keys[k], Val: d.vals[k]}
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(pairs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Dict) GobDecode(data []byte) error {
	var pairs []dictPairSnapshot
	if len(data) > 0 {
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&pairs); err != nil {
			return err
		}
	}
	d.pendingPairs = pairs
	d.keys = make(map[dictKey]pyvalue.Value, len(pairs))
	d.vals = make(map[dictKey]pyvalue.Value, len(pairs))
	d.order = nil
	return nil
}

// RebuildIndex drains pendingPairs into the live hash index, in order.
func (d *Dict) RebuildIndex(h *Heap) {
	for _, p := range d.pendingPairs {
		k, ok := keyOf(h, p.Key)
		if !ok {
			continue
		}
		d.order = append(d.order, k)
		d.keys[k] = p.Key
		d.vals[k] = p.Val
	}
	d.pendingPairs = nil
}

func (s *PySet) GobEncode() ([]byte, error) {
	items := make([]pyvalue.Value, len(s.order))
	for i, k := range s.order {
		items[i] = s.items[k]
	}
	aux := struct {
		Items  []pyvalue.Value
		Frozen bool
	}{Items: items, Frozen: s.frozen}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(aux); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *PySet) GobDecode(data []byte) error {
	var aux struct {
		Items  []pyvalue.Value
		Frozen bool
	}
	if len(data) > 0 {
		if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&aux); err != nil {
			return err
		}
	}
	s.pendingItems = aux.Items
	s.frozen = aux.Frozen
	s.items = make(map[dictKey]pyvalue.Value, len(aux.Items))
	s.order = nil
	return nil
}

// RebuildIndex mirrors Dict.RebuildIndex for the value-less set case.
func (s *PySet) RebuildIndex(h *Heap) {
	for _, v := range s.pendingItems {
		k, ok := keyOf(h, v)
		if !ok {
			continue
		}
		s.order = append(s.order, k)
		s.items[k] = v
	}
	s.pendingItems = nil
}
