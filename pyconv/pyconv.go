// Package pyconv implements spec.md §6.2's value-conversion boundary:
// flattening a heap-backed pyvalue.Value into the language-neutral
// variant set a host can consume (and back), plus the dataclass registry
// hosts use to reconstruct their own types from an opaque instance.
// Grounded on the teacher's values.Value -> PHP-native conversion helpers
// (runtime/type.go's ToGoValue-style functions), generalized from PHP's
// scalar/array/object split to Python's richer variant set.
package pyconv

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/wudi/heysb/heap"
	"github.com/wudi/heysb/pyvalue"
)

// Kind discriminates an External value the way pyvalue.Kind discriminates
// a Value, flattened to the variant set spec.md §6.2 names.
type Kind byte

const (
	KindNone Kind = iota
	KindBool
	KindInt
	KindFloat
	KindStr
	KindBytes
	KindList
	KindTuple
	KindDict
	KindSet
	KindFrozenSet
	KindNamedTuple
	KindDataclass
)

// External is the flattened, host-facing shape of a Python value crossing
// the sandbox boundary. Only the field(s) Kind says are meaningful are
// set; this mirrors the Kind+flat-fields idiom used throughout this
// codebase for Go's lack of tagged unions (pyvalue.Value, vm.StepOutcome,
// sandbox.RunProgress).
type External struct {
	Kind Kind

	Bool  bool
	Int   int64
	Float float64
	Str   string
	Bytes []byte

	Items []External          // List, Tuple, Set, FrozenSet
	Pairs []ExternalPair       // Dict, in insertion order
	Names []string            // NamedTuple field names, parallel to Items

	ClassName  string
	RegistryID uuid.UUID // zero value if the class was never registered
	Attrs      map[string]External
}

// ExternalPair is one Dict entry; kept as an ordered slice rather than a
// Go map so dict insertion order survives the boundary (spec.md §3.3's
// Dict is insertion-ordered).
type ExternalPair struct {
	Key   External
	Value External
}

// Convert flattens v (a pyvalue.Value possibly backed by h) into an
// External. Unregistered instances still convert, as a Dataclass with a
// zero RegistryID, so a host that doesn't care about reconstructing a
// concrete Go type can still inspect ClassName/Attrs.
func Convert(h *heap.Heap, r *Registry, v pyvalue.Value) (External, error) {
	switch v.Kind {
	case pyvalue.KindUndefined:
		return External{}, fmt.Errorf("pyconv: cannot convert an unbound value across the sandbox boundary")
	case pyvalue.KindNone:
		return External{Kind: KindNone}, nil
	case pyvalue.KindBool:
		return External{Kind: KindBool, Bool: v.B}, nil
	case pyvalue.KindInt:
		return External{Kind: KindInt, Int: v.I}, nil
	case pyvalue.KindFloat:
		return External{Kind: KindFloat, Float: v.F}, nil
	case pyvalue.KindInternString:
		return External{Kind: KindStr, Str: h.Interns().String(v.SID)}, nil
	case pyvalue.KindInternBytes:
		return External{Kind: KindBytes, Bytes: h.Interns().Bytes(v.BID)}, nil
	case pyvalue.KindInternLongInt:
		n := h.Interns().LongInt(v.LID)
		return External{Kind: KindStr, Str: n.String()}, nil
	case pyvalue.KindRef:
		return convertRef(h, r, v)
	default:
		return External{}, fmt.Errorf("pyconv: value kind %v has no sandbox-boundary representation", v.Kind)
	}
}

// ToValue lifts a host-supplied External back into a pyvalue.Value bound
// to h, for building Runner.Run/Start inputs or an ExternalResult.Value
// answer. Dataclass/NamedTuple externals cannot be lifted back without a
// registered class to instantiate against, since the sandbox has no
// notion of a bare host struct; those kinds return an error rather than
// fabricating a class.
func ToValue(h *heap.Heap, ext External) (pyvalue.Value, error) {
	switch ext.Kind {
	case KindNone:
		return pyvalue.None, nil
	case KindBool:
		return pyvalue.Bool(ext.Bool), nil
	case KindInt:
		return pyvalue.Int(ext.Int), nil
	case KindFloat:
		return pyvalue.Float(ext.Float), nil
	case KindStr:
		id, err := h.Allocate(heap.NewStr(ext.Str))
		if err != nil {
			return pyvalue.Value{}, err
		}
		return pyvalue.Value{Kind: pyvalue.KindRef, Ref: id}, nil
	case KindBytes:
		id, err := h.Allocate(heap.NewStr(string(ext.Bytes)))
		if err != nil {
			return pyvalue.Value{}, err
		}
		return pyvalue.Value{Kind: pyvalue.KindRef, Ref: id}, nil
	case KindList, KindTuple:
		items := make([]pyvalue.Value, len(ext.Items))
		for i, it := range ext.Items {
			v, err := ToValue(h, it)
			if err != nil {
				return pyvalue.Value{}, err
			}
			items[i] = v
		}
		var obj heap.PyObject
		if ext.Kind == KindList {
			obj = heap.NewList(items)
		} else {
			obj = heap.NewTuple(items)
		}
		id, err := h.Allocate(obj)
		if err != nil {
			return pyvalue.Value{}, err
		}
		return pyvalue.Value{Kind: pyvalue.KindRef, Ref: id}, nil
	case KindDict:
		d := heap.NewDict()
		id, err := h.Allocate(d)
		if err != nil {
			return pyvalue.Value{}, err
		}
		for _, pair := range ext.Pairs {
			k, err := ToValue(h, pair.Key)
			if err != nil {
				return pyvalue.Value{}, err
			}
			val, err := ToValue(h, pair.Value)
			if err != nil {
				return pyvalue.Value{}, err
			}
			if _, err := d.Set(h, id, k, val); err != nil {
				return pyvalue.Value{}, err
			}
		}
		return pyvalue.Value{Kind: pyvalue.KindRef, Ref: id}, nil
	case KindSet, KindFrozenSet:
		s := heap.NewSet(ext.Kind == KindFrozenSet)
		id, err := h.Allocate(s)
		if err != nil {
			return pyvalue.Value{}, err
		}
		for _, it := range ext.Items {
			v, err := ToValue(h, it)
			if err != nil {
				return pyvalue.Value{}, err
			}
			if _, err := s.Add(h, id, v); err != nil {
				return pyvalue.Value{}, err
			}
		}
		return pyvalue.Value{Kind: pyvalue.KindRef, Ref: id}, nil
	default:
		return pyvalue.Value{}, fmt.Errorf("pyconv: %v values cannot be lifted back into the sandbox without a registered class", ext.Kind)
	}
}

func convertRef(h *heap.Heap, r *Registry, v pyvalue.Value) (External, error) {
	switch obj := h.Get(v.Ref).(type) {
	case *heap.Str:
		return External{Kind: KindStr, Str: obj.S}, nil
	case *heap.List:
		items, err := convertSlice(h, r, obj.Items)
		return External{Kind: KindList, Items: items}, err
	case *heap.Tuple:
		items, err := convertSlice(h, r, obj.Items)
		return External{Kind: KindTuple, Items: items}, err
	case *heap.Dict:
		pairs, err := convertDict(h, r, obj)
		return External{Kind: KindDict, Pairs: pairs}, err
	case *heap.PySet:
		items, err := convertSlice(h, r, obj.Items())
		kind := KindSet
		if obj.Frozen() {
			kind = KindFrozenSet
		}
		return External{Kind: kind, Items: items}, err
	case *heap.Instance:
		return convertInstance(h, r, obj)
	default:
		return External{}, fmt.Errorf("pyconv: %T has no sandbox-boundary representation", obj)
	}
}

func convertSlice(h *heap.Heap, r *Registry, vs []pyvalue.Value) ([]External, error) {
	out := make([]External, len(vs))
	for i, v := range vs {
		ext, err := Convert(h, r, v)
		if err != nil {
			return nil, err
		}
		out[i] = ext
	}
	return out, nil
}

func convertDict(h *heap.Heap, r *Registry, d *heap.Dict) ([]ExternalPair, error) {
	keys, vals := d.Keys(), d.Values()
	pairs := make([]ExternalPair, len(keys))
	for i := range keys {
		k, err := Convert(h, r, keys[i])
		if err != nil {
			return nil, err
		}
		val, err := Convert(h, r, vals[i])
		if err != nil {
			return nil, err
		}
		pairs[i] = ExternalPair{Key: k, Value: val}
	}
	return pairs, nil
}

func convertInstance(h *heap.Heap, r *Registry, inst *heap.Instance) (External, error) {
	cls, _ := h.Get(inst.Class.Ref).(*heap.ClassObject)
	className := "object"
	if cls != nil {
		className = cls.Name
	}
	attrs := map[string]External{}
	if inst.Attrs != nil {
		keys, vals := inst.Attrs.Keys(), inst.Attrs.Values()
		for i, k := range keys {
			name := h.Str(k)
			val, err := Convert(h, r, vals[i])
			if err != nil {
				return External{}, err
			}
			attrs[name] = val
		}
	}
	id, _ := r.lookup(className)
	return External{Kind: KindDataclass, ClassName: className, RegistryID: id, Attrs: attrs}, nil
}

// Registry maps a class name to a stable identifier a host registered
// (spec.md §6.2: "a stable identifier... the host object's address is
// acceptable because registration and use share a lifetime"). uuid.UUID
// plays that role here since a Go GC heap address isn't a stable key
// across the conversions a single sandbox run performs.
type Registry struct {
	mu  sync.RWMutex
	ids map[string]uuid.UUID
}

// NewRegistry builds an empty dataclass registry.
func NewRegistry() *Registry {
	return &Registry{ids: make(map[string]uuid.UUID)}
}

// Register associates className with a freshly minted identifier a host
// can later match against External.RegistryID to decide whether/how to
// reconstruct its own Go type for that class. Re-registering the same
// name replaces its identifier.
func (r *Registry) Register(className string) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.ids[className] = id
	return id
}

func (r *Registry) lookup(className string) (uuid.UUID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[className]
	return id, ok
}
