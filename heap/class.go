package heap

import (
	"fmt"
	"strings"

	"github.com/wudi/heysb/intern"
	"github.com/wudi/heysb/pyvalue"
)

// ClassObject is a user-defined class's runtime representation (spec.md
// §3.3): a name, a stable uid (used for isinstance/issubclass checks and
// as a dataclass-registry key across the sandbox boundary), a resolved
// MRO, and a namespace dict of methods/class attributes assembled by
// OpBuildClass.
type ClassObject struct {
	Name      string
	UID       uint32
	Bases     []pyvalue.Value // Ref(ClassObject) values, declaration order
	MRO       []pyvalue.Value // Ref(ClassObject) values, C3-linearized
	Namespace map[string]pyvalue.Value
	Slots     []string // __slots__, if declared; empty means instances carry a free-form attrs dict
}

func NewClassObject(name string, uid uint32) *ClassObject {
	return &ClassObject{Name: name, UID: uid, Namespace: make(map[string]pyvalue.Value)}
}

func (c *ClassObject) TypeName() string { return "type" }
func (c *ClassObject) Len() (int, bool) { return 0, false }
func (c *ClassObject) Bool() bool       { return true }
func (c *ClassObject) Repr(h *Heap) string {
	return fmt.Sprintf("<class '%s'>", c.Name)
}
func (c *ClassObject) Str(h *Heap) string { return c.Repr(h) }
func (c *ClassObject) ContainsRefs() bool { return true }
func (c *ClassObject) DecRefIds(scratch []HeapId) []HeapId {
	for _, v := range c.Bases {
		if v.Kind == pyvalue.KindRef {
			scratch = append(scratch, v.Ref)
		}
	}
	for _, v := range c.MRO {
		if v.Kind == pyvalue.KindRef {
			scratch = append(scratch, v.Ref)
		}
	}
	for _, v := range c.Namespace {
		if v.Kind == pyvalue.KindRef {
			scratch = append(scratch, v.Ref)
		}
	}
	return scratch
}
func (c *ClassObject) EstimateSize() int64 {
	return int64(len(c.Bases)+len(c.MRO)+len(c.Namespace))*16 + 64
}
func (c *ClassObject) GetAttr(h *Heap, attr intern.StringId) (pyvalue.AttrCallResult, bool) {
	name := h.interns.String(attr)
	for _, base := range c.MRO {
		cls := h.Get(base.Ref).(*ClassObject)
		if v, ok := cls.Namespace[name]; ok {
			return pyvalue.Ready(v), true
		}
	}
	if v, ok := c.Namespace[name]; ok {
		return pyvalue.Ready(v), true
	}
	return pyvalue.AttrCallResult{}, false
}
func (c *ClassObject) CallAttr(h *Heap, method intern.StringId, args []pyvalue.Value) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}

// IsSubclassOf reports whether c (by uid) appears in candidate's MRO,
// walking Ref-valued MRO entries against h.
func (c *ClassObject) IsSubclassOf(h *Heap, candidateUID uint32) bool {
	if c.UID == candidateUID {
		return true
	}
	for _, v := range c.MRO {
		if h.Get(v.Ref).(*ClassObject).UID == candidateUID {
			return true
		}
	}
	return false
}

// Instance is a user object: a reference to its class plus either a
// free-form attrs dict (no __slots__) or a fixed slot vector (spec.md
// §3.3). Exception instances reuse this same shape — package pyerr's
// ExceptionRaise.Instance field points back at one of these so identity
// is preserved across raise/except.
type Instance struct {
	Class pyvalue.Value // Ref(ClassObject)
	Attrs *Dict          // nil if Slots is used instead
	Slots []pyvalue.Value
}

func NewInstance(class pyvalue.Value) *Instance {
	return &Instance{Class: class, Attrs: NewDict()}
}

func (in *Instance) TypeName() string { return "object" }
func (in *Instance) Len() (int, bool) { return 0, false }
func (in *Instance) Bool() bool       { return true }
func (in *Instance) Repr(h *Heap) string {
	cls := h.Get(in.Class.Ref).(*ClassObject)
	return fmt.Sprintf("<%s object>", cls.Name)
}
func (in *Instance) Str(h *Heap) string { return in.Repr(h) }
func (in *Instance) ContainsRefs() bool { return true }
func (in *Instance) DecRefIds(scratch []HeapId) []HeapId {
	if in.Class.Kind == pyvalue.KindRef {
		scratch = append(scratch, in.Class.Ref)
	}
	if in.Attrs != nil {
		scratch = in.Attrs.DecRefIds(scratch)
	}
	for _, v := range in.Slots {
		if v.Kind == pyvalue.KindRef {
			scratch = append(scratch, v.Ref)
		}
	}
	return scratch
}
func (in *Instance) EstimateSize() int64 { return int64(len(in.Slots))*16 + 48 }
func (in *Instance) GetAttr(h *Heap, attr intern.StringId) (pyvalue.AttrCallResult, bool) {
	name := h.interns.String(attr)
	if in.Attrs != nil {
		if v, ok := in.Attrs.Get(h, pyvalue.InternString(attr)); ok {
			return pyvalue.Ready(v), true
		}
	}
	cls := h.Get(in.Class.Ref).(*ClassObject)
	if v, ok := cls.Namespace[name]; ok {
		if v.Kind == pyvalue.KindDefFunction || v.Kind == pyvalue.KindRef {
			return pyvalue.AttrCallResult{Kind: pyvalue.ACDescriptorGet, Callable: v}, true
		}
		return pyvalue.Ready(v), true
	}
	return cls.GetAttr(h, attr)
}
func (in *Instance) CallAttr(h *Heap, method intern.StringId, args []pyvalue.Value) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}

// SetAttr assigns attr = v, taking ownership of v; only valid when Attrs
// is in use (slot-based instances are assigned by the VM directly via
// StoreAttr's precomputed slot index).
func (in *Instance) SetAttr(h *Heap, self HeapId, attr intern.StringId, v pyvalue.Value) error {
	_, err := in.Attrs.Set(h, self, pyvalue.InternString(attr), v)
	return err
}

// joinClassNames is a small repr helper for MRO/bases diagnostics.
func joinClassNames(h *Heap, classes []pyvalue.Value) string {
	names := make([]string, len(classes))
	for i, v := range classes {
		names[i] = h.Get(v.Ref).(*ClassObject).Name
	}
	return strings.Join(names, ", ")
}
