package heap

import (
	"fmt"

	"github.com/wudi/heysb/intern"
	"github.com/wudi/heysb/pyvalue"
)

// Closure is a user DefFunction bound to its captured free-variable cells
// and evaluated default values (spec.md §3.3, §4.4). A bare DefFunction
// Value (no captures, no defaults) never needs one of these; OpMakeFunction
// only allocates a Closure when FreeVarEnclosing or Defaults is non-empty.
type Closure struct {
	FnID      pyvalue.FunctionId
	FreeCells []pyvalue.Value // Ref(cellID) values, one per captured free variable
	Defaults  []pyvalue.Value
}

func NewClosure(fn pyvalue.FunctionId, freeCells, defaults []pyvalue.Value) *Closure {
	return &Closure{FnID: fn, FreeCells: freeCells, Defaults: defaults}
}

func (c *Closure) TypeName() string { return "function" }
func (c *Closure) Len() (int, bool) { return 0, false }
func (c *Closure) Bool() bool       { return true }
func (c *Closure) Repr(h *Heap) string {
	return fmt.Sprintf("<function id=%d>", c.FnID)
}
func (c *Closure) Str(h *Heap) string { return c.Repr(h) }
func (c *Closure) ContainsRefs() bool { return len(c.FreeCells) > 0 || len(c.Defaults) > 0 }
func (c *Closure) DecRefIds(scratch []HeapId) []HeapId {
	for _, v := range c.FreeCells {
		if v.Kind == pyvalue.KindRef {
			scratch = append(scratch, v.Ref)
		}
	}
	for _, v := range c.Defaults {
		if v.Kind == pyvalue.KindRef {
			scratch = append(scratch, v.Ref)
		}
	}
	return scratch
}
func (c *Closure) EstimateSize() int64 { return int64(len(c.FreeCells)+len(c.Defaults))*16 + 32 }
func (c *Closure) GetAttr(h *Heap, attr intern.StringId) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}
func (c *Closure) CallAttr(h *Heap, method intern.StringId, args []pyvalue.Value) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}

// BoundMethod binds Self to Func (a DefFunction, Closure Ref, or builtin
// Value) the way CPython's instance.method lookup does (spec.md §9
// "descriptors and bound methods"); calling it prepends Self to the
// argument list.
type BoundMethod struct {
	Self pyvalue.Value
	Func pyvalue.Value
}

func NewBoundMethod(self, fn pyvalue.Value) *BoundMethod { return &BoundMethod{Self: self, Func: fn} }
func (b *BoundMethod) TypeName() string                  { return "method" }
func (b *BoundMethod) Len() (int, bool)                  { return 0, false }
func (b *BoundMethod) Bool() bool                        { return true }
func (b *BoundMethod) Repr(h *Heap) string               { return "<bound method>" }
func (b *BoundMethod) Str(h *Heap) string                { return b.Repr(h) }
func (b *BoundMethod) ContainsRefs() bool                { return true }
func (b *BoundMethod) DecRefIds(scratch []HeapId) []HeapId {
	if b.Self.Kind == pyvalue.KindRef {
		scratch = append(scratch, b.Self.Ref)
	}
	if b.Func.Kind == pyvalue.KindRef {
		scratch = append(scratch, b.Func.Ref)
	}
	return scratch
}
func (b *BoundMethod) EstimateSize() int64 { return 32 }
func (b *BoundMethod) GetAttr(h *Heap, attr intern.StringId) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}
func (b *BoundMethod) CallAttr(h *Heap, method intern.StringId, args []pyvalue.Value) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}

// BoundBuiltinMethod binds a container/str self value to a stdlib method
// table entry (list.append, str.upper, ...) resolved at attribute-lookup
// time, mirroring BoundMethod's shape for user-defined callables.
type BoundBuiltinMethod struct {
	Self     pyvalue.Value
	SelfType string
	Method   string
}

func NewBoundBuiltinMethod(self pyvalue.Value, typeName, method string) *BoundBuiltinMethod {
	return &BoundBuiltinMethod{Self: self, SelfType: typeName, Method: method}
}
func (b *BoundBuiltinMethod) TypeName() string { return "builtin_function_or_method" }
func (b *BoundBuiltinMethod) Len() (int, bool)  { return 0, false }
func (b *BoundBuiltinMethod) Bool() bool        { return true }
func (b *BoundBuiltinMethod) Repr(h *Heap) string {
	return fmt.Sprintf("<built-in method %s of %s object>", b.Method, b.SelfType)
}
func (b *BoundBuiltinMethod) Str(h *Heap) string { return b.Repr(h) }
func (b *BoundBuiltinMethod) ContainsRefs() bool { return true }
func (b *BoundBuiltinMethod) DecRefIds(scratch []HeapId) []HeapId {
	if b.Self.Kind == pyvalue.KindRef {
		scratch = append(scratch, b.Self.Ref)
	}
	return scratch
}
func (b *BoundBuiltinMethod) EstimateSize() int64 { return 32 }
func (b *BoundBuiltinMethod) GetAttr(h *Heap, attr intern.StringId) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}
func (b *BoundBuiltinMethod) CallAttr(h *Heap, method intern.StringId, args []pyvalue.Value) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}

// BoundGeneratorMethod binds a Generator/coroutine Ref to one of its
// driver methods (send/throw/close) the VM must intercept directly
// since advancing a generator means pushing a real frame, something a
// plain stdlib builtin cannot do (spec.md §3.6/§3.7).
type BoundGeneratorMethod struct {
	Gen    pyvalue.Value // Ref(Generator)
	Method string
}

func NewBoundGeneratorMethod(gen pyvalue.Value, method string) *BoundGeneratorMethod {
	return &BoundGeneratorMethod{Gen: gen, Method: method}
}
func (b *BoundGeneratorMethod) TypeName() string { return "method-wrapper" }
func (b *BoundGeneratorMethod) Len() (int, bool)  { return 0, false }
func (b *BoundGeneratorMethod) Bool() bool        { return true }
func (b *BoundGeneratorMethod) Repr(h *Heap) string {
	return fmt.Sprintf("<method-wrapper '%s' of generator>", b.Method)
}
func (b *BoundGeneratorMethod) Str(h *Heap) string { return b.Repr(h) }
func (b *BoundGeneratorMethod) ContainsRefs() bool { return true }
func (b *BoundGeneratorMethod) DecRefIds(scratch []HeapId) []HeapId {
	if b.Gen.Kind == pyvalue.KindRef {
		scratch = append(scratch, b.Gen.Ref)
	}
	return scratch
}
func (b *BoundGeneratorMethod) EstimateSize() int64 { return 24 }
func (b *BoundGeneratorMethod) GetAttr(h *Heap, attr intern.StringId) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}
func (b *BoundGeneratorMethod) CallAttr(h *Heap, method intern.StringId, args []pyvalue.Value) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}

// StaticMethod and ClassMethod are the two decorator wrapper shapes
// CPython's descriptor protocol binds differently at attribute-lookup
// time: StaticMethod never receives an implicit first argument,
// ClassMethod receives the class rather than the instance.
type StaticMethod struct{ Func pyvalue.Value }
type ClassMethod struct{ Func pyvalue.Value }

func NewStaticMethod(fn pyvalue.Value) *StaticMethod { return &StaticMethod{Func: fn} }
func (s *StaticMethod) TypeName() string             { return "staticmethod" }
func (s *StaticMethod) Len() (int, bool)              { return 0, false }
func (s *StaticMethod) Bool() bool                    { return true }
func (s *StaticMethod) Repr(h *Heap) string           { return "<staticmethod>" }
func (s *StaticMethod) Str(h *Heap) string            { return s.Repr(h) }
func (s *StaticMethod) ContainsRefs() bool            { return s.Func.Kind == pyvalue.KindRef }
func (s *StaticMethod) DecRefIds(scratch []HeapId) []HeapId {
	if s.Func.Kind == pyvalue.KindRef {
		scratch = append(scratch, s.Func.Ref)
	}
	return scratch
}
func (s *StaticMethod) EstimateSize() int64 { return 16 }
func (s *StaticMethod) GetAttr(h *Heap, attr intern.StringId) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}
func (s *StaticMethod) CallAttr(h *Heap, method intern.StringId, args []pyvalue.Value) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}

func NewClassMethod(fn pyvalue.Value) *ClassMethod { return &ClassMethod{Func: fn} }
func (c *ClassMethod) TypeName() string            { return "classmethod" }
func (c *ClassMethod) Len() (int, bool)             { return 0, false }
func (c *ClassMethod) Bool() bool                   { return true }
func (c *ClassMethod) Repr(h *Heap) string          { return "<classmethod>" }
func (c *ClassMethod) Str(h *Heap) string           { return c.Repr(h) }
func (c *ClassMethod) ContainsRefs() bool           { return c.Func.Kind == pyvalue.KindRef }
func (c *ClassMethod) DecRefIds(scratch []HeapId) []HeapId {
	if c.Func.Kind == pyvalue.KindRef {
		scratch = append(scratch, c.Func.Ref)
	}
	return scratch
}
func (c *ClassMethod) EstimateSize() int64 { return 16 }
func (c *ClassMethod) GetAttr(h *Heap, attr intern.StringId) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}
func (c *ClassMethod) CallAttr(h *Heap, method intern.StringId, args []pyvalue.Value) (pyvalue.AttrCallResult, bool) {
	return pyvalue.AttrCallResult{}, false
}
