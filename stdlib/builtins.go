package stdlib

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wudi/heysb/heap"
	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pyvalue"
)

func registerCoreBuiltins() {
	register("print", builtinPrint)
	register("len", builtinLen)
	register("str", builtinStr)
	register("repr", builtinRepr)
	register("bool", builtinBool)
	register("type", builtinType)
	register("isinstance", builtinIsinstance)
	register("range", builtinRange)
	register("list", builtinList)
	register("tuple", builtinTuple)
	register("dict", builtinDict)
	register("set", builtinSet)
	register("iter", builtinIter)
	register("next", builtinNext)
	register("id", builtinID)
	register("hash", builtinHash)
}

func builtinPrint(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	sep, end := " ", "\n"
	for _, kw := range kwargs {
		switch kw.Name {
		case "sep":
			sep = h.Str(kw.Value)
		case "end":
			end = h.Str(kw.Value)
		}
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = h.Str(a)
	}
	h.Print(strings.Join(parts, sep) + end)
	return pyvalue.Ready(pyvalue.None), nil
}

func builtinLen(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	if len(args) != 1 {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "len() takes exactly one argument (%d given)", len(args))
	}
	n, ok := h.Len(args[0])
	if !ok {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "object of type %q has no len()", h.TypeName(args[0]))
	}
	return pyvalue.Ready(pyvalue.Int(int64(n))), nil
}

func allocStr(h *heap.Heap, s string) (pyvalue.Value, *pyerr.RunError) {
	id, err := h.Allocate(heap.NewStr(s))
	if err != nil {
		return pyvalue.Value{}, pyerr.FromResourceError(err)
	}
	return pyvalue.Ref(id), nil
}

func builtinStr(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	if len(args) == 0 {
		v, err := allocStr(h, "")
		return pyvalue.Ready(v), err
	}
	v, err := allocStr(h, h.Str(args[0]))
	return pyvalue.Ready(v), err
}

func builtinRepr(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	if len(args) != 1 {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "repr() takes exactly one argument (%d given)", len(args))
	}
	v, err := allocStr(h, h.Repr(args[0]))
	return pyvalue.Ready(v), err
}

func builtinBool(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	if len(args) == 0 {
		return pyvalue.Ready(pyvalue.Bool(false)), nil
	}
	return pyvalue.Ready(pyvalue.Bool(h.Bool(args[0]))), nil
}

func builtinType(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	if len(args) != 1 {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "type() takes 1 positional argument but %d were given", len(args))
	}
	v, err := allocStr(h, h.TypeName(args[0]))
	return pyvalue.Ready(v), err
}

func builtinIsinstance(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	if len(args) != 2 {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "isinstance() takes 2 arguments (%d given)", len(args))
	}
	obj, classArg := args[0], args[1]
	if classArg.Kind != pyvalue.KindRef {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "isinstance() arg 2 must be a type")
	}
	cls, ok := h.Get(classArg.Ref).(*heap.ClassObject)
	if !ok {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "isinstance() arg 2 must be a type")
	}
	inst, ok := objectClass(h, obj)
	if !ok {
		return pyvalue.Ready(pyvalue.Bool(false)), nil
	}
	return pyvalue.Ready(pyvalue.Bool(inst.IsSubclassOf(h, cls.UID))), nil
}

func objectClass(h *heap.Heap, v pyvalue.Value) (*heap.ClassObject, bool) {
	if v.Kind != pyvalue.KindRef {
		return nil, false
	}
	inst, ok := h.Get(v.Ref).(*heap.Instance)
	if !ok {
		return nil, false
	}
	return h.Get(inst.Class.Ref).(*heap.ClassObject), true
}

func builtinRange(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	var start, stop, step int64 = 0, 0, 1
	switch len(args) {
	case 1:
		stop = args[0].I
	case 2:
		start, stop = args[0].I, args[1].I
	case 3:
		start, stop, step = args[0].I, args[1].I, args[2].I
		if step == 0 {
			return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.ValueError, "range() arg 3 must not be zero")
		}
	default:
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "range expected at most 3 arguments, got %d", len(args))
	}
	id, e := h.Allocate(heap.NewRange(start, stop, step))
	if e != nil {
		return pyvalue.AttrCallResult{}, pyerr.FromResourceError(e)
	}
	return pyvalue.Ready(pyvalue.Ref(id)), nil
}

// materialize drains any iterable Value into a plain Go slice of owned,
// cloned Values — the shared helper behind list(), tuple(), set(), dict()
// and the functional combinators.
func materialize(h *heap.Heap, v pyvalue.Value) ([]pyvalue.Value, *pyerr.RunError) {
	if v.Kind != pyvalue.KindRef {
		return nil, pyerr.Exc(pyerr.TypeError, "%q object is not iterable", h.TypeName(v))
	}
	switch obj := h.Get(v.Ref).(type) {
	case *heap.List:
		out := make([]pyvalue.Value, len(obj.Items))
		for i, it := range obj.Items {
			out[i] = h.CloneValue(it)
		}
		return out, nil
	case *heap.Tuple:
		out := make([]pyvalue.Value, len(obj.Items))
		for i, it := range obj.Items {
			out[i] = h.CloneValue(it)
		}
		return out, nil
	case *heap.PySet:
		return obj.Items(), nil
	case *heap.Range:
		n, _ := obj.Len()
		out := make([]pyvalue.Value, n)
		for i := 0; i < n; i++ {
			out[i] = pyvalue.Int(obj.At(int64(i)))
		}
		return out, nil
	case *heap.Str:
		rs := []rune(obj.S)
		out := make([]pyvalue.Value, len(rs))
		for i, r := range rs {
			sv, err := allocStr(h, string(r))
			if err != nil {
				return nil, err
			}
			out[i] = sv
		}
		return out, nil
	case *heap.Iter:
		var out []pyvalue.Value
		for {
			v, err := obj.Next(h)
			if err != nil {
				if re, ok := err.(*pyerr.RunError); ok && re.Matches(pyerr.StopIteration) {
					break
				}
				return nil, err.(*pyerr.RunError)
			}
			out = append(out, v)
		}
		return out, nil
	default:
		return nil, pyerr.Exc(pyerr.TypeError, "%q object is not iterable", h.TypeName(v))
	}
}

func builtinList(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	var items []pyvalue.Value
	if len(args) == 1 {
		var err *pyerr.RunError
		items, err = materialize(h, args[0])
		if err != nil {
			return pyvalue.AttrCallResult{}, err
		}
	}
	id, e := h.Allocate(heap.NewList(items))
	if e != nil {
		return pyvalue.AttrCallResult{}, pyerr.FromResourceError(e)
	}
	return pyvalue.Ready(pyvalue.Ref(id)), nil
}

func builtinTuple(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	var items []pyvalue.Value
	if len(args) == 1 {
		var err *pyerr.RunError
		items, err = materialize(h, args[0])
		if err != nil {
			return pyvalue.AttrCallResult{}, err
		}
	}
	id, e := h.Allocate(heap.NewTuple(items))
	if e != nil {
		return pyvalue.AttrCallResult{}, pyerr.FromResourceError(e)
	}
	return pyvalue.Ready(pyvalue.Ref(id)), nil
}

func builtinSet(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	s := heap.NewSet(false)
	id, e := h.Allocate(s)
	if e != nil {
		return pyvalue.AttrCallResult{}, pyerr.FromResourceError(e)
	}
	if len(args) == 1 {
		items, err := materialize(h, args[0])
		if err != nil {
			h.DecRef(id)
			return pyvalue.AttrCallResult{}, err
		}
		for _, it := range items {
			if _, aerr := s.Add(h, id, it); aerr != nil {
				h.DecRef(id)
				return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "%s", aerr.Error())
			}
		}
	}
	return pyvalue.Ready(pyvalue.Ref(id)), nil
}

func builtinDict(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	d := heap.NewDict()
	id, e := h.Allocate(d)
	if e != nil {
		return pyvalue.AttrCallResult{}, pyerr.FromResourceError(e)
	}
	for _, kw := range kwargs {
		kv, kerr := allocStr(h, kw.Name)
		if kerr != nil {
			h.DecRef(id)
			return pyvalue.AttrCallResult{}, kerr
		}
		if _, serr := d.Set(h, id, kv, kw.Value); serr != nil {
			h.DecRef(id)
			return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "%s", serr.Error())
		}
	}
	return pyvalue.Ready(pyvalue.Ref(id)), nil
}

func builtinIter(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	if len(args) != 1 {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "iter() takes exactly one argument (%d given)", len(args))
	}
	v := args[0]
	if v.Kind != pyvalue.KindRef {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "%q object is not iterable", h.TypeName(v))
	}
	var kind heap.IterKind
	switch h.Get(v.Ref).(type) {
	case *heap.List:
		kind = heap.IterList
	case *heap.Tuple:
		kind = heap.IterTuple
	case *heap.Range:
		kind = heap.IterRange
	case *heap.PySet:
		kind = heap.IterSetItems
	case *heap.Str:
		s := h.Get(v.Ref).(*heap.Str).S
		h.IncRef(v.Ref)
		h.DropValue(v)
		id, e := h.Allocate(heap.NewStrIter(s))
		if e != nil {
			return pyvalue.AttrCallResult{}, pyerr.FromResourceError(e)
		}
		return pyvalue.Ready(pyvalue.Ref(id)), nil
	case *heap.Iter:
		return pyvalue.Ready(v), nil
	default:
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "%q object is not iterable", h.TypeName(v))
	}
	id, e := h.Allocate(heap.NewIter(kind, h.CloneValue(v)))
	if e != nil {
		return pyvalue.AttrCallResult{}, pyerr.FromResourceError(e)
	}
	return pyvalue.Ready(pyvalue.Ref(id)), nil
}

func builtinNext(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	if len(args) < 1 || len(args) > 2 {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "next expected at most 2 arguments, got %d", len(args))
	}
	if args[0].Kind != pyvalue.KindRef {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "%q object is not an iterator", h.TypeName(args[0]))
	}
	it, ok := h.Get(args[0].Ref).(*heap.Iter)
	if !ok {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "%q object is not an iterator", h.TypeName(args[0]))
	}
	v, err := it.Next(h)
	if err != nil {
		re := err.(*pyerr.RunError)
		if len(args) == 2 && re.Matches(pyerr.StopIteration) {
			return pyvalue.Ready(args[1]), nil
		}
		return pyvalue.AttrCallResult{}, re
	}
	return pyvalue.Ready(v), nil
}

func builtinID(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	if len(args) != 1 {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "id() takes exactly one argument (%d given)", len(args))
	}
	if args[0].Kind == pyvalue.KindRef {
		return pyvalue.Ready(pyvalue.Int(int64(args[0].Ref))), nil
	}
	return pyvalue.Ready(pyvalue.Int(int64(args[0].Kind)<<32 | int64(args[0].I))), nil
}

func builtinHash(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	if len(args) != 1 {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "hash() takes exactly one argument (%d given)", len(args))
	}
	v := args[0]
	switch v.Kind {
	case pyvalue.KindInt:
		return pyvalue.Ready(pyvalue.Int(v.I)), nil
	case pyvalue.KindBool:
		if v.B {
			return pyvalue.Ready(pyvalue.Int(1)), nil
		}
		return pyvalue.Ready(pyvalue.Int(0)), nil
	case pyvalue.KindInternString:
		s := h.Str(v)
		var hv int64
		for _, r := range s {
			hv = hv*31 + int64(r)
		}
		return pyvalue.Ready(pyvalue.Int(hv)), nil
	default:
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "unhashable type: %q", h.TypeName(v))
	}
}

// parseInt/parseFloat back int()/float() in numeric.go.
func parseInt(s string) (int64, error)     { return strconv.ParseInt(strings.TrimSpace(s), 10, 64) }
func parseFloat(s string) (float64, error) { return strconv.ParseFloat(strings.TrimSpace(s), 64) }

var _ = fmt.Sprintf
