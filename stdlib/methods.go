package stdlib

import (
	"github.com/wudi/heysb/heap"
	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pyvalue"
)

// registerContainerMethods wires list/dict/set/tuple's bound methods,
// keyed "typename.methodname" so the VM's OpLoadMethod/OpCallMethod path
// can consult this table after a heap payload's own CallAttr (always a
// miss for these built-in containers) reports not-found.
func registerContainerMethods() {
	registerMethod("list", "append", methodListAppend)
	registerMethod("list", "pop", methodListPop)
	registerMethod("list", "extend", methodListExtend)
	registerMethod("list", "insert", methodListInsert)
	registerMethod("list", "remove", methodListRemove)
	registerMethod("list", "index", methodListIndex)
	registerMethod("list", "count", methodListCount)
	registerMethod("list", "reverse", methodListReverse)
	registerMethod("list", "sort", methodListSort)
	registerMethod("list", "copy", methodListCopy)
	registerMethod("list", "clear", methodListClear)

	registerMethod("dict", "get", methodDictGet)
	registerMethod("dict", "keys", methodDictKeys)
	registerMethod("dict", "values", methodDictValues)
	registerMethod("dict", "items", methodDictItems)
	registerMethod("dict", "pop", methodDictPop)
	registerMethod("dict", "setdefault", methodDictSetdefault)
	registerMethod("dict", "update", methodDictUpdate)
	registerMethod("dict", "clear", methodDictClear)

	registerMethod("set", "add", methodSetAdd)
	registerMethod("set", "discard", methodSetDiscard)
	registerMethod("set", "remove", methodSetRemove)
	registerMethod("set", "union", methodSetUnion)
	registerMethod("set", "intersection", methodSetIntersection)
	registerMethod("set", "difference", methodSetDifference)
}

func selfList(h *heap.Heap, args []pyvalue.Value) (*heap.List, pyvalue.HeapId, *pyerr.RunError) {
	if len(args) == 0 || args[0].Kind != pyvalue.KindRef {
		return nil, 0, pyerr.InternalError("method call missing self")
	}
	l, ok := h.Get(args[0].Ref).(*heap.List)
	if !ok {
		return nil, 0, pyerr.Exc(pyerr.TypeError, "expected list self")
	}
	return l, args[0].Ref, nil
}

func methodListAppend(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	l, self, err := selfList(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	l.Append(h, self, args[1])
	return pyvalue.Ready(pyvalue.None), nil
}

func methodListExtend(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	l, self, err := selfList(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	items, ierr := materialize(h, args[1])
	if ierr != nil {
		return pyvalue.AttrCallResult{}, ierr
	}
	for _, it := range items {
		l.Append(h, self, it)
	}
	return pyvalue.Ready(pyvalue.None), nil
}

func methodListPop(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	l, _, err := selfList(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	if len(l.Items) == 0 {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.IndexError, "pop from empty list")
	}
	idx := len(l.Items) - 1
	if len(args) >= 2 {
		idx = normalizeIndex(int(args[1].I), len(l.Items))
	}
	if idx < 0 || idx >= len(l.Items) {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.IndexError, "pop index out of range")
	}
	v := l.Items[idx]
	l.Items = append(l.Items[:idx], l.Items[idx+1:]...)
	return pyvalue.Ready(v), nil
}

func normalizeIndex(i, n int) int {
	if i < 0 {
		return n + i
	}
	return i
}

func methodListInsert(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	l, self, err := selfList(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	idx := normalizeIndex(int(args[1].I), len(l.Items))
	if idx < 0 {
		idx = 0
	}
	if idx > len(l.Items) {
		idx = len(l.Items)
	}
	l.Items = append(l.Items, pyvalue.Value{})
	copy(l.Items[idx+1:], l.Items[idx:])
	l.Items[idx] = args[2]
	if args[2].Kind == pyvalue.KindRef {
		h.MarkPotentialCycle(self)
	}
	return pyvalue.Ready(pyvalue.None), nil
}

func valuesEqual(h *heap.Heap, a, b pyvalue.Value) bool {
	if eq, ok := a.Equal(b); ok {
		return eq
	}
	if a.Kind == pyvalue.KindRef && b.Kind == pyvalue.KindRef {
		as, aok := h.Get(a.Ref).(*heap.Str)
		bs, bok := h.Get(b.Ref).(*heap.Str)
		if aok && bok {
			return as.S == bs.S
		}
	}
	return false
}

func methodListRemove(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	l, _, err := selfList(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	for i, it := range l.Items {
		if valuesEqual(h, it, args[1]) {
			h.DropValue(it)
			l.Items = append(l.Items[:i], l.Items[i+1:]...)
			return pyvalue.Ready(pyvalue.None), nil
		}
	}
	return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.ValueError, "list.remove(x): x not in list")
}

func methodListIndex(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	l, _, err := selfList(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	for i, it := range l.Items {
		if valuesEqual(h, it, args[1]) {
			return pyvalue.Ready(pyvalue.Int(int64(i))), nil
		}
	}
	return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.ValueError, "%s is not in list", h.Repr(args[1]))
}

func methodListCount(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	l, _, err := selfList(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	n := 0
	for _, it := range l.Items {
		if valuesEqual(h, it, args[1]) {
			n++
		}
	}
	return pyvalue.Ready(pyvalue.Int(int64(n))), nil
}

func methodListReverse(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	l, _, err := selfList(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	for i, j := 0, len(l.Items)-1; i < j; i, j = i+1, j-1 {
		l.Items[i], l.Items[j] = l.Items[j], l.Items[i]
	}
	return pyvalue.Ready(pyvalue.None), nil
}

func methodListSort(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	l, _, err := selfList(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	reverse := false
	for _, kw := range kwargs {
		if kw.Name == "reverse" {
			reverse = h.Bool(kw.Value)
		}
	}
	// insertion sort: small representative surface, no user-comparator
	// callback support (that needs the deferred-call protocol, left for
	// a future ACSortCall variant).
	items := l.Items
	for i := 1; i < len(items); i++ {
		for j := i; j > 0; j-- {
			c, ok := compareNumeric(h, items[j], items[j-1])
			if !ok {
				return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "'<' not supported between instances")
			}
			less := c < 0
			if reverse {
				less = c > 0
			}
			if !less {
				break
			}
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
	return pyvalue.Ready(pyvalue.None), nil
}

func methodListCopy(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	l, _, err := selfList(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	items := make([]pyvalue.Value, len(l.Items))
	for i, it := range l.Items {
		items[i] = h.CloneValue(it)
	}
	id, e := h.Allocate(heap.NewList(items))
	if e != nil {
		return pyvalue.AttrCallResult{}, pyerr.FromResourceError(e)
	}
	return pyvalue.Ready(pyvalue.Ref(id)), nil
}

func methodListClear(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	l, _, err := selfList(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	h.DropValues(l.Items)
	l.Items = nil
	return pyvalue.Ready(pyvalue.None), nil
}

func selfDict(h *heap.Heap, args []pyvalue.Value) (*heap.Dict, pyvalue.HeapId, *pyerr.RunError) {
	if len(args) == 0 || args[0].Kind != pyvalue.KindRef {
		return nil, 0, pyerr.InternalError("method call missing self")
	}
	d, ok := h.Get(args[0].Ref).(*heap.Dict)
	if !ok {
		return nil, 0, pyerr.Exc(pyerr.TypeError, "expected dict self")
	}
	return d, args[0].Ref, nil
}

func methodDictGet(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	d, _, err := selfDict(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	v, ok := d.Get(h, args[1])
	if !ok {
		if len(args) >= 3 {
			return pyvalue.Ready(args[2]), nil
		}
		return pyvalue.Ready(pyvalue.None), nil
	}
	return pyvalue.Ready(h.CloneValue(v)), nil
}

func methodDictKeys(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	d, _, err := selfDict(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	keys := d.Keys()
	items := make([]pyvalue.Value, len(keys))
	for i, k := range keys {
		items[i] = h.CloneValue(k)
	}
	id, e := h.Allocate(heap.NewList(items))
	if e != nil {
		return pyvalue.AttrCallResult{}, pyerr.FromResourceError(e)
	}
	return pyvalue.Ready(pyvalue.Ref(id)), nil
}

func methodDictValues(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	d, _, err := selfDict(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	vals := d.Values()
	items := make([]pyvalue.Value, len(vals))
	for i, v := range vals {
		items[i] = h.CloneValue(v)
	}
	id, e := h.Allocate(heap.NewList(items))
	if e != nil {
		return pyvalue.AttrCallResult{}, pyerr.FromResourceError(e)
	}
	return pyvalue.Ready(pyvalue.Ref(id)), nil
}

func methodDictItems(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	d, _, err := selfDict(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	keys := d.Keys()
	items := make([]pyvalue.Value, len(keys))
	for i, k := range keys {
		v, _ := d.Get(h, k)
		tid, e := h.Allocate(heap.NewTuple([]pyvalue.Value{h.CloneValue(k), h.CloneValue(v)}))
		if e != nil {
			return pyvalue.AttrCallResult{}, pyerr.FromResourceError(e)
		}
		items[i] = pyvalue.Ref(tid)
	}
	id, e := h.Allocate(heap.NewList(items))
	if e != nil {
		return pyvalue.AttrCallResult{}, pyerr.FromResourceError(e)
	}
	return pyvalue.Ready(pyvalue.Ref(id)), nil
}

func methodDictPop(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	d, _, err := selfDict(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	v, ok := d.Get(h, args[1])
	if !ok {
		if len(args) >= 3 {
			return pyvalue.Ready(args[2]), nil
		}
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.KeyError, "%s", h.Repr(args[1]))
	}
	result := h.CloneValue(v)
	d.Delete(h, args[1])
	return pyvalue.Ready(result), nil
}

func methodDictSetdefault(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	d, self, err := selfDict(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	if v, ok := d.Get(h, args[1]); ok {
		return pyvalue.Ready(h.CloneValue(v)), nil
	}
	def := pyvalue.None
	if len(args) >= 3 {
		def = args[2]
	}
	if _, serr := d.Set(h, self, h.CloneValue(args[1]), h.CloneValue(def)); serr != nil {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "%s", serr.Error())
	}
	return pyvalue.Ready(def), nil
}

func methodDictUpdate(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	d, self, err := selfDict(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	if len(args) >= 2 {
		other, ok := h.Get(args[1].Ref).(*heap.Dict)
		if !ok {
			return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "argument must be a dict")
		}
		for _, k := range other.Keys() {
			v, _ := other.Get(h, k)
			if _, serr := d.Set(h, self, h.CloneValue(k), h.CloneValue(v)); serr != nil {
				return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "%s", serr.Error())
			}
		}
	}
	for _, kw := range kwargs {
		kv, kerr := allocStr(h, kw.Name)
		if kerr != nil {
			return pyvalue.AttrCallResult{}, kerr
		}
		if _, serr := d.Set(h, self, kv, kw.Value); serr != nil {
			return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "%s", serr.Error())
		}
	}
	return pyvalue.Ready(pyvalue.None), nil
}

func methodDictClear(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	d, _, err := selfDict(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	for _, k := range d.Keys() {
		d.Delete(h, k)
	}
	return pyvalue.Ready(pyvalue.None), nil
}

func selfSet(h *heap.Heap, args []pyvalue.Value) (*heap.PySet, pyvalue.HeapId, *pyerr.RunError) {
	if len(args) == 0 || args[0].Kind != pyvalue.KindRef {
		return nil, 0, pyerr.InternalError("method call missing self")
	}
	s, ok := h.Get(args[0].Ref).(*heap.PySet)
	if !ok {
		return nil, 0, pyerr.Exc(pyerr.TypeError, "expected set self")
	}
	return s, args[0].Ref, nil
}

func methodSetAdd(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	s, self, err := selfSet(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	if _, aerr := s.Add(h, self, args[1]); aerr != nil {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "%s", aerr.Error())
	}
	return pyvalue.Ready(pyvalue.None), nil
}

func methodSetDiscard(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	s, self, err := selfSet(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	discardFromSet(h, s, self, args[1])
	return pyvalue.Ready(pyvalue.None), nil
}

func methodSetRemove(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	s, self, err := selfSet(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	if !s.Contains(h, args[1]) {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.KeyError, "%s", h.Repr(args[1]))
	}
	discardFromSet(h, s, self, args[1])
	return pyvalue.Ready(pyvalue.None), nil
}

// discardFromSet rebuilds s without v; PySet exposes no direct delete, so
// this mirrors it via a materialize/re-add pass over its own Items().
func discardFromSet(h *heap.Heap, s *heap.PySet, self pyvalue.HeapId, v pyvalue.Value) {
	items := s.Items()
	fresh := heap.NewSet(false)
	for _, it := range items {
		if valuesEqual(h, it, v) {
			h.DropValue(it)
			continue
		}
		fresh.Add(h, self, it)
	}
	*s = *fresh
}

func methodSetUnion(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	s, _, err := selfSet(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	fresh := heap.NewSet(false)
	id, e := h.Allocate(fresh)
	if e != nil {
		return pyvalue.AttrCallResult{}, pyerr.FromResourceError(e)
	}
	for _, it := range s.Items() {
		fresh.Add(h, id, h.CloneValue(it))
	}
	for _, other := range args[1:] {
		items, ierr := materialize(h, other)
		if ierr != nil {
			h.DecRef(id)
			return pyvalue.AttrCallResult{}, ierr
		}
		for _, it := range items {
			fresh.Add(h, id, it)
		}
	}
	return pyvalue.Ready(pyvalue.Ref(id)), nil
}

func methodSetIntersection(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	s, _, err := selfSet(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	others := make([][]pyvalue.Value, len(args)-1)
	for i, other := range args[1:] {
		items, ierr := materialize(h, other)
		if ierr != nil {
			return pyvalue.AttrCallResult{}, ierr
		}
		others[i] = items
	}
	fresh := heap.NewSet(false)
	id, e := h.Allocate(fresh)
	if e != nil {
		return pyvalue.AttrCallResult{}, pyerr.FromResourceError(e)
	}
	for _, it := range s.Items() {
		inAll := true
		for _, o := range others {
			found := false
			for _, ov := range o {
				if valuesEqual(h, it, ov) {
					found = true
					break
				}
			}
			if !found {
				inAll = false
				break
			}
		}
		if inAll {
			fresh.Add(h, id, h.CloneValue(it))
		}
	}
	for _, o := range others {
		h.DropValues(o)
	}
	return pyvalue.Ready(pyvalue.Ref(id)), nil
}

func methodSetDifference(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	s, _, err := selfSet(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	others := make([][]pyvalue.Value, len(args)-1)
	for i, other := range args[1:] {
		items, ierr := materialize(h, other)
		if ierr != nil {
			return pyvalue.AttrCallResult{}, ierr
		}
		others[i] = items
	}
	fresh := heap.NewSet(false)
	id, e := h.Allocate(fresh)
	if e != nil {
		return pyvalue.AttrCallResult{}, pyerr.FromResourceError(e)
	}
	for _, it := range s.Items() {
		excluded := false
		for _, o := range others {
			for _, ov := range o {
				if valuesEqual(h, it, ov) {
					excluded = true
					break
				}
			}
		}
		if !excluded {
			fresh.Add(h, id, h.CloneValue(it))
		}
	}
	for _, o := range others {
		h.DropValues(o)
	}
	return pyvalue.Ready(pyvalue.Ref(id)), nil
}
