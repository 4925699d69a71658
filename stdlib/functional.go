package stdlib

import (
	"github.com/wudi/heysb/heap"
	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pyvalue"
)

// registerFunctionalBuiltins wires the handful of builtins whose entire
// body is the deferred-call protocol (spec.md §4.2): they can't invoke a
// user Python callable themselves, so they hand the VM an AttrCallResult
// naming the callable and the already-materialized item list and let the
// VM's combinator-continuation machinery (package vm) drive the calls.
func registerFunctionalBuiltins() {
	register("map", builtinMap)
	register("filter", builtinFilter)
	register("sorted", builtinSorted)
	registerMethod("functools", "reduce", builtinReduce)
}

// builtinReduce backs functools.reduce; registered under the
// "functools.reduce" method key since it is accessed as a module
// attribute (functools.reduce(...)) rather than a bare builtin name.
func builtinReduce(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	if len(args) < 2 || len(args) > 3 {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "reduce() takes 2 to 3 arguments")
	}
	items, err := materialize(h, args[1])
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	var acc pyvalue.Value
	if len(args) == 3 {
		acc = args[2]
	} else {
		if len(items) == 0 {
			return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "reduce() of empty sequence with no initial value")
		}
		acc = items[0]
		items = items[1:]
	}
	return pyvalue.AttrCallResult{Kind: pyvalue.ACReduceCall, ReduceFn: args[0], ReduceAcc: acc, Items: items}, nil
}

func builtinMap(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	if len(args) < 2 {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "map() must have at least two arguments")
	}
	items, err := materialize(h, args[1])
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	return pyvalue.AttrCallResult{Kind: pyvalue.ACMapCall, Callable: args[0], Items: items}, nil
}

func builtinFilter(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	if len(args) != 2 {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "filter() takes exactly two arguments")
	}
	items, err := materialize(h, args[1])
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	return pyvalue.AttrCallResult{Kind: pyvalue.ACFilterCall, Callable: args[0], Items: items}, nil
}

// builtinSorted covers the key=None case without a call to the VM;
// key=fn requires the deferred-call protocol's ACReduceCall-style
// per-item callback, which this representative surface does not drive —
// acknowledged by raising TypeError rather than silently ignoring key.
func builtinSorted(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	if len(args) != 1 {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "sorted() takes exactly one positional argument")
	}
	for _, kw := range kwargs {
		if kw.Name == "key" && kw.Value.Kind != pyvalue.KindNone {
			return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "sorted(key=...) is not supported by this builtin")
		}
	}
	reverse := false
	for _, kw := range kwargs {
		if kw.Name == "reverse" {
			reverse = h.Bool(kw.Value)
		}
	}
	items, err := materialize(h, args[0])
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
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
	id, e := h.Allocate(heap.NewList(items))
	if e != nil {
		return pyvalue.AttrCallResult{}, pyerr.FromResourceError(e)
	}
	return pyvalue.Ready(pyvalue.Ref(id)), nil
}
