package stdlib

import (
	"math"

	"github.com/wudi/heysb/heap"
	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pyvalue"
)

func registerNumericBuiltins() {
	register("int", builtinInt)
	register("float", builtinFloat)
	register("abs", builtinAbs)
	register("min", builtinMin)
	register("max", builtinMax)
	register("sum", builtinSum)
	register("any", builtinAny)
	register("all", builtinAll)
	register("round", builtinRound)
}

func asFloat(v pyvalue.Value) (float64, bool) {
	switch v.Kind {
	case pyvalue.KindInt:
		return float64(v.I), true
	case pyvalue.KindFloat:
		return v.F, true
	case pyvalue.KindBool:
		if v.B {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

func builtinInt(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	if len(args) == 0 {
		return pyvalue.Ready(pyvalue.Int(0)), nil
	}
	a := args[0]
	switch a.Kind {
	case pyvalue.KindInt:
		return pyvalue.Ready(a), nil
	case pyvalue.KindFloat:
		return pyvalue.Ready(pyvalue.Int(int64(a.F))), nil
	case pyvalue.KindBool:
		if a.B {
			return pyvalue.Ready(pyvalue.Int(1)), nil
		}
		return pyvalue.Ready(pyvalue.Int(0)), nil
	case pyvalue.KindInternString:
		n, err := parseInt(h.Str(a))
		if err != nil {
			return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.ValueError, "invalid literal for int() with base 10: %s", h.Repr(a))
		}
		return pyvalue.Ready(pyvalue.Int(n)), nil
	case pyvalue.KindRef:
		if s, ok := h.Get(a.Ref).(*heap.Str); ok {
			n, err := parseInt(s.S)
			if err != nil {
				return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.ValueError, "invalid literal for int() with base 10: %s", h.Repr(a))
			}
			return pyvalue.Ready(pyvalue.Int(n)), nil
		}
	}
	return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "int() argument must be a string or a number, not %q", h.TypeName(a))
}

func builtinFloat(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	if len(args) == 0 {
		return pyvalue.Ready(pyvalue.Float(0)), nil
	}
	a := args[0]
	if f, ok := asFloat(a); ok {
		return pyvalue.Ready(pyvalue.Float(f)), nil
	}
	s := h.Str(a)
	f, err := parseFloat(s)
	if err != nil {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.ValueError, "could not convert string to float: %s", h.Repr(a))
	}
	return pyvalue.Ready(pyvalue.Float(f)), nil
}

func builtinAbs(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	if len(args) != 1 {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "abs() takes exactly one argument (%d given)", len(args))
	}
	switch args[0].Kind {
	case pyvalue.KindInt:
		n := args[0].I
		if n < 0 {
			n = -n
		}
		return pyvalue.Ready(pyvalue.Int(n)), nil
	case pyvalue.KindFloat:
		return pyvalue.Ready(pyvalue.Float(math.Abs(args[0].F))), nil
	default:
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "bad operand type for abs(): %q", h.TypeName(args[0]))
	}
}

func builtinRound(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	if len(args) == 0 {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "round() takes at least one argument")
	}
	f, ok := asFloat(args[0])
	if !ok {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "type %q doesn't define __round__ method", h.TypeName(args[0]))
	}
	if len(args) == 1 {
		return pyvalue.Ready(pyvalue.Int(int64(math.Round(f)))), nil
	}
	ndigits := args[1].I
	scale := math.Pow(10, float64(ndigits))
	return pyvalue.Ready(pyvalue.Float(math.Round(f*scale) / scale)), nil
}

func compareNumeric(h *heap.Heap, a, b pyvalue.Value) (int, bool) {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok2 := stringOf(h, a)
	bs, bok2 := stringOf(h, b)
	if aok2 && bok2 {
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func stringOf(h *heap.Heap, v pyvalue.Value) (string, bool) {
	switch v.Kind {
	case pyvalue.KindInternString:
		return h.Str(v), true
	case pyvalue.KindRef:
		if _, ok := h.Get(v.Ref).(*heap.Str); ok {
			return h.Str(v), true
		}
	}
	return "", false
}

func builtinMin(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	return minMax(h, args, -1)
}

func builtinMax(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	return minMax(h, args, 1)
}

func minMax(h *heap.Heap, args []pyvalue.Value, want int) (pyvalue.AttrCallResult, *pyerr.RunError) {
	var items []pyvalue.Value
	if len(args) == 1 {
		var err *pyerr.RunError
		items, err = materialize(h, args[0])
		if err != nil {
			return pyvalue.AttrCallResult{}, err
		}
	} else {
		items = args
	}
	if len(items) == 0 {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.ValueError, "min()/max() arg is an empty sequence")
	}
	best := items[0]
	for _, it := range items[1:] {
		c, ok := compareNumeric(h, it, best)
		if !ok {
			return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "comparison not supported between instances")
		}
		if c == want {
			best = it
		}
	}
	return pyvalue.Ready(h.CloneValue(best)), nil
}

func builtinSum(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	if len(args) < 1 {
		return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "sum() takes at least 1 argument")
	}
	items, err := materialize(h, args[0])
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	start := 0.0
	isFloat := false
	if len(args) == 2 {
		f, _ := asFloat(args[1])
		start = f
		isFloat = args[1].Kind == pyvalue.KindFloat
	}
	total := start
	for _, it := range items {
		f, ok := asFloat(it)
		if !ok {
			return pyvalue.AttrCallResult{}, pyerr.Exc(pyerr.TypeError, "unsupported operand type(s) for +: %q", h.TypeName(it))
		}
		if it.Kind == pyvalue.KindFloat {
			isFloat = true
		}
		total += f
	}
	if isFloat {
		return pyvalue.Ready(pyvalue.Float(total)), nil
	}
	return pyvalue.Ready(pyvalue.Int(int64(total))), nil
}

func builtinAny(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	items, err := materialize(h, args[0])
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	for _, it := range items {
		if h.Bool(it) {
			return pyvalue.Ready(pyvalue.Bool(true)), nil
		}
	}
	return pyvalue.Ready(pyvalue.Bool(false)), nil
}

func builtinAll(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	items, err := materialize(h, args[0])
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	for _, it := range items {
		if !h.Bool(it) {
			return pyvalue.Ready(pyvalue.Bool(false)), nil
		}
	}
	return pyvalue.Ready(pyvalue.Bool(true)), nil
}
