package stdlib

import (
	"strings"

	"github.com/wudi/heysb/heap"
	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pyvalue"
)

func registerStringMethods() {
	registerMethod("str", "upper", methodStrUpper)
	registerMethod("str", "lower", methodStrLower)
	registerMethod("str", "strip", methodStrStrip)
	registerMethod("str", "lstrip", methodStrLstrip)
	registerMethod("str", "rstrip", methodStrRstrip)
	registerMethod("str", "split", methodStrSplit)
	registerMethod("str", "join", methodStrJoin)
	registerMethod("str", "replace", methodStrReplace)
	registerMethod("str", "startswith", methodStrStartswith)
	registerMethod("str", "endswith", methodStrEndswith)
	registerMethod("str", "find", methodStrFind)
	registerMethod("str", "format", methodStrFormat)
	registerMethod("str", "title", methodStrTitle)
	registerMethod("str", "capitalize", methodStrCapitalize)
}

func selfStr(h *heap.Heap, args []pyvalue.Value) (string, *pyerr.RunError) {
	if len(args) == 0 {
		return "", pyerr.InternalError("method call missing self")
	}
	if args[0].Kind == pyvalue.KindInternString {
		return h.Str(args[0]), nil
	}
	if args[0].Kind == pyvalue.KindRef {
		if s, ok := h.Get(args[0].Ref).(*heap.Str); ok {
			return s.S, nil
		}
	}
	return "", pyerr.Exc(pyerr.TypeError, "expected str self")
}

func methodStrUpper(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	s, err := selfStr(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	v, aerr := allocStr(h, strings.ToUpper(s))
	return pyvalue.Ready(v), aerr
}

func methodStrLower(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	s, err := selfStr(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	v, aerr := allocStr(h, strings.ToLower(s))
	return pyvalue.Ready(v), aerr
}

func methodStrStrip(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	s, err := selfStr(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	cut := " \t\n\r\v\f"
	if len(args) >= 2 {
		cut, err = selfStr(h, args[1:])
		if err != nil {
			return pyvalue.AttrCallResult{}, err
		}
	}
	v, aerr := allocStr(h, strings.Trim(s, cut))
	return pyvalue.Ready(v), aerr
}

func methodStrLstrip(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	s, err := selfStr(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	v, aerr := allocStr(h, strings.TrimLeft(s, " \t\n\r\v\f"))
	return pyvalue.Ready(v), aerr
}

func methodStrRstrip(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	s, err := selfStr(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	v, aerr := allocStr(h, strings.TrimRight(s, " \t\n\r\v\f"))
	return pyvalue.Ready(v), aerr
}

func methodStrSplit(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	s, err := selfStr(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	var parts []string
	if len(args) >= 2 {
		sep, serr := selfStr(h, args[1:])
		if serr != nil {
			return pyvalue.AttrCallResult{}, serr
		}
		parts = strings.Split(s, sep)
	} else {
		parts = strings.Fields(s)
	}
	items := make([]pyvalue.Value, len(parts))
	for i, p := range parts {
		v, aerr := allocStr(h, p)
		if aerr != nil {
			return pyvalue.AttrCallResult{}, aerr
		}
		items[i] = v
	}
	id, e := h.Allocate(heap.NewList(items))
	if e != nil {
		return pyvalue.AttrCallResult{}, pyerr.FromResourceError(e)
	}
	return pyvalue.Ready(pyvalue.Ref(id)), nil
}

func methodStrJoin(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	sep, err := selfStr(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	items, ierr := materialize(h, args[1])
	if ierr != nil {
		return pyvalue.AttrCallResult{}, ierr
	}
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = h.Str(it)
	}
	h.DropValues(items)
	v, aerr := allocStr(h, strings.Join(parts, sep))
	return pyvalue.Ready(v), aerr
}

func methodStrReplace(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	s, err := selfStr(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	old, oerr := selfStr(h, args[1:])
	if oerr != nil {
		return pyvalue.AttrCallResult{}, oerr
	}
	newS, nerr := selfStr(h, args[2:])
	if nerr != nil {
		return pyvalue.AttrCallResult{}, nerr
	}
	count := -1
	if len(args) >= 4 {
		count = int(args[3].I)
	}
	v, aerr := allocStr(h, strings.Replace(s, old, newS, count))
	return pyvalue.Ready(v), aerr
}

func methodStrStartswith(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	s, err := selfStr(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	prefix, perr := selfStr(h, args[1:])
	if perr != nil {
		return pyvalue.AttrCallResult{}, perr
	}
	return pyvalue.Ready(pyvalue.Bool(strings.HasPrefix(s, prefix))), nil
}

func methodStrEndswith(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	s, err := selfStr(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	suffix, serr := selfStr(h, args[1:])
	if serr != nil {
		return pyvalue.AttrCallResult{}, serr
	}
	return pyvalue.Ready(pyvalue.Bool(strings.HasSuffix(s, suffix))), nil
}

func methodStrFind(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	s, err := selfStr(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	needle, nerr := selfStr(h, args[1:])
	if nerr != nil {
		return pyvalue.AttrCallResult{}, nerr
	}
	return pyvalue.Ready(pyvalue.Int(int64(strings.Index(s, needle)))), nil
}

func methodStrTitle(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	s, err := selfStr(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	v, aerr := allocStr(h, strings.Title(strings.ToLower(s)))
	return pyvalue.Ready(v), aerr
}

func methodStrCapitalize(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	s, err := selfStr(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	if s == "" {
		v, aerr := allocStr(h, s)
		return pyvalue.Ready(v), aerr
	}
	rs := []rune(strings.ToLower(s))
	rs[0] = []rune(strings.ToUpper(string(rs[0])))[0]
	v, aerr := allocStr(h, string(rs))
	return pyvalue.Ready(v), aerr
}

func methodStrFormat(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError) {
	s, err := selfStr(h, args)
	if err != nil {
		return pyvalue.AttrCallResult{}, err
	}
	rest := args[1:]
	var b strings.Builder
	argIdx := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '{' && i+1 < len(s) && s[i+1] == '}' {
			if argIdx < len(rest) {
				b.WriteString(h.Str(rest[argIdx]))
				argIdx++
			}
			i++
			continue
		}
		b.WriteByte(c)
	}
	v, aerr := allocStr(h, b.String())
	return pyvalue.Ready(v), aerr
}
