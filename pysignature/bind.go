// Package pysignature implements the argument-binding algorithm from
// spec.md §4.4: the fast paths (Simple, SimpleWithDefaults), the generic
// path over positional-only / positional-or-keyword / *args /
// keyword-only / **kwargs, the 64-bit bound-parameter bitmap, and the
// cleanup_on_error discipline for partially bound namespaces. Grounded on
// the teacher's CallFrame/pendingCalls argument-passing plumbing
// (vm/context.go), generalized from PHP's simpler by-position-or-name
// grammar to Python's full grammar.
package pysignature

import (
	"github.com/wudi/heysb/heap"
	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pyvalue"
	"github.com/wudi/heysb/registry"
)

// KwArg is a single caller-supplied keyword argument.
type KwArg struct {
	Name  string
	Value pyvalue.Value
}

// Bind maps positional and keyword call-site arguments onto sig's
// parameter slots, returning a namespace vector sized sig's declared
// slot count (callers with cell/free variables append those afterward;
// Bind only knows about the parameter-declared prefix of the layout
// described in spec.md §4.4). On error, every already-moved Value
// (across positional, *args and **kwargs) is dropped via h before
// returning, matching spec.md §4.4's cleanup_on_error discipline.
func Bind(h *heap.Heap, sig *registry.Signature, pos []pyvalue.Value, kwargs []KwArg) ([]pyvalue.Value, error) {
	switch sig.Strategy {
	case registry.BindSimple:
		return bindSimple(h, sig, pos, kwargs)
	case registry.BindSimpleWithDefaults:
		return bindSimpleWithDefaults(h, sig, pos, kwargs)
	default:
		return bindGeneric(h, sig, pos, kwargs)
	}
}

// bindSimple: no defaults, no *args/**kwargs, no kw-only, no pos-only —
// every parameter is positional-or-keyword and required. The call must
// supply exactly len(sig.Params) values with no keywords, or we fall
// back to the generic path's error formatting (a mismatched call on a
// Simple signature is still a valid Python call shape, e.g. one keyword
// argument supplied by name; only the success path needs to be fast).
func bindSimple(h *heap.Heap, sig *registry.Signature, pos []pyvalue.Value, kwargs []KwArg) ([]pyvalue.Value, error) {
	if len(kwargs) != 0 || len(pos) != len(sig.Params) {
		return bindGeneric(h, sig, pos, kwargs)
	}
	ns := make([]pyvalue.Value, len(sig.Params))
	copy(ns, pos)
	return ns, nil
}

// bindSimpleWithDefaults additionally honors inline keyword arguments by
// name without the generic path's bitmap bookkeeping, since every
// parameter here is positional-or-keyword (no pos-only/kw-only to
// disambiguate).
func bindSimpleWithDefaults(h *heap.Heap, sig *registry.Signature, pos []pyvalue.Value, kwargs []KwArg) ([]pyvalue.Value, error) {
	if len(pos) > len(sig.Params) {
		return bindGeneric(h, sig, pos, kwargs) // lets the generic path format "too many positional arguments"
	}
	ns := make([]pyvalue.Value, len(sig.Params))
	bound := make([]bool, len(sig.Params))
	for i, v := range pos {
		ns[i] = v
		bound[i] = true
	}
	for _, kw := range kwargs {
		slot, ok := sig.NameToSlot[kw.Name]
		if !ok || bound[slot] {
			return bindGeneric(h, sig, pos, kwargs) // unexpected-keyword or duplicate-bind error path
		}
		ns[slot] = kw.Value
		bound[slot] = true
	}
	for i, p := range sig.Params {
		if bound[i] {
			continue
		}
		if !p.HasDefault {
			dropAll(h, ns, bound)
			return nil, pyerr.Exc(pyerr.TypeError, "%s() missing required argument: %q", "<function>", p.Name)
		}
		ns[i] = h.CloneValue(sig.Defaults[p.DefaultIndex])
		bound[i] = true
	}
	return ns, nil
}

// bindGeneric is the full algorithm from spec.md §4.4.
func bindGeneric(h *heap.Heap, sig *registry.Signature, pos []pyvalue.Value, kwargs []KwArg) ([]pyvalue.Value, error) {
	if len(sig.Params) > registry.MaxBindableParams {
		return nil, pyerr.InternalError("signature exceeds MaxBindableParams")
	}

	ns := make([]pyvalue.Value, len(sig.Params))
	for i := range ns {
		ns[i] = pyvalue.Undefined
	}
	var bound uint64

	var varArgsItems []pyvalue.Value
	var varKwargs []KwArg

	// Positional-only, then positional-or-keyword: consume call-site
	// positionals in declaration order.
	posIdx := 0
	for i, p := range sig.Params {
		if p.Kind != registry.ParamPositionalOnly && p.Kind != registry.ParamPositionalOrKeyword {
			continue
		}
		if posIdx >= len(pos) {
			break
		}
		ns[i] = pos[posIdx]
		bound |= 1 << uint(i)
		posIdx++
	}

	// Excess positionals: *args if present, else a "too many positional
	// arguments" error formatted with the declared maximum and the
	// keyword-only count, matching CPython (spec.md §4.4).
	if posIdx < len(pos) {
		if sig.HasVarArgs {
			varArgsItems = append(varArgsItems, pos[posIdx:]...)
		} else {
			dropBound(h, ns, bound)
			dropSlice(h, varArgsItems)
			maxPos := sig.NumPositionalOnly + sig.NumPositionalOrKeyword
			if sig.NumKeywordOnly > 0 {
				return nil, pyerr.Exc(pyerr.TypeError,
					"<function>() takes from %d to %d positional arguments but %d were given (%d keyword-only argument(s) also given)",
					maxPos, maxPos, len(pos), sig.NumKeywordOnly)
			}
			return nil, pyerr.Exc(pyerr.TypeError,
				"<function>() takes %d positional argument(s) but %d were given", maxPos, len(pos))
		}
	}

	// Keyword arguments.
	for _, kw := range kwargs {
		slot, ok := sig.NameToSlot[kw.Name]
		if ok && sig.Params[slot].Kind == registry.ParamPositionalOnly {
			ok = false // positional-only rejects keyword binding
		}
		if ok && (sig.Params[slot].Kind == registry.ParamPositionalOrKeyword || sig.Params[slot].Kind == registry.ParamKeywordOnly) {
			if bound&(1<<uint(slot)) != 0 {
				dropBound(h, ns, bound)
				dropSlice(h, varArgsItems)
				dropKw(h, varKwargs)
				h.DropValue(kw.Value)
				return nil, pyerr.Exc(pyerr.TypeError, "<function>() got multiple values for argument %q", kw.Name)
			}
			ns[slot] = kw.Value
			bound |= 1 << uint(slot)
			continue
		}
		if sig.HasVarKwargs {
			varKwargs = append(varKwargs, kw)
			continue
		}
		dropBound(h, ns, bound)
		dropSlice(h, varArgsItems)
		dropKw(h, varKwargs)
		h.DropValue(kw.Value)
		return nil, pyerr.Exc(pyerr.TypeError, "<function>() got an unexpected keyword argument %q", kw.Name)
	}

	// Apply defaults in declared order: positional, positional-or-keyword,
	// keyword-only.
	var missing []string
	for i, p := range sig.Params {
		if bound&(1<<uint(i)) != 0 {
			continue
		}
		switch p.Kind {
		case registry.ParamVarArgs, registry.ParamVarKwargs:
			continue
		}
		if p.HasDefault {
			ns[i] = h.CloneValue(sig.Defaults[p.DefaultIndex])
			bound |= 1 << uint(i)
			continue
		}
		missing = append(missing, p.Name)
	}
	if len(missing) > 0 {
		dropBound(h, ns, bound)
		dropSlice(h, varArgsItems)
		dropKw(h, varKwargs)
		return nil, missingArgsError(missing)
	}

	if sig.HasVarArgs {
		tupleValues := make([]pyvalue.Value, len(varArgsItems))
		copy(tupleValues, varArgsItems)
		id, err := h.Allocate(heap.NewTuple(tupleValues))
		if err != nil {
			dropSlice(h, varArgsItems)
			dropKw(h, varKwargs)
			dropBound(h, ns, bound)
			return nil, pyerr.FromResourceError(err)
		}
		ns[sig.VarArgsSlot] = pyvalue.Ref(id)
	}
	if sig.HasVarKwargs {
		d := heap.NewDict()
		id, err := h.Allocate(d)
		if err != nil {
			dropKw(h, varKwargs)
			dropBound(h, ns, bound)
			return nil, pyerr.FromResourceError(err)
		}
		for i, kw := range varKwargs {
			keyID, err := h.Allocate(heap.NewStr(kw.Name))
			if err != nil {
				dropKw(h, varKwargs[i:]) // [0, i) already moved into d, owned by id
				dropBound(h, ns, bound)
				h.DecRef(id)
				return nil, pyerr.FromResourceError(err)
			}
			// d.Set always takes ownership of both operands; keyID is a
			// freshly allocated Str, so hashing it can never fail here.
			if _, err := d.Set(h, id, pyvalue.Ref(keyID), kw.Value); err != nil {
				dropBound(h, ns, bound)
				h.DecRef(id)
				return nil, pyerr.InternalError(err.Error())
			}
		}
		ns[sig.VarKwargsSlot] = pyvalue.Ref(id)
	}

	return ns, nil
}

func missingArgsError(missing []string) *pyerr.RunError {
	if len(missing) == 1 {
		return pyerr.Exc(pyerr.TypeError, "<function>() missing 1 required argument: %q", missing[0])
	}
	return pyerr.Exc(pyerr.TypeError, "<function>() missing %d required arguments: %v", len(missing), missing)
}

func dropBound(h *heap.Heap, ns []pyvalue.Value, bound uint64) {
	for i, v := range ns {
		if bound&(1<<uint(i)) != 0 {
			h.DropValue(v)
		}
	}
}

func dropSlice(h *heap.Heap, vs []pyvalue.Value) { h.DropValues(vs) }

func dropKw(h *heap.Heap, kws []KwArg) {
	for _, kw := range kws {
		h.DropValue(kw.Value)
	}
}
