// Package stdlib implements the representative builtin/stdlib surface
// spec.md §1 and §2 describe as "tables of builtin callables that return
// values or AttrCallResult variants": the core builtins (len, str, print,
// range, ...), built-in type methods (list.append, dict.get, str.upper,
// ...) and the handful of functional combinators (map, filter, reduce)
// whose bodies are nothing but the deferred-call protocol. Grounded on
// the teacher's runtime.Bootstrap/GlobalRegistry pattern (runtime/runtime.go):
// a sync.Once-guarded table built once per process and shared immutably.
package stdlib

import (
	"sync"

	"github.com/wudi/heysb/heap"
	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pyvalue"
)

// Func is one builtin callable's Go body. kwargs names are already
// resolved to plain strings by the caller (package vm), matching
// pyvalue.KwArg's shape.
type Func func(h *heap.Heap, args []pyvalue.Value, kwargs []pyvalue.KwArg) (pyvalue.AttrCallResult, *pyerr.RunError)

var (
	bootstrapOnce sync.Once

	// Builtins is the top-level name -> callable table (len, print,
	// range, isinstance, ...), mirroring the teacher's GlobalRegistry.
	Builtins map[string]Func

	// Methods is keyed by "typename.methodname" (list.append, str.upper,
	// dict.get, ...), consulted by the VM's OpLoadMethod/OpCallMethod
	// handling after a heap payload's own CallAttr reports not-found.
	Methods map[string]Func
)

// Bootstrap populates Builtins and Methods exactly once, matching the
// teacher's Bootstrap/sync.Once idiom.
func Bootstrap() {
	bootstrapOnce.Do(func() {
		Builtins = make(map[string]Func)
		Methods = make(map[string]Func)
		registerCoreBuiltins()
		registerNumericBuiltins()
		registerContainerMethods()
		registerStringMethods()
		registerFunctionalBuiltins()
		registerAsyncioBuiltins()
	})
}

func register(name string, fn Func) { Builtins[name] = fn }

func registerMethod(typeName, methodName string, fn Func) {
	Methods[typeName+"."+methodName] = fn
}

// Lookup resolves a method call against h.TypeName(self)+"."+method,
// bootstrapping the table on first use so callers never have to
// remember to call Bootstrap themselves.
func LookupMethod(typeName, method string) (Func, bool) {
	Bootstrap()
	fn, ok := Methods[typeName+"."+method]
	return fn, ok
}

func LookupBuiltin(name string) (Func, bool) {
	Bootstrap()
	fn, ok := Builtins[name]
	return fn, ok
}
