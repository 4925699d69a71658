package pyvalue

// AttrCallResultKind discriminates the deferred-call protocol described in
// spec.md §4.2. Builtins and stdlib callables cannot invoke user Python
// directly (they lack frame-management rights); instead they return one
// of these variants and the VM decides what to do with it.
type AttrCallResultKind byte

const (
	ACValue AttrCallResultKind = iota
	ACCallFunction
	ACReduceCall
	ACMapCall
	ACFilterCall
	ACFilterFalseCall
	ACTakeWhileCall
	ACDropWhileCall
	ACGroupByCall
	ACTextwrapIndentCall
	ACReSubCall
	ACDescriptorGet
	ACPropertyCall
	ACObjectNew
	ACExternalCall
	ACOsCall
)

// AttrCallResult is the value returned by PyTrait.GetAttr / CallAttr and by
// every builtin and stdlib function body.
type AttrCallResult struct {
	Kind AttrCallResultKind

	// ACValue
	Value Value

	// ACCallFunction, ACDescriptorGet, ACPropertyCall, ACObjectNew
	Callable Value
	Args     []Value
	Kwargs   []KwArg

	// ACReduceCall
	ReduceFn  Value
	ReduceAcc Value
	Items     []Value

	// ACMapCall / ACFilterCall / ACFilterFalseCall / ACTakeWhileCall /
	// ACDropWhileCall / ACGroupByCall share the Callable+Items shape;
	// GroupKey additionally carries the grouping key function when it
	// differs from Callable.
	GroupKey Value

	// ACTextwrapIndentCall / ACReSubCall
	Predicate Value
	Text      string

	// ACExternalCall / ACOsCall
	FunctionName string
}

// KwArg is a single keyword argument carried across the deferred-call
// boundary; Name is an interned string id resolved by the caller's table.
type KwArg struct {
	Name  string
	Value Value
}

// Ready wraps a plain Value as an immediately-available AttrCallResult —
// the overwhelmingly common case for builtins that don't need to suspend
// or call back into user code.
func Ready(v Value) AttrCallResult { return AttrCallResult{Kind: ACValue, Value: v} }

// CallFunction asks the VM to call fn(args, kwargs...) and feed the result
// back to whatever continuation the caller is in.
func CallFunction(fn Value, args []Value, kwargs ...KwArg) AttrCallResult {
	return AttrCallResult{Kind: ACCallFunction, Callable: fn, Args: args, Kwargs: kwargs}
}

// ExternalCall asks the VM to suspend with RunProgress.FunctionCall.
func ExternalCall(name string, args []Value, kwargs ...KwArg) AttrCallResult {
	return AttrCallResult{Kind: ACExternalCall, FunctionName: name, Args: args, Kwargs: kwargs}
}

// OsCall asks the VM to suspend with RunProgress.OsCall.
func OsCall(name string, args []Value, kwargs ...KwArg) AttrCallResult {
	return AttrCallResult{Kind: ACOsCall, FunctionName: name, Args: args, Kwargs: kwargs}
}

// IsValue reports whether r is immediately resolvable without VM
// involvement — the fast path every call site should check first.
func (r AttrCallResult) IsValue() bool { return r.Kind == ACValue }
