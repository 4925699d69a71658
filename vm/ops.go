package vm

import (
	"github.com/wudi/heysb/frame"
	"github.com/wudi/heysb/heap"
	"github.com/wudi/heysb/opcodes"
	"github.com/wudi/heysb/pyerr"
	"github.com/wudi/heysb/pyvalue"
)

func numericBinop(op opcodes.Opcode, a, b pyvalue.Value) (pyvalue.Value, *pyerr.RunError) {
	if a.Kind == pyvalue.KindInt && b.Kind == pyvalue.KindInt {
		switch op {
		case opcodes.OpAdd:
			return pyvalue.Int(a.I + b.I), nil
		case opcodes.OpSub:
			return pyvalue.Int(a.I - b.I), nil
		case opcodes.OpMul:
			return pyvalue.Int(a.I * b.I), nil
		case opcodes.OpFloorDiv:
			if b.I == 0 {
				return pyvalue.Value{}, pyerr.Exc(pyerr.ZeroDivisionError, "integer division or modulo by zero")
			}
			return pyvalue.Int(floorDivInt(a.I, b.I)), nil
		case opcodes.OpMod:
			if b.I == 0 {
				return pyvalue.Value{}, pyerr.Exc(pyerr.ZeroDivisionError, "integer division or modulo by zero")
			}
			return pyvalue.Int(pyMod(a.I, b.I)), nil
		case opcodes.OpDiv:
			if b.I == 0 {
				return pyvalue.Value{}, pyerr.Exc(pyerr.ZeroDivisionError, "division by zero")
			}
			return pyvalue.Float(float64(a.I) / float64(b.I)), nil
		case opcodes.OpPow:
			return pyvalue.Int(intPow(a.I, b.I)), nil
		}
	}
	af, aok := toFloatOperand(a)
	bf, bok := toFloatOperand(b)
	if !aok || !bok {
		return pyvalue.Value{}, pyerr.Exc(pyerr.TypeError, "unsupported operand type(s)")
	}
	switch op {
	case opcodes.OpAdd:
		return pyvalue.Float(af + bf), nil
	case opcodes.OpSub:
		return pyvalue.Float(af - bf), nil
	case opcodes.OpMul:
		return pyvalue.Float(af * bf), nil
	case opcodes.OpDiv:
		if bf == 0 {
			return pyvalue.Value{}, pyerr.Exc(pyerr.ZeroDivisionError, "float division by zero")
		}
		return pyvalue.Float(af / bf), nil
	case opcodes.OpFloorDiv:
		if bf == 0 {
			return pyvalue.Value{}, pyerr.Exc(pyerr.ZeroDivisionError, "float floor division by zero")
		}
		return pyvalue.Float(floorDivFloat(af, bf)), nil
	case opcodes.OpMod:
		if bf == 0 {
			return pyvalue.Value{}, pyerr.Exc(pyerr.ZeroDivisionError, "float modulo")
		}
		return pyvalue.Float(af - floorDivFloat(af, bf)*bf), nil
	case opcodes.OpPow:
		return pyvalue.Float(floatPow(af, bf)), nil
	}
	return pyvalue.Value{}, pyerr.InternalError("unhandled numeric op")
}

func toFloatOperand(v pyvalue.Value) (float64, bool) {
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

func floorDivInt(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func pyMod(a, b int64) int64 {
	m := a % b
	if m != 0 && ((m < 0) != (b < 0)) {
		m += b
	}
	return m
}

func intPow(base, exp int64) int64 {
	if exp < 0 {
		return 0
	}
	result := int64(1)
	for i := int64(0); i < exp; i++ {
		result *= base
	}
	return result
}

func floorDivFloat(a, b float64) float64 {
	q := a / b
	return float64(int64(q)) - boolToFloat(q < 0 && float64(int64(q)) != q)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func floatPow(base, exp float64) float64 {
	result := 1.0
	neg := exp < 0
	n := exp
	if neg {
		n = -n
	}
	for i := 0; i < int(n); i++ {
		result *= base
	}
	if neg {
		return 1 / result
	}
	return result
}

func (vm *Interpreter) execArith(op opcodes.Opcode) (StepOutcome, bool) {
	b := vm.pop()
	a := vm.pop()
	// Ref-valued operands delegate to concatenation/sequence-repeat
	// semantics handled by execArithRef; immediates go through the
	// numeric fast path above.
	if a.Kind == pyvalue.KindRef || b.Kind == pyvalue.KindRef {
		return vm.execArithRef(op, a, b)
	}
	v, err := numericBinop(op, a, b)
	if err != nil {
		return vm.raise(err)
	}
	vm.push(v)
	return StepOutcome{}, false
}

// execArithRef covers the handful of container-level arithmetic
// operators spec.md names explicitly: str/list/tuple concatenation via
// OpAdd, and string formatting is left to str.format/%, not an opcode.
func (vm *Interpreter) execArithRef(op opcodes.Opcode, a, b pyvalue.Value) (StepOutcome, bool) {
	defer vm.Heap.DropValue(a)
	defer vm.Heap.DropValue(b)
	if op != opcodes.OpAdd {
		return vm.raise(pyerr.Exc(pyerr.TypeError, "unsupported operand type(s)"))
	}
	as, aIsStr := vm.Heap.Get(derefOrZero(a)).(*heap.Str)
	bs, bIsStr := vm.Heap.Get(derefOrZero(b)).(*heap.Str)
	if a.Kind == pyvalue.KindRef && b.Kind == pyvalue.KindRef && aIsStr && bIsStr {
		id, err := vm.Heap.Allocate(heap.NewStr(as.S + bs.S))
		if err != nil {
			return vm.raise(pyerr.FromResourceError(err))
		}
		vm.push(pyvalue.Ref(id))
		return StepOutcome{}, false
	}
	al, aIsList := heapListOf(vm.Heap, a)
	bl, bIsList := heapListOf(vm.Heap, b)
	if aIsList && bIsList {
		items := make([]pyvalue.Value, 0, len(al)+len(bl))
		for _, v := range al {
			items = append(items, vm.Heap.CloneValue(v))
		}
		for _, v := range bl {
			items = append(items, vm.Heap.CloneValue(v))
		}
		id, err := vm.Heap.Allocate(heap.NewList(items))
		if err != nil {
			return vm.raise(pyerr.FromResourceError(err))
		}
		vm.push(pyvalue.Ref(id))
		return StepOutcome{}, false
	}
	return vm.raise(pyerr.Exc(pyerr.TypeError, "unsupported operand type(s) for +"))
}

func derefOrZero(v pyvalue.Value) pyvalue.HeapId {
	if v.Kind == pyvalue.KindRef {
		return v.Ref
	}
	return 0
}

func heapListOf(h *heap.Heap, v pyvalue.Value) ([]pyvalue.Value, bool) {
	if v.Kind != pyvalue.KindRef {
		return nil, false
	}
	l, ok := h.Get(v.Ref).(*heap.List)
	if !ok {
		return nil, false
	}
	return l.Items, true
}

func (vm *Interpreter) execUnary(op opcodes.Opcode) (StepOutcome, bool) {
	a := vm.pop()
	switch op {
	case opcodes.OpNot:
		b := vm.Heap.Bool(a)
		vm.Heap.DropValue(a)
		vm.push(pyvalue.Bool(!b))
		return StepOutcome{}, false
	case opcodes.OpNeg:
		switch a.Kind {
		case pyvalue.KindInt:
			vm.push(pyvalue.Int(-a.I))
		case pyvalue.KindFloat:
			vm.push(pyvalue.Float(-a.F))
		default:
			vm.Heap.DropValue(a)
			return vm.raise(pyerr.Exc(pyerr.TypeError, "bad operand type for unary -"))
		}
		return StepOutcome{}, false
	case opcodes.OpPos:
		vm.push(a)
		return StepOutcome{}, false
	case opcodes.OpInvert:
		if a.Kind == pyvalue.KindInt {
			vm.push(pyvalue.Int(^a.I))
			return StepOutcome{}, false
		}
		vm.Heap.DropValue(a)
		return vm.raise(pyerr.Exc(pyerr.TypeError, "bad operand type for unary ~"))
	}
	return StepOutcome{Reason: StopRaised, Err: pyerr.InternalError("unhandled unary op")}, true
}

func (vm *Interpreter) execCompare(op opcodes.Opcode) (StepOutcome, bool) {
	b := vm.pop()
	a := vm.pop()
	switch op {
	case opcodes.OpIs:
		vm.push(pyvalue.Bool(sameIdentity(a, b)))
		vm.Heap.DropValue(a)
		vm.Heap.DropValue(b)
		return StepOutcome{}, false
	case opcodes.OpIsNot:
		vm.push(pyvalue.Bool(!sameIdentity(a, b)))
		vm.Heap.DropValue(a)
		vm.Heap.DropValue(b)
		return StepOutcome{}, false
	case opcodes.OpIn, opcodes.OpNotIn:
		contains := vm.containerContains(b, a)
		vm.Heap.DropValue(a)
		vm.Heap.DropValue(b)
		if op == opcodes.OpNotIn {
			contains = !contains
		}
		vm.push(pyvalue.Bool(contains))
		return StepOutcome{}, false
	}
	eq, ok := vm.valuesEqual(a, b)
	if op == opcodes.OpEq || op == opcodes.OpNe {
		vm.Heap.DropValue(a)
		vm.Heap.DropValue(b)
		if op == opcodes.OpNe {
			eq = !eq
		}
		vm.push(pyvalue.Bool(eq))
		return StepOutcome{}, false
	}
	c, ok2 := vm.compareOrdered(a, b)
	vm.Heap.DropValue(a)
	vm.Heap.DropValue(b)
	if !ok || !ok2 {
		return vm.raise(pyerr.Exc(pyerr.TypeError, "comparison not supported between instances"))
	}
	var result bool
	switch op {
	case opcodes.OpLt:
		result = c < 0
	case opcodes.OpLe:
		result = c <= 0
	case opcodes.OpGt:
		result = c > 0
	case opcodes.OpGe:
		result = c >= 0
	}
	vm.push(pyvalue.Bool(result))
	return StepOutcome{}, false
}

func sameIdentity(a, b pyvalue.Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == pyvalue.KindRef {
		return a.Ref == b.Ref
	}
	eq, _ := a.Equal(b)
	return eq
}

func (vm *Interpreter) valuesEqual(a, b pyvalue.Value) (bool, bool) {
	if eq, ok := a.Equal(b); ok {
		return eq, true
	}
	as, aok := stringOfValue(vm.Heap, a)
	bs, bok := stringOfValue(vm.Heap, b)
	if aok && bok {
		return as == bs, true
	}
	return false, false
}

func stringOfValue(h *heap.Heap, v pyvalue.Value) (string, bool) {
	if v.Kind == pyvalue.KindRef {
		if s, ok := h.Get(v.Ref).(*heap.Str); ok {
			return s.S, true
		}
	}
	return "", false
}

func (vm *Interpreter) compareOrdered(a, b pyvalue.Value) (int, bool) {
	af, aok := toFloatOperand(a)
	bf, bok := toFloatOperand(b)
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
	as, aok2 := stringOfValue(vm.Heap, a)
	bs, bok2 := stringOfValue(vm.Heap, b)
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

func (vm *Interpreter) containerContains(container, item pyvalue.Value) bool {
	if container.Kind != pyvalue.KindRef {
		return false
	}
	switch c := vm.Heap.Get(container.Ref).(type) {
	case *heap.List:
		for _, v := range c.Items {
			if eq, _ := vm.valuesEqual(v, item); eq {
				return true
			}
		}
	case *heap.Tuple:
		for _, v := range c.Items {
			if eq, _ := vm.valuesEqual(v, item); eq {
				return true
			}
		}
	case *heap.PySet:
		return c.Contains(vm.Heap, item)
	case *heap.Dict:
		_, ok := c.Get(vm.Heap, item)
		return ok
	case *heap.Str:
		if s, ok := stringOfValue(vm.Heap, item); ok {
			return containsSubstr(c.S, s)
		}
	}
	return false
}

func containsSubstr(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func (vm *Interpreter) execBuildContainer(instr opcodes.Instruction) (StepOutcome, bool) {
	n := int(instr.Arg)
	switch instr.Op {
	case opcodes.OpBuildList:
		items := vm.popN(n)
		id, err := vm.Heap.Allocate(heap.NewList(items))
		if err != nil {
			return vm.raise(pyerr.FromResourceError(err))
		}
		vm.push(pyvalue.Ref(id))
	case opcodes.OpBuildTuple:
		items := vm.popN(n)
		id, err := vm.Heap.Allocate(heap.NewTuple(items))
		if err != nil {
			return vm.raise(pyerr.FromResourceError(err))
		}
		vm.push(pyvalue.Ref(id))
	case opcodes.OpBuildSet:
		items := vm.popN(n)
		s := heap.NewSet(false)
		id, err := vm.Heap.Allocate(s)
		if err != nil {
			return vm.raise(pyerr.FromResourceError(err))
		}
		for _, it := range items {
			if _, aerr := s.Add(vm.Heap, id, it); aerr != nil {
				return vm.raise(pyerr.Exc(pyerr.TypeError, "%s", aerr.Error()))
			}
		}
		vm.push(pyvalue.Ref(id))
	case opcodes.OpBuildDict:
		kvs := vm.popN(2 * n)
		d := heap.NewDict()
		id, err := vm.Heap.Allocate(d)
		if err != nil {
			return vm.raise(pyerr.FromResourceError(err))
		}
		for i := 0; i < n; i++ {
			k, v := kvs[2*i], kvs[2*i+1]
			if _, serr := d.Set(vm.Heap, id, k, v); serr != nil {
				return vm.raise(pyerr.Exc(pyerr.TypeError, "%s", serr.Error()))
			}
		}
		vm.push(pyvalue.Ref(id))
	}
	return StepOutcome{}, false
}

func (vm *Interpreter) execSubscr() (StepOutcome, bool) {
	key := vm.pop()
	container := vm.pop()
	defer vm.Heap.DropValue(container)
	defer vm.Heap.DropValue(key)
	if container.Kind != pyvalue.KindRef {
		return vm.raise(pyerr.Exc(pyerr.TypeError, "%q object is not subscriptable", vm.Heap.TypeName(container)))
	}
	switch c := vm.Heap.Get(container.Ref).(type) {
	case *heap.List:
		idx, ok := indexFor(key, len(c.Items))
		if !ok {
			return vm.raise(pyerr.Exc(pyerr.IndexError, "list index out of range"))
		}
		vm.push(vm.Heap.CloneValue(c.Items[idx]))
	case *heap.Tuple:
		idx, ok := indexFor(key, len(c.Items))
		if !ok {
			return vm.raise(pyerr.Exc(pyerr.IndexError, "tuple index out of range"))
		}
		vm.push(vm.Heap.CloneValue(c.Items[idx]))
	case *heap.Dict:
		v, ok := c.Get(vm.Heap, key)
		if !ok {
			return vm.raise(pyerr.Exc(pyerr.KeyError, "%s", vm.Heap.Repr(key)))
		}
		vm.push(vm.Heap.CloneValue(v))
	case *heap.Str:
		idx, ok := indexFor(key, len([]rune(c.S)))
		if !ok {
			return vm.raise(pyerr.Exc(pyerr.IndexError, "string index out of range"))
		}
		id, err := vm.Heap.Allocate(heap.NewStr(string([]rune(c.S)[idx])))
		if err != nil {
			return vm.raise(pyerr.FromResourceError(err))
		}
		vm.push(pyvalue.Ref(id))
	default:
		return vm.raise(pyerr.Exc(pyerr.TypeError, "%q object is not subscriptable", vm.Heap.TypeName(container)))
	}
	return StepOutcome{}, false
}

func indexFor(key pyvalue.Value, n int) (int, bool) {
	if key.Kind != pyvalue.KindInt {
		return 0, false
	}
	i := int(key.I)
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, false
	}
	return i, true
}

func (vm *Interpreter) execStoreSubscr() (StepOutcome, bool) {
	val := vm.pop()
	key := vm.pop()
	container := vm.pop()
	defer vm.Heap.DropValue(container)
	if container.Kind != pyvalue.KindRef {
		vm.Heap.DropValue(key)
		vm.Heap.DropValue(val)
		return vm.raise(pyerr.Exc(pyerr.TypeError, "%q object does not support item assignment", vm.Heap.TypeName(container)))
	}
	switch c := vm.Heap.Get(container.Ref).(type) {
	case *heap.List:
		idx, ok := indexFor(key, len(c.Items))
		vm.Heap.DropValue(key)
		if !ok {
			vm.Heap.DropValue(val)
			return vm.raise(pyerr.Exc(pyerr.IndexError, "list assignment index out of range"))
		}
		old := c.Items[idx]
		c.Items[idx] = val
		vm.Heap.DropValue(old)
		if val.Kind == pyvalue.KindRef {
			vm.Heap.MarkPotentialCycle(container.Ref)
		}
	case *heap.Dict:
		if _, err := c.Set(vm.Heap, container.Ref, key, val); err != nil {
			return vm.raise(pyerr.Exc(pyerr.TypeError, "%s", err.Error()))
		}
	default:
		vm.Heap.DropValue(key)
		vm.Heap.DropValue(val)
		return vm.raise(pyerr.Exc(pyerr.TypeError, "%q object does not support item assignment", vm.Heap.TypeName(container)))
	}
	return StepOutcome{}, false
}

func (vm *Interpreter) execGetIter() (StepOutcome, bool) {
	v := vm.pop()
	if v.Kind != pyvalue.KindRef {
		vm.Heap.DropValue(v)
		return vm.raise(pyerr.Exc(pyerr.TypeError, "%q object is not iterable", vm.Heap.TypeName(v)))
	}
	var kind heap.IterKind
	switch vm.Heap.Get(v.Ref).(type) {
	case *heap.List:
		kind = heap.IterList
	case *heap.Tuple:
		kind = heap.IterTuple
	case *heap.Range:
		kind = heap.IterRange
	case *heap.PySet:
		kind = heap.IterSetItems
	case *heap.Iter:
		vm.push(v)
		return StepOutcome{}, false
	case *heap.Str:
		s := vm.Heap.Get(v.Ref).(*heap.Str).S
		vm.Heap.DropValue(v)
		id, err := vm.Heap.Allocate(heap.NewStrIter(s))
		if err != nil {
			return vm.raise(pyerr.FromResourceError(err))
		}
		vm.push(pyvalue.Ref(id))
		return StepOutcome{}, false
	default:
		vm.Heap.DropValue(v)
		return vm.raise(pyerr.Exc(pyerr.TypeError, "object is not iterable"))
	}
	id, err := vm.Heap.Allocate(heap.NewIter(kind, v))
	if err != nil {
		return vm.raise(pyerr.FromResourceError(err))
	}
	vm.push(pyvalue.Ref(id))
	return StepOutcome{}, false
}

// execForIter expects the iterator Ref on top of the stack; on a
// successful __next__ it pushes the produced value back on top (leaving
// the iterator beneath it, per the teacher's "for" loop convention of
// keeping the driving value on the stack across iterations); on
// StopIteration it pops the iterator and jumps to instr.Arg.
func (vm *Interpreter) execForIter(fr *frame.Frame, instr opcodes.Instruction) (StepOutcome, bool) {
	top := vm.peek()
	it, ok := vm.Heap.Get(top.Ref).(*heap.Iter)
	if !ok {
		return vm.raise(pyerr.InternalError("OpForIter target is not an iterator"))
	}
	v, err := it.Next(vm.Heap)
	if err != nil {
		re := err.(*pyerr.RunError)
		if re.Matches(pyerr.StopIteration) {
			vm.Heap.DropValue(vm.pop())
			fr.IP = int(instr.Arg)
			return StepOutcome{}, false
		}
		return vm.raise(re)
	}
	vm.push(v)
	return StepOutcome{}, false
}
