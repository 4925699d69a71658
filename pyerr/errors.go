// Package pyerr implements the error-handling design from spec.md §3.5
// and §7: the SimpleException/ExceptionRaise wire types, the three
// RunError kinds (Exc / UncatchableExc / Internal) and the CPython-parity
// message formatting the VM and stdlib raise through. Mirrors the
// teacher's vm.VMError (Type/Message/Context/Frame/Opcode/IP, Unwrap, Is)
// generalized from a single flat PHP error table to spec.md's three-kind
// split.
package pyerr

import (
	"errors"
	"fmt"

	"github.com/wudi/heysb/pyvalue"
)

// ExcType enumerates the builtin exception kinds this implementation's
// representative stdlib surface raises. Not exhaustive of CPython's
// hierarchy — spec.md §1 explicitly leaves "every Python semantic edge
// case" out of scope — but covers every kind spec.md itself names.
type ExcType string

const (
	ValueError        ExcType = "ValueError"
	TypeError         ExcType = "TypeError"
	KeyError          ExcType = "KeyError"
	IndexError        ExcType = "IndexError"
	AttributeError    ExcType = "AttributeError"
	NameError         ExcType = "NameError"
	UnboundLocalError ExcType = "UnboundLocalError"
	StopIteration     ExcType = "StopIteration"
	GeneratorExit     ExcType = "GeneratorExit"
	RuntimeError      ExcType = "RuntimeError"
	RecursionError    ExcType = "RecursionError"
	MemoryError       ExcType = "MemoryError"
	ZeroDivisionError ExcType = "ZeroDivisionError"
	NotImplementedErr ExcType = "NotImplementedError"
	CancelledError    ExcType = "CancelledError"
)

// SimpleException is the wire form of a raised builtin exception
// (spec.md §3.5): no user __init__ was involved, just a kind and a
// formatted message.
type SimpleException struct {
	Kind             ExcType
	Message          string
	Cause            *SimpleException
	Context          *SimpleException
	SuppressContext  bool
	CustomMetadata   map[string]string
}

func (e *SimpleException) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New constructs a SimpleException with a formatted message, mirroring
// CPython's wording for the condition named by format/args.
func New(kind ExcType, format string, args ...interface{}) *SimpleException {
	return &SimpleException{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// StackLocation names one frame of a traceback (spec.md §7): script name,
// line, and function name. hide_caret controls whether the line's caret
// marker is shown (never shown for bare `raise` statements).
type StackLocation struct {
	ScriptName string
	Line       int
	Function   string
	HideCaret  bool
}

// ExceptionRaise is what the VM carries while unwinding (spec.md §3.5).
// OriginalValue preserves a user instance's Value identity across
// raise/except so `isinstance`/`is` behave correctly; for a
// SimpleException-only raise it is the zero Value.
type ExceptionRaise struct {
	Exc           *SimpleException
	Instance      pyvalue.Value // zero Value unless a user-defined exception instance was raised
	Trace         []StackLocation
	OriginalValue pyvalue.Value
}

func (e *ExceptionRaise) Error() string {
	if e.Exc != nil {
		return e.Exc.Error()
	}
	return "exception"
}

// PushFrame appends a traceback entry as the exception unwinds past one
// more caller (spec.md §4.3 exception dispatch step 5).
func (e *ExceptionRaise) PushFrame(loc StackLocation) {
	e.Trace = append(e.Trace, loc)
}

// RunErrorKind discriminates the three failure kinds spec.md §3.5/§7
// describes.
type RunErrorKind byte

const (
	KindExc RunErrorKind = iota
	KindUncatchableExc
	KindInternal
)

// RunError is the internal failure type threaded through every VM and
// builtin call (spec.md §3.5). Only KindExc is ever matched by a Python
// except clause.
type RunError struct {
	Kind     RunErrorKind
	Raise    *ExceptionRaise // KindExc, KindUncatchableExc
	Internal string          // KindInternal
	wrapped  error
}

func (e *RunError) Error() string {
	switch e.Kind {
	case KindExc, KindUncatchableExc:
		return e.Raise.Error()
	default:
		return "internal error: " + e.Internal
	}
}

func (e *RunError) Unwrap() error { return e.wrapped }

// Is supports errors.Is comparisons against a specific ExcType sentinel
// constructed via IsKind, mirroring the teacher's VMError.Is.
func (e *RunError) Is(target error) bool {
	var k *kindSentinel
	if errors.As(target, &k) {
		return e.Kind == KindExc && e.Raise != nil && e.Raise.Exc != nil && e.Raise.Exc.Kind == k.kind
	}
	return false
}

type kindSentinel struct{ kind ExcType }

func (k *kindSentinel) Error() string { return string(k.kind) }

// IsKind returns a sentinel error usable with errors.Is(err, IsKind(...))
// to test whether a RunError is a catchable exception of the given kind
// without unwrapping it manually.
func IsKind(kind ExcType) error { return &kindSentinel{kind: kind} }

// Exc wraps a freshly raised SimpleException as a catchable RunError.
func Exc(kind ExcType, format string, args ...interface{}) *RunError {
	return &RunError{
		Kind:  KindExc,
		Raise: &ExceptionRaise{Exc: New(kind, format, args...)},
	}
}

// ExcInstance wraps a raised user-defined exception instance, preserving
// its identity via OriginalValue (spec.md §3.5).
func ExcInstance(instance pyvalue.Value, kind ExcType, message string) *RunError {
	return &RunError{
		Kind: KindExc,
		Raise: &ExceptionRaise{
			Exc:           &SimpleException{Kind: kind, Message: message},
			Instance:      instance,
			OriginalValue: instance,
		},
	}
}

// Uncatchable wraps kind as a RunError that no except clause may
// intercept (spec.md §3.5: RecursionError, MemoryError, resource-limit
// errors).
func Uncatchable(kind ExcType, format string, args ...interface{}) *RunError {
	return &RunError{
		Kind:  KindUncatchableExc,
		Raise: &ExceptionRaise{Exc: New(kind, format, args...)},
	}
}

// FromResourceError converts a tracker.ResourceError (or any error) into
// the matching uncatchable exception kind (spec.md §4.1/§6.3).
func FromResourceError(err error) *RunError {
	return Uncatchable(MemoryError, "%s", err.Error())
}

// InternalError wraps a programmer-error invariant violation. It is never
// exposed as a Python-catchable value.
func InternalError(msg string) *RunError {
	return &RunError{Kind: KindInternal, Internal: msg}
}

// Catchable reports whether err (as a RunError) can be matched by a
// Python except clause.
func (e *RunError) Catchable() bool { return e.Kind == KindExc }

// Matches reports whether the raised exception's kind is assignable to
// except, using the representative flat hierarchy each ExcType sits in
// (spec.md §6.5: except-matching is parity-sensitive but never affected
// by message-wording divergences).
func (e *RunError) Matches(except ExcType) bool {
	if e.Kind == KindInternal || e.Raise == nil || e.Raise.Exc == nil {
		return false
	}
	return e.Raise.Exc.Kind == except
}
