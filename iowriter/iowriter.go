// Package iowriter implements spec.md §6.4's print-writer contract
// (vm.PrintWriter): concrete sinks for print()'s character stream. The
// teacher buffers script output behind an io.Writer on its
// ExecutionContext (vm/context.go's OutputWriter, pushed/popped for
// ob_start()/ob_get_clean()); these sinks keep that "just an io.Writer
// underneath" shape but drop the output-buffering stack, since this
// runtime's Non-goals (spec.md §1) exclude live host I/O performed by
// the VM beyond the single print() hook.
package iowriter

import (
	"bufio"
	"io"

	"github.com/wudi/heysb/vm"
)

// Stdout adapts an io.Writer (os.Stdout in cmd/heysb's "run" command) to
// vm.PrintWriter. StdoutPush buffers runes a byte at a time rather than
// allocating a string per character, mirroring the teacher's habit of
// writing directly to OutputWriter without an intermediate buffer.
type Stdout struct {
	w   *bufio.Writer
	buf [4]byte
}

// NewStdout wraps w for use as a vm.PrintWriter.
func NewStdout(w io.Writer) *Stdout {
	return &Stdout{w: bufio.NewWriter(w)}
}

func (s *Stdout) StdoutWrite(str string) {
	s.w.WriteString(str)
	s.w.Flush()
}

func (s *Stdout) StdoutPush(r rune) {
	s.w.WriteRune(r)
	s.w.Flush()
}

// Callback adapts a host function to vm.PrintWriter, for embedders that
// want print() output routed through their own logging/UI layer instead
// of a raw file descriptor (e.g. a REPL echoing into a readline pager).
type Callback struct {
	OnWrite func(s string)
}

// NewCallback builds a Callback sink. fn is called synchronously and
// must not reenter the Runner/Snapshot it is backing (spec.md §6.4: the
// print writer "never reenters the VM").
func NewCallback(fn func(s string)) *Callback {
	return &Callback{OnWrite: fn}
}

func (c *Callback) StdoutWrite(s string) { c.OnWrite(s) }
func (c *Callback) StdoutPush(r rune)     { c.OnWrite(string(r)) }

// Discard is a vm.PrintWriter that throws away everything written to it,
// for one-shot Runner.Run invocations (tests, non-interactive batch
// jobs) that don't care about a script's print() output.
var Discard vm.PrintWriter = discardWriter{}

type discardWriter struct{}

func (discardWriter) StdoutWrite(string) {}
func (discardWriter) StdoutPush(rune)    {}
