package iowriter

import (
	"bytes"
	"testing"
)

func TestStdoutWriteFlushesImmediately(t *testing.T) {
	var buf bytes.Buffer
	w := NewStdout(&buf)
	w.StdoutWrite("hello")
	if buf.String() != "hello" {
		t.Fatalf("got %q, want %q", buf.String(), "hello")
	}
}

func TestStdoutPushRune(t *testing.T) {
	var buf bytes.Buffer
	w := NewStdout(&buf)
	w.StdoutPush('x')
	w.StdoutPush('y')
	if buf.String() != "xy" {
		t.Fatalf("got %q, want %q", buf.String(), "xy")
	}
}

func TestCallbackInvokesFn(t *testing.T) {
	var got []string
	c := NewCallback(func(s string) { got = append(got, s) })
	c.StdoutWrite("a")
	c.StdoutPush('b')
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got %v", got)
	}
}

func TestDiscardIsSilentAndSafe(t *testing.T) {
	Discard.StdoutWrite("anything")
	Discard.StdoutPush('z')
}
