package tracker

import (
	"bytes"
	"encoding/gob"
)

// init registers the tracker implementations this package provides so a
// Snapshot's Interpreter.Tracker field (declared as the Tracker
// interface) can round-trip through gob (spec.md §4.5). A host-supplied
// custom Tracker must call gob.Register itself before using
// Snapshot.Dump/Load, the same requirement gob places on any interface
// value.
func init() {
	gob.Register(&Limited{})
	gob.Register(noLimit{})
}

type limitedSnapshot struct {
	MaxMemory       int64
	MaxInstructions int64
	MaxFrames       int64
	UsedMemory      int64
	Instructions    int64
	Frames          int64
}

// GobEncode lets a Snapshot serialize a Limited tracker's live counters
// alongside its configured ceilings despite the counter fields being
// unexported (InstructionsUsed/MemoryUsed/FramesUsed are this package's
// public read API; Gob(En|De)code is its serialization API).
func (t *Limited) GobEncode() ([]byte, error) {
	snap := limitedSnapshot{
		MaxMemory: t.MaxMemory, MaxInstructions: t.MaxInstructions, MaxFrames: t.MaxFrames,
		UsedMemory: t.usedMemory, Instructions: t.instructions, Frames: t.frames,
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (t *Limited) GobDecode(data []byte) error {
	var snap limitedSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return err
	}
	t.MaxMemory, t.MaxInstructions, t.MaxFrames = snap.MaxMemory, snap.MaxInstructions, snap.MaxFrames
	t.usedMemory, t.instructions, t.frames = snap.UsedMemory, snap.Instructions, snap.Frames
	return nil
}
