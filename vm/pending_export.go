package vm

import (
	"github.com/wudi/heysb/frame"
	"github.com/wudi/heysb/pyvalue"
)

// PendingEntry is one pendingByFrame row flattened into a pointer-free,
// gob-friendly shape: both the map key and pendingWork.returnFrame name a
// slot in vm.Frames by index rather than by *frame.Frame pointer, since a
// round-tripped Snapshot rebuilds the frame stack from scratch and a raw
// pointer would not survive that (spec.md §4.5's "reloads reconstruct
// every field").
type PendingEntry struct {
	FrameIndex       int
	ReturnFrameIndex int // -1 when the original pendingWork.returnFrame was nil

	Kind     pendingKind
	Callable pyvalue.Value
	Items    []pyvalue.Value
	Idx      int
	Results  []pyvalue.Value
	Acc      pyvalue.Value
	Gather   pyvalue.Value
}

// ExportPending flattens pendingByFrame for serialization. frameIndex
// looks up a live *frame.Frame's position in vm.Frames; any frame not
// found there (which should not happen, since every keyed frame is
// either live or was already dropped along with its pendingWork) is
// skipped rather than panicking, since a Snapshot should degrade instead
// of failing to dump.
func (vm *Interpreter) ExportPending() []PendingEntry {
	index := make(map[*frame.Frame]int, len(vm.Frames))
	for i, fr := range vm.Frames {
		index[fr] = i
	}
	out := make([]PendingEntry, 0, len(vm.pendingByFrame))
	for fr, w := range vm.pendingByFrame {
		fi, ok := index[fr]
		if !ok {
			continue
		}
		ri := -1
		if w.returnFrame != nil {
			if r, ok := index[w.returnFrame]; ok {
				ri = r
			}
		}
		out = append(out, PendingEntry{
			FrameIndex:       fi,
			ReturnFrameIndex: ri,
			Kind:             w.kind,
			Callable:         w.callable,
			Items:            w.items,
			Idx:              w.idx,
			Results:          w.results,
			Acc:              w.acc,
			Gather:           w.gatherFuture,
		})
	}
	return out
}

// ImportPending rebuilds pendingByFrame from a Snapshot's flattened form
// after vm.Frames has already been restored.
func (vm *Interpreter) ImportPending(entries []PendingEntry) {
	vm.pendingByFrame = make(map[*frame.Frame]*pendingWork, len(entries))
	for _, e := range entries {
		if e.FrameIndex < 0 || e.FrameIndex >= len(vm.Frames) {
			continue
		}
		w := &pendingWork{
			kind:         e.Kind,
			callable:     e.Callable,
			items:        e.Items,
			idx:          e.Idx,
			results:      e.Results,
			acc:          e.Acc,
			gatherFuture: e.Gather,
		}
		if e.ReturnFrameIndex >= 0 && e.ReturnFrameIndex < len(vm.Frames) {
			w.returnFrame = vm.Frames[e.ReturnFrameIndex]
		}
		vm.pendingByFrame[vm.Frames[e.FrameIndex]] = w
	}
}
