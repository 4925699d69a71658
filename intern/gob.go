package intern

import (
	"bytes"
	"encoding/gob"
	"math/big"
)

// tableSnapshot mirrors Table's fields under exported names; stringIdx,
// byteIdx and bigintIdx are pure derived indexes and are rebuilt on decode
// rather than serialized (spec.md §4.5 round-trip).
type tableSnapshot struct {
	Strings []string
	Bytes   [][]byte
	Bigints []*big.Int
}

// GobEncode lets a Snapshot serialize a Table despite its fields being
// unexported (package intern's encapsulation is for the rest of this
// codebase, not for package sandbox's serialization boundary). The mutex
// is deliberately left out: a freshly decoded Table starts unlocked.
func (t *Table) GobEncode() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	snap := tableSnapshot{
		Strings: append([]string(nil), t.strings...),
		Bytes:   append([][]byte(nil), t.bytes...),
		Bigints: append([]*big.Int(nil), t.bigints...),
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode rebuilds a Table from GobEncode's wire form, reconstructing
// the three lookup indexes from the decoded slices since id assignment is
// deterministic (append order) and the indexes carry no information the
// slices don't already have.
func (t *Table) GobDecode(data []byte) error {
	var snap tableSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return err
	}
	t.strings = snap.Strings
	t.stringIdx = make(map[string]StringId, len(snap.Strings))
	for i, s := range snap.Strings {
		t.stringIdx[s] = StringId(i)
	}
	t.bytes = snap.Bytes
	t.byteIdx = make(map[string]BytesId, len(snap.Bytes))
	for i, b := range snap.Bytes {
		t.byteIdx[string(b)] = BytesId(i)
	}
	t.bigints = snap.Bigints
	t.bigintIdx = make(map[string]LongIntId, len(snap.Bigints))
	for i, n := range snap.Bigints {
		t.bigintIdx[n.String()] = LongIntId(i)
	}
	return nil
}
