package policy

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileSource serves snapshots from a YAML document, used for offline
// compiles and fixtures.
type FileSource struct {
	Path string
}

// Snapshot reads and decodes the file on every call so edits are picked up.
func (s FileSource) Snapshot(_ context.Context) (Snapshot, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("policy: read snapshot file: %w", err)
	}
	return DecodeSnapshot(raw)
}

// DecodeSnapshot parses a YAML snapshot. Unknown keys are rejected so typos in
// hand-written fixtures surface immediately.
func DecodeSnapshot(raw []byte) (Snapshot, error) {
	var snap Snapshot
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("policy: decode snapshot: %w", err)
	}
	return snap, nil
}

// EncodeSnapshot renders a snapshot as YAML.
func EncodeSnapshot(snap Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(snap); err != nil {
		return nil, fmt.Errorf("policy: encode snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
