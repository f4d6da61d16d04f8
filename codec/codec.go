// Package codec provides the serialization boundary for checkpointed
// flow state. Flow data crosses the store as opaque bytes; a Codec turns
// typed payloads into those bytes and back. Decode failures are wrapped
// with corda.ErrDeserialization so the transition machinery can tell a
// poisoned checkpoint from a transient storage fault.
package codec

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"github.com/Lupupam/corda"
)

// Codec serializes flow payloads for checkpoint storage.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error

	// Name identifies the codec in logs and diagnostics.
	Name() string
}

// Default returns the codec used when none is configured.
func Default() Codec { return JSON{} }

// JSON encodes payloads as JSON. It is the default: human-readable in
// the store and stable across binary versions as long as field names are.
type JSON struct{}

// Name implements Codec.
func (JSON) Name() string { return "json" }

// Marshal implements Codec.
func (JSON) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec/json: marshal: %w", err)
	}
	return data, nil
}

// Unmarshal implements Codec.
func (JSON) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("codec/json: unmarshal: %w: %w", corda.ErrDeserialization, err)
	}
	return nil
}

// Gob encodes payloads with encoding/gob. Denser than JSON and preserves
// Go types exactly, at the cost of being tied to the binary's type
// definitions. Both sides of a resume must register identical types.
type Gob struct{}

// Name implements Codec.
func (Gob) Name() string { return "gob" }

// Marshal implements Codec.
func (Gob) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("codec/gob: marshal: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal implements Codec.
func (Gob) Unmarshal(data []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("codec/gob: unmarshal: %w: %w", corda.ErrDeserialization, err)
	}
	return nil
}

// Compile-time interface checks.
var (
	_ Codec = JSON{}
	_ Codec = Gob{}
)
