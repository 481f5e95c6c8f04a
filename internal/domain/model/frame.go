package model

import (
	"bytes"
	"encoding/json"
	"errors"
)

// ErrInvalidFrame is returned when a frame is neither a JSON object nor an array.
var ErrInvalidFrame = errors.New("frame must be an object or an array")

// Frame is one sample of a sensor recording as received at the boundary.
// It is either named ({"ax": 0.1, ...}) or positional ([0.1, ...]).
// Decoded numbers stay json.Number; other JSON kinds are kept as decoded so
// the normalizer can report them.
type Frame struct {
	Named      map[string]any
	Positional []any
}

// NamedFrame builds a named frame from numeric values.
func NamedFrame(values map[string]float64) Frame {
	named := make(map[string]any, len(values))
	for k, v := range values {
		named[k] = v
	}
	return Frame{Named: named}
}

// PositionalFrame builds a positional frame.
func PositionalFrame(values ...float64) Frame {
	pos := make([]any, len(values))
	for i, v := range values {
		pos[i] = v
	}
	return Frame{Positional: pos}
}

// IsPositional reports whether the frame uses the array form.
func (f Frame) IsPositional() bool { return f.Named == nil && f.Positional != nil }

// UnmarshalJSON decodes either form, preserving numbers as json.Number.
func (f *Frame) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return ErrInvalidFrame
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	switch trimmed[0] {
	case '{':
		var named map[string]any
		if err := dec.Decode(&named); err != nil {
			return err
		}
		*f = Frame{Named: named}
	case '[':
		var pos []any
		if err := dec.Decode(&pos); err != nil {
			return err
		}
		if pos == nil {
			pos = []any{}
		}
		*f = Frame{Positional: pos}
	default:
		return ErrInvalidFrame
	}
	return nil
}

// MarshalJSON encodes the frame in the form it was built with.
func (f Frame) MarshalJSON() ([]byte, error) {
	if f.IsPositional() {
		return json.Marshal(f.Positional)
	}
	if f.Named == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(f.Named)
}

// FramesFromMatrix converts a matrix into positional frames.
func FramesFromMatrix(m Matrix) []Frame {
	out := make([]Frame, len(m))
	for i, row := range m {
		out[i] = PositionalFrame(row...)
	}
	return out
}
