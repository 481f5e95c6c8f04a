// Package normalize turns raw sensor frames into a validated matrix.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/okian/motionscore/internal/domain/model"
)

// Schema is the ordered list of channel names of a motion type.
type Schema []string

// Normalizer validates recordings against a schema.
type Normalizer struct {
	maxFrames int
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithMaxFrames caps the number of frames in one recording. Zero disables the cap.
func WithMaxFrames(n int) Option {
	return func(nz *Normalizer) {
		if n >= 0 {
			nz.maxFrames = n
		}
	}
}

// New returns a Normalizer.
func New(opts ...Option) *Normalizer {
	nz := &Normalizer{}
	for _, opt := range opts {
		opt(nz)
	}
	return nz
}

// Normalize validates frames and returns them as a matrix in schema order.
// Extra named channels are ignored. No resampling is performed.
func (nz *Normalizer) Normalize(schema Schema, frames []model.Frame) (model.Matrix, error) {
	if len(schema) == 0 {
		return nil, malformed(-1, "", "motion type declares no channels")
	}
	if len(frames) == 0 {
		return nil, malformed(-1, "", "recording has no frames")
	}
	if nz.maxFrames > 0 && len(frames) > nz.maxFrames {
		return nil, malformed(-1, "", fmt.Sprintf("recording has %d frames, limit is %d", len(frames), nz.maxFrames))
	}

	out := make(model.Matrix, len(frames))
	for i, f := range frames {
		row, err := normalizeFrame(schema, i, f)
		if err != nil {
			return nil, err
		}
		out[i] = row
	}
	return out, nil
}

// Normalize is a convenience for an uncapped Normalizer.
func Normalize(schema Schema, frames []model.Frame) (model.Matrix, error) {
	return New().Normalize(schema, frames)
}

func normalizeFrame(schema Schema, idx int, f model.Frame) ([]float64, error) {
	row := make([]float64, len(schema))

	if f.IsPositional() {
		if len(f.Positional) != len(schema) {
			return nil, malformed(idx, "", fmt.Sprintf("expected %d values, got %d", len(schema), len(f.Positional)))
		}
		for c, name := range schema {
			v, err := toFloat(idx, name, f.Positional[c])
			if err != nil {
				return nil, err
			}
			row[c] = v
		}
		return row, nil
	}

	if f.Named == nil {
		return nil, malformed(idx, "", "frame is empty")
	}
	for c, name := range schema {
		raw, ok := f.Named[name]
		if !ok {
			return nil, malformed(idx, name, "missing channel")
		}
		v, err := toFloat(idx, name, raw)
		if err != nil {
			return nil, err
		}
		row[c] = v
	}
	return row, nil
}

func toFloat(idx int, channel string, raw any) (float64, error) {
	var v float64
	switch x := raw.(type) {
	case json.Number:
		f, err := strconv.ParseFloat(string(x), 64)
		if err != nil {
			return 0, malformed(idx, channel, fmt.Sprintf("value %q is not a number", string(x)))
		}
		v = f
	case float64:
		v = x
	case float32:
		v = float64(x)
	case int:
		v = float64(x)
	case int64:
		v = float64(x)
	case nil:
		return 0, malformed(idx, channel, "value is null")
	default:
		return 0, malformed(idx, channel, fmt.Sprintf("value of type %T is not numeric", raw))
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, malformed(idx, channel, "value is not finite")
	}
	return v, nil
}
