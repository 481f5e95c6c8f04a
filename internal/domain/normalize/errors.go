package normalize

import (
	"errors"
	"fmt"
)

// ErrMalformedRecording is the kind matched by every normalisation failure.
var ErrMalformedRecording = errors.New("malformed recording")

// MalformedRecordingError describes where a recording failed validation.
// Frame is -1 when the failure concerns the recording as a whole.
type MalformedRecordingError struct {
	Frame   int
	Channel string
	Reason  string
}

func (e *MalformedRecordingError) Error() string {
	switch {
	case e.Frame < 0:
		return fmt.Sprintf("malformed recording: %s", e.Reason)
	case e.Channel == "":
		return fmt.Sprintf("malformed recording: frame %d: %s", e.Frame, e.Reason)
	default:
		return fmt.Sprintf("malformed recording: frame %d channel %q: %s", e.Frame, e.Channel, e.Reason)
	}
}

// Is lets errors.Is(err, ErrMalformedRecording) match.
func (e *MalformedRecordingError) Is(target error) bool {
	return target == ErrMalformedRecording
}

func malformed(frame int, channel, reason string) error {
	return &MalformedRecordingError{Frame: frame, Channel: channel, Reason: reason}
}
