package calibration

import "errors"

// Non-fatal calibration outcomes. The ceiling is left unchanged.
var (
	ErrCalibrationIncomplete = errors.New("calibration incomplete: need at least one reference and one zero_score recording")
	ErrDegenerateCorpus      = errors.New("degenerate corpus: a zero_score recording matches a reference")
)

// IsWarning reports whether err is a non-fatal calibration warning.
func IsWarning(err error) bool {
	return errors.Is(err, ErrCalibrationIncomplete) || errors.Is(err, ErrDegenerateCorpus)
}
