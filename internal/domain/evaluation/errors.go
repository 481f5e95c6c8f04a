package evaluation

import "errors"

// Sentinel errors.
var (
	ErrNoReferenceRecording  = errors.New("no reference recording for motion type")
	ErrEvaluationPersistence = errors.New("evaluation result could not be stored")
	// ErrDefect marks failures that valid input can never cause, such as a
	// stored reference whose width differs from the motion type schema.
	ErrDefect = errors.New("evaluation defect")
)

// PersistenceError is returned with a fully computed Result when the audit
// record could not be written.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return ErrEvaluationPersistence.Error() + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrEvaluationPersistence) match.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrEvaluationPersistence
}
