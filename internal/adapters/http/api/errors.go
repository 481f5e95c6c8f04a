package api

import (
	"errors"
	"net/http"

	"github.com/okian/motionscore/internal/adapters/repository"
	"github.com/okian/motionscore/internal/domain/evaluation"
	"github.com/okian/motionscore/internal/domain/ingest"
	"github.com/okian/motionscore/internal/domain/normalize"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal error")
)

// KindError tags an error with the operation that produced it and an
// optional kind used for status mapping.
type KindError struct {
	Op   string
	Kind error
	Err  error
}

func (e *KindError) Error() string {
	switch {
	case e.Kind == nil:
		return e.Op + ": " + e.Err.Error()
	case e.Err == nil:
		return e.Op + ": " + e.Kind.Error()
	default:
		return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
	}
}

func (e *KindError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Wrap attaches op to err.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Op: op, Err: err}
}

// WrapKind attaches op and kind to err.
func WrapKind(op string, kind, err error) error {
	return &KindError{Op: op, Kind: kind, Err: err}
}

// NewKind creates an error of kind for op.
func NewKind(op string, kind error) error {
	return &KindError{Op: op, Kind: kind}
}

// detail is the client-facing message of err, without the op prefix.
func detail(err error) string {
	var ke *KindError
	if errors.As(err, &ke) {
		if ke.Err != nil {
			return ke.Err.Error()
		}
		return ke.Kind.Error()
	}
	return err.Error()
}

// classify maps an error onto an HTTP status and a stable code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, normalize.ErrMalformedRecording):
		return http.StatusBadRequest, "malformed_recording"
	case errors.Is(err, ingest.ErrInvalidCategory):
		return http.StatusBadRequest, "invalid_category"
	case errors.Is(err, ingest.ErrInvalidMotionType):
		return http.StatusBadRequest, "invalid_motion_type"
	case errors.Is(err, ErrBadRequest), errors.Is(err, repository.ErrInvalidLimit):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, repository.ErrMotionTypeNotFound):
		return http.StatusNotFound, "motion_type_not_found"
	case errors.Is(err, repository.ErrEmployeeNotFound):
		return http.StatusNotFound, "employee_not_found"
	case errors.Is(err, repository.ErrRecordingNotFound):
		return http.StatusNotFound, "recording_not_found"
	case errors.Is(err, evaluation.ErrNoReferenceRecording):
		return http.StatusNotFound, "no_reference_recording"
	case errors.Is(err, repository.ErrDuplicateMotionType):
		return http.StatusConflict, "duplicate_motion_type"
	case errors.Is(err, repository.ErrDuplicateEmployee):
		return http.StatusConflict, "duplicate_employee"
	case errors.Is(err, evaluation.ErrEvaluationPersistence):
		return http.StatusInternalServerError, "evaluation_not_stored"
	case errors.Is(err, evaluation.ErrDefect):
		return http.StatusInternalServerError, "defect"
	case errors.Is(err, ingest.ErrRecalibrationFailed):
		return http.StatusInternalServerError, "recalibration_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
