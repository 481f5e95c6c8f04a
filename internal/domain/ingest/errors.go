package ingest

import "errors"

// Sentinel errors.
var (
	ErrInvalidCategory     = errors.New("invalid score category")
	ErrInvalidMotionType   = errors.New("invalid motion type")
	ErrRecalibrationFailed = errors.New("recording stored but recalibration failed")
)
