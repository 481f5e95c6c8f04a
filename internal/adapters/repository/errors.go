package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrMotionTypeNotFound  = errors.New("motion type not found")
	ErrDuplicateMotionType = errors.New("motion type already exists")
	ErrRecordingNotFound   = errors.New("motion recording not found")
	ErrEmployeeNotFound    = errors.New("employee not found")
	ErrDuplicateEmployee   = errors.New("employee number already exists in company")
	ErrCompanyNotFound     = errors.New("company not found")
	ErrDeviceNotFound      = errors.New("sensor device not found")
	ErrInvalidLimit        = errors.New("invalid list limit")
	ErrInvalidCeiling      = errors.New("max dtw distance must be > 0")
)
