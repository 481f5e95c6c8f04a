// Package repository persists motion types, recordings, evaluations and the
// device/employee directory.
package repository

import (
	"context"

	"github.com/okian/motionscore/internal/domain/model"
)

// MotionTypeStore manages motion types and their calibrated ceiling.
type MotionTypeStore interface {
	// CreateMotionType stores mt, assigning ID and timestamps when empty.
	// Returns ErrDuplicateMotionType if the name is taken.
	CreateMotionType(ctx context.Context, mt model.MotionType) (model.MotionType, error)
	// GetMotionType returns ErrMotionTypeNotFound for unknown ids.
	GetMotionType(ctx context.Context, id string) (model.MotionType, error)
	// GetMotionTypeByName returns ErrMotionTypeNotFound for unknown names.
	GetMotionTypeByName(ctx context.Context, name string) (model.MotionType, error)
	// ListMotionTypes returns all motion types ordered by name.
	ListMotionTypes(ctx context.Context) ([]model.MotionType, error)
	// UpdateCeiling atomically replaces MaxDTWDistance.
	UpdateCeiling(ctx context.Context, id string, ceiling float64) error
}

// RecordingStore manages reference and zero-score exemplars.
type RecordingStore interface {
	CreateRecording(ctx context.Context, rec model.MotionRecording) (model.MotionRecording, error)
	// GetRecording returns ErrRecordingNotFound for unknown ids.
	GetRecording(ctx context.Context, id string) (model.MotionRecording, error)
	// ListRecordings returns the recordings of a motion type in insertion
	// order. An empty category lists both categories.
	ListRecordings(ctx context.Context, motionTypeID string, category model.Category) ([]model.MotionRecording, error)
	DeleteRecording(ctx context.Context, id string) error
}

// EvaluationStore keeps the append-only evaluation audit trail.
type EvaluationStore interface {
	CreateUserRecording(ctx context.Context, ur model.UserRecording) (model.UserRecording, error)
	// ListUserRecordings returns an employee's evaluations, newest first.
	// An empty motionTypeID lists every motion type.
	ListUserRecordings(ctx context.Context, employeeID, motionTypeID string, limit int) ([]model.UserRecording, error)
	// BestScores returns the best score per employee for a motion type,
	// ordered by score desc then employee number asc.
	BestScores(ctx context.Context, motionTypeID string, limit int) ([]model.EmployeeScore, error)
}

// Directory resolves the companies, employees and devices that surround evaluation.
type Directory interface {
	CreateCompany(ctx context.Context, c model.Company) (model.Company, error)
	CreateEmployee(ctx context.Context, e model.Employee) (model.Employee, error)
	CreateDevice(ctx context.Context, d model.SensorDevice) (model.SensorDevice, error)

	GetCompany(ctx context.Context, id string) (model.Company, error)
	FindCompanyByName(ctx context.Context, name string) (model.Company, error)
	// FindEmployee returns ErrEmployeeNotFound when empNo is unknown in the company.
	FindEmployee(ctx context.Context, empNo, companyID string) (model.Employee, error)
	// FindDeviceByKeyHash returns ErrDeviceNotFound for unknown or inactive devices.
	FindDeviceByKeyHash(ctx context.Context, keyHash string) (model.SensorDevice, error)
}

// Store is the full persistence surface.
type Store interface {
	MotionTypeStore
	RecordingStore
	EvaluationStore
	Directory

	Close() error
}
