// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// Matrix holds a recording as frames x channels.
type Matrix [][]float64

// Frames returns the number of frames.
func (m Matrix) Frames() int { return len(m) }

// Width returns the channel count of the first frame, or 0 when empty.
func (m Matrix) Width() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Clone returns a deep copy.
func (m Matrix) Clone() Matrix {
	if m == nil {
		return nil
	}
	out := make(Matrix, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

// Category classifies a stored motion recording.
type Category string

// Recording categories.
const (
	CategoryReference Category = "reference"
	CategoryZeroScore Category = "zero_score"
)

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryReference, CategoryZeroScore:
		return c, nil
	default:
		return "", fmt.Errorf("unknown category %q", s)
	}
}

// MotionType is a named kind of movement to be evaluated.
type MotionType struct {
	ID          string
	Name        string
	Description string
	// Channels overrides the default schema when non-empty.
	Channels       []string
	MaxDTWDistance float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// MotionRecording is a stored exemplar recording of a motion type.
type MotionRecording struct {
	ID           string
	MotionTypeID string
	Category     Category
	RecordedAt   time.Time
	DataFrames   int
	Channels     []string
	Frames       Matrix
}

// UserRecording is the audit record of one completed evaluation.
type UserRecording struct {
	ID           string
	EmployeeID   string
	MotionTypeID string
	Score        float64
	RecordedAt   time.Time
}

// Company owns employees and sensor devices.
type Company struct {
	ID    string
	Name  string
	BizNo string
}

// Employee is a trainee whose recordings are evaluated.
type Employee struct {
	ID        string
	CompanyID string
	EmpNo     string
	Name      string
	Dept      string
}

// SensorDevice is a field device authenticated by API key.
type SensorDevice struct {
	ID         string
	CompanyID  string
	DeviceUID  string
	Name       string
	APIKeyHash string
	Active     bool
}

// EmployeeScore is the best score of one employee for a motion type.
type EmployeeScore struct {
	EmployeeID string
	EmpNo      string
	Name       string
	Score      float64
	Attempts   int
}
