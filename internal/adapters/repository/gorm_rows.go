package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/okian/motionscore/internal/domain/model"
)

// stringList stores a []string as a JSON text column.
type stringList []string

func (l stringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	return string(b), err
}

func (l *stringList) Scan(value interface{}) error {
	b, err := columnBytes(value)
	if err != nil || b == nil {
		*l = nil
		return err
	}
	var out []string
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	if len(out) == 0 {
		out = nil
	}
	*l = out
	return nil
}

// matrixColumn stores frames as a JSON text column.
type matrixColumn model.Matrix

func (m matrixColumn) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal([][]float64(m))
	return string(b), err
}

func (m *matrixColumn) Scan(value interface{}) error {
	b, err := columnBytes(value)
	if err != nil || b == nil {
		*m = nil
		return err
	}
	var out [][]float64
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

func columnBytes(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, errors.New("invalid type for json column")
	}
}

type motionTypeRow struct {
	ID             string     `gorm:"primaryKey;size:36"`
	Name           string     `gorm:"size:128;uniqueIndex"`
	Description    string     `gorm:"type:text"`
	Channels       stringList `gorm:"type:text"`
	MaxDTWDistance float64    `gorm:"column:max_dtw_distance"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (motionTypeRow) TableName() string { return "motion_types" }

func (r motionTypeRow) toModel() model.MotionType {
	return model.MotionType{
		ID:             r.ID,
		Name:           r.Name,
		Description:    r.Description,
		Channels:       []string(r.Channels),
		MaxDTWDistance: r.MaxDTWDistance,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

type recordingRow struct {
	ID           string       `gorm:"primaryKey;size:36"`
	MotionTypeID string       `gorm:"size:36;index:idx_recording_type_category"`
	Category     string       `gorm:"size:16;index:idx_recording_type_category"`
	RecordedAt   time.Time    `gorm:"index"`
	DataFrames   int          `gorm:"default:0"`
	Channels     stringList   `gorm:"type:text"`
	Frames       matrixColumn `gorm:"type:text"`
}

func (recordingRow) TableName() string { return "motion_recordings" }

func (r recordingRow) toModel() model.MotionRecording {
	return model.MotionRecording{
		ID:           r.ID,
		MotionTypeID: r.MotionTypeID,
		Category:     model.Category(r.Category),
		RecordedAt:   r.RecordedAt,
		DataFrames:   r.DataFrames,
		Channels:     []string(r.Channels),
		Frames:       model.Matrix(r.Frames),
	}
}

type userRecordingRow struct {
	ID           string    `gorm:"primaryKey;size:36"`
	EmployeeID   string    `gorm:"size:36;index"`
	MotionTypeID string    `gorm:"size:36;index"`
	Score        float64   `gorm:"index"`
	RecordedAt   time.Time `gorm:"index"`
}

func (userRecordingRow) TableName() string { return "user_recordings" }

func (r userRecordingRow) toModel() model.UserRecording {
	return model.UserRecording{
		ID:           r.ID,
		EmployeeID:   r.EmployeeID,
		MotionTypeID: r.MotionTypeID,
		Score:        r.Score,
		RecordedAt:   r.RecordedAt,
	}
}

type companyRow struct {
	ID    string `gorm:"primaryKey;size:36"`
	Name  string `gorm:"size:255;index"`
	BizNo string `gorm:"size:64"`
}

func (companyRow) TableName() string { return "companies" }

type employeeRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	CompanyID string `gorm:"size:36;uniqueIndex:idx_employee_company_empno"`
	EmpNo     string `gorm:"size:64;uniqueIndex:idx_employee_company_empno"`
	Name      string `gorm:"size:255"`
	Dept      string `gorm:"size:255"`
}

func (employeeRow) TableName() string { return "employees" }

type deviceRow struct {
	ID         string `gorm:"primaryKey;size:36"`
	CompanyID  string `gorm:"size:36;index"`
	DeviceUID  string `gorm:"size:128"`
	Name       string `gorm:"size:255"`
	APIKeyHash string `gorm:"column:api_key_hash;size:64;uniqueIndex"`
	Active     bool
}

func (deviceRow) TableName() string { return "sensor_devices" }
