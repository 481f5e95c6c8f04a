package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/motionscore/internal/domain/model"
)

// MemoryStore is an in-process Store. Reads take the read lock, so a reader
// always observes one committed ceiling value.
type MemoryStore struct {
	mu  sync.RWMutex
	cfg settings

	motionTypes map[string]model.MotionType
	typeByName  map[string]string

	recordings   map[string]model.MotionRecording
	recordingSeq []string

	userRecordings []model.UserRecording

	companies map[string]model.Company
	employees map[string]model.Employee
	devices   map[string]model.SensorDevice
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &MemoryStore{
		cfg:         cfg,
		motionTypes: make(map[string]model.MotionType),
		typeByName:  make(map[string]string),
		recordings:  make(map[string]model.MotionRecording),
		companies:   make(map[string]model.Company),
		employees:   make(map[string]model.Employee),
		devices:     make(map[string]model.SensorDevice),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// Motion types.

func (s *MemoryStore) CreateMotionType(_ context.Context, mt model.MotionType) (model.MotionType, error) {
	if mt.MaxDTWDistance <= 0 {
		return model.MotionType{}, ErrInvalidCeiling
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.typeByName[mt.Name]; taken {
		return model.MotionType{}, fmt.Errorf("%w: %s", ErrDuplicateMotionType, mt.Name)
	}
	if mt.ID == "" {
		mt.ID = s.cfg.newID()
	}
	now := s.cfg.now()
	if mt.CreatedAt.IsZero() {
		mt.CreatedAt = now
	}
	mt.UpdatedAt = now
	mt.Channels = append([]string(nil), mt.Channels...)

	s.motionTypes[mt.ID] = mt
	s.typeByName[mt.Name] = mt.ID
	return copyMotionType(mt), nil
}

func (s *MemoryStore) GetMotionType(_ context.Context, id string) (model.MotionType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mt, ok := s.motionTypes[id]
	if !ok {
		return model.MotionType{}, ErrMotionTypeNotFound
	}
	return copyMotionType(mt), nil
}

func (s *MemoryStore) GetMotionTypeByName(_ context.Context, name string) (model.MotionType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.typeByName[name]
	if !ok {
		return model.MotionType{}, ErrMotionTypeNotFound
	}
	return copyMotionType(s.motionTypes[id]), nil
}

func (s *MemoryStore) ListMotionTypes(_ context.Context) ([]model.MotionType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.MotionType, 0, len(s.motionTypes))
	for _, mt := range s.motionTypes {
		out = append(out, copyMotionType(mt))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) UpdateCeiling(_ context.Context, id string, ceiling float64) error {
	if ceiling <= 0 {
		return ErrInvalidCeiling
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	mt, ok := s.motionTypes[id]
	if !ok {
		return ErrMotionTypeNotFound
	}
	mt.MaxDTWDistance = ceiling
	mt.UpdatedAt = s.cfg.now()
	s.motionTypes[id] = mt
	return nil
}

// Recordings.

func (s *MemoryStore) CreateRecording(_ context.Context, rec model.MotionRecording) (model.MotionRecording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.motionTypes[rec.MotionTypeID]; !ok {
		return model.MotionRecording{}, ErrMotionTypeNotFound
	}
	if rec.ID == "" {
		rec.ID = s.cfg.newID()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = s.cfg.now()
	}
	rec.Frames = rec.Frames.Clone()
	rec.Channels = append([]string(nil), rec.Channels...)
	rec.DataFrames = len(rec.Frames)

	s.recordings[rec.ID] = rec
	s.recordingSeq = append(s.recordingSeq, rec.ID)
	return copyRecording(rec), nil
}

func (s *MemoryStore) GetRecording(_ context.Context, id string) (model.MotionRecording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recordings[id]
	if !ok {
		return model.MotionRecording{}, ErrRecordingNotFound
	}
	return copyRecording(rec), nil
}

func (s *MemoryStore) ListRecordings(_ context.Context, motionTypeID string, category model.Category) ([]model.MotionRecording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.MotionRecording
	for _, id := range s.recordingSeq {
		rec := s.recordings[id]
		if rec.MotionTypeID != motionTypeID {
			continue
		}
		if category != "" && rec.Category != category {
			continue
		}
		out = append(out, copyRecording(rec))
	}
	return out, nil
}

func (s *MemoryStore) DeleteRecording(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recordings[id]; !ok {
		return ErrRecordingNotFound
	}
	delete(s.recordings, id)
	for i, rid := range s.recordingSeq {
		if rid == id {
			s.recordingSeq = append(s.recordingSeq[:i], s.recordingSeq[i+1:]...)
			break
		}
	}
	return nil
}

// Evaluations.

func (s *MemoryStore) CreateUserRecording(_ context.Context, ur model.UserRecording) (model.UserRecording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ur.ID == "" {
		ur.ID = s.cfg.newID()
	}
	if ur.RecordedAt.IsZero() {
		ur.RecordedAt = s.cfg.now()
	}
	s.userRecordings = append(s.userRecordings, ur)
	return ur, nil
}

func (s *MemoryStore) ListUserRecordings(_ context.Context, employeeID, motionTypeID string, limit int) ([]model.UserRecording, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.UserRecording
	// newest first: walk the append-only log backwards
	for i := len(s.userRecordings) - 1; i >= 0 && len(out) < limit; i-- {
		ur := s.userRecordings[i]
		if ur.EmployeeID != employeeID {
			continue
		}
		if motionTypeID != "" && ur.MotionTypeID != motionTypeID {
			continue
		}
		out = append(out, ur)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	return out, nil
}

func (s *MemoryStore) BestScores(_ context.Context, motionTypeID string, limit int) ([]model.EmployeeScore, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	best := make(map[string]*model.EmployeeScore)
	for _, ur := range s.userRecordings {
		if ur.MotionTypeID != motionTypeID {
			continue
		}
		es, ok := best[ur.EmployeeID]
		if !ok {
			emp := s.employees[ur.EmployeeID]
			es = &model.EmployeeScore{EmployeeID: ur.EmployeeID, EmpNo: emp.EmpNo, Name: emp.Name, Score: ur.Score}
			best[ur.EmployeeID] = es
		}
		es.Attempts++
		if ur.Score > es.Score {
			es.Score = ur.Score
		}
	}

	out := make([]model.EmployeeScore, 0, len(best))
	for _, es := range best {
		out = append(out, *es)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].EmpNo < out[j].EmpNo
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Directory.

func (s *MemoryStore) CreateCompany(_ context.Context, c model.Company) (model.Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = s.cfg.newID()
	}
	s.companies[c.ID] = c
	return c, nil
}

func (s *MemoryStore) CreateEmployee(_ context.Context, e model.Employee) (model.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[e.CompanyID]; !ok {
		return model.Employee{}, ErrCompanyNotFound
	}
	for _, other := range s.employees {
		if other.CompanyID == e.CompanyID && other.EmpNo == e.EmpNo {
			return model.Employee{}, ErrDuplicateEmployee
		}
	}
	if e.ID == "" {
		e.ID = s.cfg.newID()
	}
	s.employees[e.ID] = e
	return e, nil
}

func (s *MemoryStore) CreateDevice(_ context.Context, d model.SensorDevice) (model.SensorDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.companies[d.CompanyID]; !ok {
		return model.SensorDevice{}, ErrCompanyNotFound
	}
	if d.ID == "" {
		d.ID = s.cfg.newID()
	}
	s.devices[d.ID] = d
	return d, nil
}

func (s *MemoryStore) GetCompany(_ context.Context, id string) (model.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[id]
	if !ok {
		return model.Company{}, ErrCompanyNotFound
	}
	return c, nil
}

func (s *MemoryStore) FindCompanyByName(_ context.Context, name string) (model.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.companies {
		if c.Name == name {
			return c, nil
		}
	}
	return model.Company{}, ErrCompanyNotFound
}

func (s *MemoryStore) FindEmployee(_ context.Context, empNo, companyID string) (model.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.employees {
		if e.EmpNo == empNo && e.CompanyID == companyID {
			return e, nil
		}
	}
	return model.Employee{}, ErrEmployeeNotFound
}

func (s *MemoryStore) FindDeviceByKeyHash(_ context.Context, keyHash string) (model.SensorDevice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.devices {
		if d.Active && d.APIKeyHash == keyHash {
			return d, nil
		}
	}
	return model.SensorDevice{}, ErrDeviceNotFound
}

func copyMotionType(mt model.MotionType) model.MotionType {
	mt.Channels = append([]string(nil), mt.Channels...)
	return mt
}

func copyRecording(rec model.MotionRecording) model.MotionRecording {
	rec.Frames = rec.Frames.Clone()
	rec.Channels = append([]string(nil), rec.Channels...)
	return rec
}
