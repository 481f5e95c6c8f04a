package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/pkg/metrics"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Storage drivers understood by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open returns the Store for driver. dsn is ignored for the memory driver.
func Open(driver, dsn string, opts ...Option) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(opts...), nil
	case DriverSQLite:
		db, err := OpenSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db, opts...)
	case DriverPostgres:
		db, err := OpenPostgres(dsn)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db, opts...)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	}
}

// OpenSQLite opens a pure-Go SQLite database. ":memory:" is pinned to a single
// connection so every query sees the same database.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if dsn == ":memory:" {
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}
	return db, nil
}

// OpenPostgres opens Postgres through the pgx database/sql driver.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConfig())
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// GormStore implements Store on a relational database.
type GormStore struct {
	db  *gorm.DB
	cfg settings
}

var _ Store = (*GormStore)(nil)

// NewGormStore migrates the schema and returns a store over db.
func NewGormStore(db *gorm.DB, opts ...Option) (*GormStore, error) {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := db.AutoMigrate(
		&motionTypeRow{},
		&recordingRow{},
		&userRecordingRow{},
		&companyRow{},
		&employeeRow{},
		&deviceRow{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormStore{db: db, cfg: cfg}, nil
}

// Close closes the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func observe(op string, start time.Time, err error) {
	metrics.RecordRepositoryOperation(op, float64(time.Since(start).Microseconds())/1000.0, err)
}

func notFound(err, kind error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return kind
	}
	return err
}

// Motion types.

func (s *GormStore) CreateMotionType(ctx context.Context, mt model.MotionType) (out model.MotionType, err error) {
	defer func(start time.Time) { observe("create_motion_type", start, err) }(time.Now())
	if mt.MaxDTWDistance <= 0 {
		return model.MotionType{}, ErrInvalidCeiling
	}
	if mt.ID == "" {
		mt.ID = s.cfg.newID()
	}
	now := s.cfg.now()
	if mt.CreatedAt.IsZero() {
		mt.CreatedAt = now
	}
	mt.UpdatedAt = now
	row := motionTypeRow{
		ID:             mt.ID,
		Name:           mt.Name,
		Description:    mt.Description,
		Channels:       stringList(mt.Channels),
		MaxDTWDistance: mt.MaxDTWDistance,
		CreatedAt:      mt.CreatedAt,
		UpdatedAt:      mt.UpdatedAt,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&motionTypeRow{}).Where("name = ?", mt.Name).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateMotionType, mt.Name)
		}
		return tx.Create(&row).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		err = fmt.Errorf("%w: %s", ErrDuplicateMotionType, mt.Name)
	}
	if err != nil {
		return model.MotionType{}, err
	}
	return row.toModel(), nil
}

func (s *GormStore) GetMotionType(ctx context.Context, id string) (model.MotionType, error) {
	var row motionTypeRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return model.MotionType{}, notFound(err, ErrMotionTypeNotFound)
	}
	return row.toModel(), nil
}

func (s *GormStore) GetMotionTypeByName(ctx context.Context, name string) (model.MotionType, error) {
	var row motionTypeRow
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error; err != nil {
		return model.MotionType{}, notFound(err, ErrMotionTypeNotFound)
	}
	return row.toModel(), nil
}

func (s *GormStore) ListMotionTypes(ctx context.Context) ([]model.MotionType, error) {
	var rows []motionTypeRow
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.MotionType, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *GormStore) UpdateCeiling(ctx context.Context, id string, ceiling float64) (err error) {
	defer func(start time.Time) { observe("update_ceiling", start, err) }(time.Now())
	if ceiling <= 0 {
		return ErrInvalidCeiling
	}
	res := s.db.WithContext(ctx).Model(&motionTypeRow{}).Where("id = ?", id).
		Updates(map[string]interface{}{"max_dtw_distance": ceiling, "updated_at": s.cfg.now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMotionTypeNotFound
	}
	return nil
}

// Recordings.

func (s *GormStore) CreateRecording(ctx context.Context, rec model.MotionRecording) (out model.MotionRecording, err error) {
	defer func(start time.Time) { observe("create_recording", start, err) }(time.Now())
	if _, err := s.GetMotionType(ctx, rec.MotionTypeID); err != nil {
		return model.MotionRecording{}, err
	}
	if rec.ID == "" {
		rec.ID = s.cfg.newID()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = s.cfg.now()
	}
	row := recordingRow{
		ID:           rec.ID,
		MotionTypeID: rec.MotionTypeID,
		Category:     string(rec.Category),
		RecordedAt:   rec.RecordedAt,
		DataFrames:   len(rec.Frames),
		Channels:     stringList(rec.Channels),
		Frames:       matrixColumn(rec.Frames),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return model.MotionRecording{}, err
	}
	return row.toModel(), nil
}

func (s *GormStore) GetRecording(ctx context.Context, id string) (model.MotionRecording, error) {
	var row recordingRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return model.MotionRecording{}, notFound(err, ErrRecordingNotFound)
	}
	return row.toModel(), nil
}

func (s *GormStore) ListRecordings(ctx context.Context, motionTypeID string, category model.Category) (out []model.MotionRecording, err error) {
	defer func(start time.Time) { observe("list_recordings", start, err) }(time.Now())
	q := s.db.WithContext(ctx).Where("motion_type_id = ?", motionTypeID)
	if category != "" {
		q = q.Where("category = ?", string(category))
	}
	var rows []recordingRow
	if err := q.Order("recorded_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out = make([]model.MotionRecording, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *GormStore) DeleteRecording(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { observe("delete_recording", start, err) }(time.Now())
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&recordingRow{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordingNotFound
	}
	return nil
}

// Evaluations.

func (s *GormStore) CreateUserRecording(ctx context.Context, ur model.UserRecording) (out model.UserRecording, err error) {
	defer func(start time.Time) { observe("create_user_recording", start, err) }(time.Now())
	if ur.ID == "" {
		ur.ID = s.cfg.newID()
	}
	if ur.RecordedAt.IsZero() {
		ur.RecordedAt = s.cfg.now()
	}
	row := userRecordingRow{
		ID:           ur.ID,
		EmployeeID:   ur.EmployeeID,
		MotionTypeID: ur.MotionTypeID,
		Score:        ur.Score,
		RecordedAt:   ur.RecordedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return model.UserRecording{}, err
	}
	return row.toModel(), nil
}

func (s *GormStore) ListUserRecordings(ctx context.Context, employeeID, motionTypeID string, limit int) ([]model.UserRecording, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	q := s.db.WithContext(ctx).Where("employee_id = ?", employeeID)
	if motionTypeID != "" {
		q = q.Where("motion_type_id = ?", motionTypeID)
	}
	var rows []userRecordingRow
	if err := q.Order("recorded_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.UserRecording, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *GormStore) BestScores(ctx context.Context, motionTypeID string, limit int) (out []model.EmployeeScore, err error) {
	defer func(start time.Time) { observe("best_scores", start, err) }(time.Now())
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}
	var rows []struct {
		EmployeeID string
		EmpNo      string
		Name       string
		Score      float64
		Attempts   int
	}
	err = s.db.WithContext(ctx).
		Table("user_recordings AS u").
		Select("u.employee_id AS employee_id, COALESCE(e.emp_no, '') AS emp_no, COALESCE(e.name, '') AS name, MAX(u.score) AS score, COUNT(*) AS attempts").
		Joins("LEFT JOIN employees e ON e.id = u.employee_id").
		Where("u.motion_type_id = ?", motionTypeID).
		Group("u.employee_id, e.emp_no, e.name").
		Order("score DESC, emp_no ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out = make([]model.EmployeeScore, len(rows))
	for i, r := range rows {
		out[i] = model.EmployeeScore{EmployeeID: r.EmployeeID, EmpNo: r.EmpNo, Name: r.Name, Score: r.Score, Attempts: r.Attempts}
	}
	return out, nil
}

// Directory.

func (s *GormStore) CreateCompany(ctx context.Context, c model.Company) (model.Company, error) {
	if c.ID == "" {
		c.ID = s.cfg.newID()
	}
	row := companyRow{ID: c.ID, Name: c.Name, BizNo: c.BizNo}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return model.Company{}, err
	}
	return c, nil
}

func (s *GormStore) CreateEmployee(ctx context.Context, e model.Employee) (model.Employee, error) {
	if _, err := s.GetCompany(ctx, e.CompanyID); err != nil {
		return model.Employee{}, err
	}
	if e.ID == "" {
		e.ID = s.cfg.newID()
	}
	row := employeeRow{ID: e.ID, CompanyID: e.CompanyID, EmpNo: e.EmpNo, Name: e.Name, Dept: e.Dept}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return model.Employee{}, ErrDuplicateEmployee
		}
		return model.Employee{}, err
	}
	return e, nil
}

func (s *GormStore) CreateDevice(ctx context.Context, d model.SensorDevice) (model.SensorDevice, error) {
	if _, err := s.GetCompany(ctx, d.CompanyID); err != nil {
		return model.SensorDevice{}, err
	}
	if d.ID == "" {
		d.ID = s.cfg.newID()
	}
	row := deviceRow{ID: d.ID, CompanyID: d.CompanyID, DeviceUID: d.DeviceUID, Name: d.Name, APIKeyHash: d.APIKeyHash, Active: d.Active}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return model.SensorDevice{}, err
	}
	return d, nil
}

func (s *GormStore) GetCompany(ctx context.Context, id string) (model.Company, error) {
	var row companyRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return model.Company{}, notFound(err, ErrCompanyNotFound)
	}
	return model.Company{ID: row.ID, Name: row.Name, BizNo: row.BizNo}, nil
}

func (s *GormStore) FindCompanyByName(ctx context.Context, name string) (model.Company, error) {
	var row companyRow
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error; err != nil {
		return model.Company{}, notFound(err, ErrCompanyNotFound)
	}
	return model.Company{ID: row.ID, Name: row.Name, BizNo: row.BizNo}, nil
}

func (s *GormStore) FindEmployee(ctx context.Context, empNo, companyID string) (model.Employee, error) {
	var row employeeRow
	err := s.db.WithContext(ctx).Where("emp_no = ? AND company_id = ?", empNo, companyID).First(&row).Error
	if err != nil {
		return model.Employee{}, notFound(err, ErrEmployeeNotFound)
	}
	return model.Employee{ID: row.ID, CompanyID: row.CompanyID, EmpNo: row.EmpNo, Name: row.Name, Dept: row.Dept}, nil
}

func (s *GormStore) FindDeviceByKeyHash(ctx context.Context, keyHash string) (model.SensorDevice, error) {
	var row deviceRow
	err := s.db.WithContext(ctx).Where("api_key_hash = ? AND active = ?", keyHash, true).First(&row).Error
	if err != nil {
		return model.SensorDevice{}, notFound(err, ErrDeviceNotFound)
	}
	return model.SensorDevice{
		ID:         row.ID,
		CompanyID:  row.CompanyID,
		DeviceUID:  row.DeviceUID,
		Name:       row.Name,
		APIKeyHash: row.APIKeyHash,
		Active:     row.Active,
	}, nil
}
