package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/okian/motionscore/internal/domain/model"
)

// HashAPIKey returns the hex SHA-256 of a device API key, the form stored in
// SensorDevice.APIKeyHash.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// Seed describes directory rows and motion types to create at startup.
type Seed struct {
	Companies   []SeedCompany    `koanf:"companies"`
	Employees   []SeedEmployee   `koanf:"employees"`
	Devices     []SeedDevice     `koanf:"devices"`
	MotionTypes []SeedMotionType `koanf:"motion_types"`
}

type SeedCompany struct {
	Name  string `koanf:"name"`
	BizNo string `koanf:"biz_no"`
}

type SeedEmployee struct {
	Company string `koanf:"company"`
	EmpNo   string `koanf:"emp_no"`
	Name    string `koanf:"name"`
	Dept    string `koanf:"dept"`
}

type SeedDevice struct {
	Company   string `koanf:"company"`
	DeviceUID string `koanf:"device_uid"`
	Name      string `koanf:"name"`
	// APIKey is the plain key; only its hash is stored.
	APIKey string `koanf:"api_key"`
}

type SeedMotionType struct {
	Name           string   `koanf:"name"`
	Description    string   `koanf:"description"`
	Channels       []string `koanf:"channels"`
	MaxDTWDistance float64  `koanf:"max_dtw_distance"`
}

// LoadSeed parses a YAML seed file.
func LoadSeed(path string) (Seed, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return Seed{}, fmt.Errorf("load seed %s: %w", path, err)
	}
	var seed Seed
	if err := k.UnmarshalWithConf("", &seed, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Seed{}, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return seed, nil
}

// SeedResult counts rows created by Apply.
type SeedResult struct {
	Companies   int
	Employees   int
	Devices     int
	MotionTypes int
}

// Apply creates the rows of seed that do not exist yet. Motion types without a
// ceiling get defaultCeiling.
func (seed Seed) Apply(ctx context.Context, store Store, defaultCeiling float64) (SeedResult, error) {
	var res SeedResult
	companies := make(map[string]string)

	for _, sc := range seed.Companies {
		c, err := store.FindCompanyByName(ctx, sc.Name)
		if errors.Is(err, ErrCompanyNotFound) {
			c, err = store.CreateCompany(ctx, model.Company{Name: sc.Name, BizNo: sc.BizNo})
			res.Companies++
		}
		if err != nil {
			return res, fmt.Errorf("seed company %q: %w", sc.Name, err)
		}
		companies[sc.Name] = c.ID
	}

	companyID := func(name string) (string, error) {
		if id, ok := companies[name]; ok {
			return id, nil
		}
		c, err := store.FindCompanyByName(ctx, name)
		if err != nil {
			return "", fmt.Errorf("company %q: %w", name, err)
		}
		companies[name] = c.ID
		return c.ID, nil
	}

	for _, se := range seed.Employees {
		cid, err := companyID(se.Company)
		if err != nil {
			return res, fmt.Errorf("seed employee %q: %w", se.EmpNo, err)
		}
		if _, err := store.FindEmployee(ctx, se.EmpNo, cid); err == nil {
			continue
		}
		if _, err := store.CreateEmployee(ctx, model.Employee{CompanyID: cid, EmpNo: se.EmpNo, Name: se.Name, Dept: se.Dept}); err != nil {
			return res, fmt.Errorf("seed employee %q: %w", se.EmpNo, err)
		}
		res.Employees++
	}

	for _, sd := range seed.Devices {
		cid, err := companyID(sd.Company)
		if err != nil {
			return res, fmt.Errorf("seed device %q: %w", sd.DeviceUID, err)
		}
		hash := HashAPIKey(sd.APIKey)
		if _, err := store.FindDeviceByKeyHash(ctx, hash); err == nil {
			continue
		}
		dev := model.SensorDevice{CompanyID: cid, DeviceUID: sd.DeviceUID, Name: sd.Name, APIKeyHash: hash, Active: true}
		if _, err := store.CreateDevice(ctx, dev); err != nil {
			return res, fmt.Errorf("seed device %q: %w", sd.DeviceUID, err)
		}
		res.Devices++
	}

	for _, sm := range seed.MotionTypes {
		ceiling := sm.MaxDTWDistance
		if ceiling <= 0 {
			ceiling = defaultCeiling
		}
		_, err := store.CreateMotionType(ctx, model.MotionType{
			Name:           sm.Name,
			Description:    sm.Description,
			Channels:       sm.Channels,
			MaxDTWDistance: ceiling,
		})
		if errors.Is(err, ErrDuplicateMotionType) {
			continue
		}
		if err != nil {
			return res, fmt.Errorf("seed motion type %q: %w", sm.Name, err)
		}
		res.MotionTypes++
	}
	return res, nil
}
