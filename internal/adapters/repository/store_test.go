package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/motionscore/internal/adapters/repository"
	"github.com/okian/motionscore/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// tickingClock returns a clock that advances one second per call.
func tickingClock() func() time.Time {
	t := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

type storeFactory struct {
	name string
	open func() repository.Store
}

func factories(t *testing.T) []storeFactory {
	return []storeFactory{
		{"MemoryStore", func() repository.Store {
			return repository.NewMemoryStore(repository.WithClock(tickingClock()))
		}},
		{"GormStore(sqlite)", func() repository.Store {
			db, err := repository.OpenSQLite(":memory:")
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			s, err := repository.NewGormStore(db, repository.WithClock(tickingClock()))
			if err != nil {
				t.Fatalf("new gorm store: %v", err)
			}
			return s
		}},
	}
}

func TestStoreContract(t *testing.T) {
	for _, f := range factories(t) {
		Convey("Given a "+f.name, t, func() {
			ctx := context.Background()
			s := f.open()
			defer func() { _ = s.Close() }()

			lift, err := s.CreateMotionType(ctx, model.MotionType{Name: "lift_extinguisher", MaxDTWDistance: 1000})
			So(err, ShouldBeNil)
			So(lift.ID, ShouldNotBeEmpty)
			_, err = s.CreateMotionType(ctx, model.MotionType{Name: "cpr", Channels: []string{"ax", "ay"}, MaxDTWDistance: 500})
			So(err, ShouldBeNil)

			Convey("When motion types are read back", func() {
				byName, err := s.GetMotionTypeByName(ctx, "cpr")
				So(err, ShouldBeNil)
				So(byName.Channels, ShouldResemble, []string{"ax", "ay"})

				byID, err := s.GetMotionType(ctx, lift.ID)
				So(err, ShouldBeNil)
				So(byID.Name, ShouldEqual, "lift_extinguisher")
				So(byID.MaxDTWDistance, ShouldEqual, 1000)

				list, err := s.ListMotionTypes(ctx)
				So(err, ShouldBeNil)
				So(list, ShouldHaveLength, 2)
				So(list[0].Name, ShouldEqual, "cpr")
				So(list[1].Name, ShouldEqual, "lift_extinguisher")
			})

			Convey("When lookups miss", func() {
				_, err := s.GetMotionTypeByName(ctx, "juggling")
				So(errors.Is(err, repository.ErrMotionTypeNotFound), ShouldBeTrue)
				_, err = s.GetMotionType(ctx, "nope")
				So(errors.Is(err, repository.ErrMotionTypeNotFound), ShouldBeTrue)
				_, err = s.GetRecording(ctx, "nope")
				So(errors.Is(err, repository.ErrRecordingNotFound), ShouldBeTrue)
				So(errors.Is(s.DeleteRecording(ctx, "nope"), repository.ErrRecordingNotFound), ShouldBeTrue)
			})

			Convey("When a duplicate name is created", func() {
				_, err := s.CreateMotionType(ctx, model.MotionType{Name: "cpr", MaxDTWDistance: 1})
				So(errors.Is(err, repository.ErrDuplicateMotionType), ShouldBeTrue)
			})

			Convey("When the ceiling is updated", func() {
				So(s.UpdateCeiling(ctx, lift.ID, 16.97), ShouldBeNil)
				mt, err := s.GetMotionType(ctx, lift.ID)
				So(err, ShouldBeNil)
				So(mt.MaxDTWDistance, ShouldEqual, 16.97)

				So(errors.Is(s.UpdateCeiling(ctx, lift.ID, 0), repository.ErrInvalidCeiling), ShouldBeTrue)
				So(errors.Is(s.UpdateCeiling(ctx, "nope", 3), repository.ErrMotionTypeNotFound), ShouldBeTrue)
			})

			Convey("When recordings are stored", func() {
				ref, err := s.CreateRecording(ctx, model.MotionRecording{
					MotionTypeID: lift.ID,
					Category:     model.CategoryReference,
					Channels:     []string{"ax", "ay"},
					Frames:       model.Matrix{{0, 0}, {1, 1}, {2, 2}},
				})
				So(err, ShouldBeNil)
				So(ref.DataFrames, ShouldEqual, 3)
				_, err = s.CreateRecording(ctx, model.MotionRecording{
					MotionTypeID: lift.ID,
					Category:     model.CategoryZeroScore,
					Frames:       model.Matrix{{5, 5}, {5, 5}, {5, 5}},
				})
				So(err, ShouldBeNil)

				Convey("Then they can be listed by category", func() {
					all, err := s.ListRecordings(ctx, lift.ID, "")
					So(err, ShouldBeNil)
					So(all, ShouldHaveLength, 2)

					refs, err := s.ListRecordings(ctx, lift.ID, model.CategoryReference)
					So(err, ShouldBeNil)
					So(refs, ShouldHaveLength, 1)
					So(refs[0].Frames, ShouldResemble, model.Matrix{{0, 0}, {1, 1}, {2, 2}})
					So(refs[0].Channels, ShouldResemble, []string{"ax", "ay"})

					got, err := s.GetRecording(ctx, ref.ID)
					So(err, ShouldBeNil)
					So(got.Category, ShouldEqual, model.CategoryReference)
				})

				Convey("Then a deleted recording disappears", func() {
					So(s.DeleteRecording(ctx, ref.ID), ShouldBeNil)
					refs, err := s.ListRecordings(ctx, lift.ID, model.CategoryReference)
					So(err, ShouldBeNil)
					So(refs, ShouldBeEmpty)
				})
			})

			Convey("When a recording references an unknown motion type", func() {
				_, err := s.CreateRecording(ctx, model.MotionRecording{MotionTypeID: "nope", Category: model.CategoryReference, Frames: model.Matrix{{1}}})
				So(errors.Is(err, repository.ErrMotionTypeNotFound), ShouldBeTrue)
			})

			Convey("When the directory is populated", func() {
				acme, err := s.CreateCompany(ctx, model.Company{Name: "acme", BizNo: "123-45"})
				So(err, ShouldBeNil)
				kim, err := s.CreateEmployee(ctx, model.Employee{CompanyID: acme.ID, EmpNo: "E001", Name: "Kim"})
				So(err, ShouldBeNil)
				lee, err := s.CreateEmployee(ctx, model.Employee{CompanyID: acme.ID, EmpNo: "E002", Name: "Lee"})
				So(err, ShouldBeNil)
				_, err = s.CreateDevice(ctx, model.SensorDevice{CompanyID: acme.ID, DeviceUID: "glove-1", APIKeyHash: repository.HashAPIKey("k1"), Active: true})
				So(err, ShouldBeNil)
				_, err = s.CreateDevice(ctx, model.SensorDevice{CompanyID: acme.ID, DeviceUID: "glove-2", APIKeyHash: repository.HashAPIKey("k2"), Active: false})
				So(err, ShouldBeNil)

				Convey("Then employees and devices resolve within their company", func() {
					e, err := s.FindEmployee(ctx, "E001", acme.ID)
					So(err, ShouldBeNil)
					So(e.Name, ShouldEqual, "Kim")

					_, err = s.FindEmployee(ctx, "E001", "other")
					So(errors.Is(err, repository.ErrEmployeeNotFound), ShouldBeTrue)

					d, err := s.FindDeviceByKeyHash(ctx, repository.HashAPIKey("k1"))
					So(err, ShouldBeNil)
					So(d.CompanyID, ShouldEqual, acme.ID)

					_, err = s.FindDeviceByKeyHash(ctx, repository.HashAPIKey("k2"))
					So(errors.Is(err, repository.ErrDeviceNotFound), ShouldBeTrue)

					_, err = s.CreateEmployee(ctx, model.Employee{CompanyID: acme.ID, EmpNo: "E001", Name: "Kim again"})
					So(errors.Is(err, repository.ErrDuplicateEmployee), ShouldBeTrue)
					e, err = s.FindEmployee(ctx, "E001", acme.ID)
					So(err, ShouldBeNil)
					So(e.ID, ShouldEqual, kim.ID)

					c, err := s.GetCompany(ctx, acme.ID)
					So(err, ShouldBeNil)
					So(c.Name, ShouldEqual, "acme")
					_, err = s.FindCompanyByName(ctx, "globex")
					So(errors.Is(err, repository.ErrCompanyNotFound), ShouldBeTrue)
				})

				Convey("And evaluations are recorded", func() {
					for _, ur := range []model.UserRecording{
						{EmployeeID: kim.ID, MotionTypeID: lift.ID, Score: 40},
						{EmployeeID: lee.ID, MotionTypeID: lift.ID, Score: 80},
						{EmployeeID: kim.ID, MotionTypeID: lift.ID, Score: 80},
						{EmployeeID: kim.ID, MotionTypeID: lift.ID, Score: 55},
					} {
						_, err := s.CreateUserRecording(ctx, ur)
						So(err, ShouldBeNil)
					}

					Convey("Then history is newest first and limited", func() {
						hist, err := s.ListUserRecordings(ctx, kim.ID, lift.ID, 2)
						So(err, ShouldBeNil)
						So(hist, ShouldHaveLength, 2)
						So(hist[0].Score, ShouldEqual, 55)
						So(hist[1].Score, ShouldEqual, 80)

						_, err = s.ListUserRecordings(ctx, kim.ID, "", 0)
						So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
					})

					Convey("Then best scores tie-break on employee number", func() {
						best, err := s.BestScores(ctx, lift.ID, 10)
						So(err, ShouldBeNil)
						So(best, ShouldHaveLength, 2)
						So(best[0].EmpNo, ShouldEqual, "E001")
						So(best[0].Score, ShouldEqual, 80)
						So(best[0].Attempts, ShouldEqual, 3)
						So(best[1].EmpNo, ShouldEqual, "E002")

						top, err := s.BestScores(ctx, lift.ID, 1)
						So(err, ShouldBeNil)
						So(top, ShouldHaveLength, 1)
					})
				})
			})
		})
	}
}

func TestOpen(t *testing.T) {
	Convey("Given storage drivers", t, func() {
		Convey("When opening memory", func() {
			s, err := repository.Open(repository.DriverMemory, "")
			So(err, ShouldBeNil)
			So(s, ShouldHaveSameTypeAs, &repository.MemoryStore{})
		})

		Convey("When opening a sqlite file", func() {
			dir, err := os.MkdirTemp("", "motionscore-store-*")
			So(err, ShouldBeNil)
			defer func() { _ = os.RemoveAll(dir) }()

			s, err := repository.Open(repository.DriverSQLite, filepath.Join(dir, "store.db"))
			So(err, ShouldBeNil)
			_, err = s.CreateMotionType(context.Background(), model.MotionType{Name: "squat", MaxDTWDistance: 10})
			So(err, ShouldBeNil)
			So(s.Close(), ShouldBeNil)
		})

		Convey("When the driver is unknown", func() {
			_, err := repository.Open("mongo", "")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSeed(t *testing.T) {
	Convey("Given a seed file", t, func() {
		content := `
companies:
  - name: acme
    biz_no: "123-45"
employees:
  - company: acme
    emp_no: E001
    name: Kim
devices:
  - company: acme
    device_uid: glove-1
    api_key: secret-key
motion_types:
  - name: lift_extinguisher
    description: lift a fire extinguisher
  - name: cpr
    channels: [ax, ay, az]
    max_dtw_distance: 250
`
		f, err := os.CreateTemp("", "motionscore-seed-*.yaml")
		So(err, ShouldBeNil)
		_, _ = f.WriteString(content)
		_ = f.Close()
		defer func() { _ = os.Remove(f.Name()) }()

		seed, err := repository.LoadSeed(f.Name())
		So(err, ShouldBeNil)
		So(seed.MotionTypes, ShouldHaveLength, 2)

		ctx := context.Background()
		store := repository.NewMemoryStore()

		Convey("When applied twice", func() {
			first, err := seed.Apply(ctx, store, 1000)
			So(err, ShouldBeNil)
			second, err := seed.Apply(ctx, store, 1000)
			So(err, ShouldBeNil)

			Convey("Then rows are created once", func() {
				So(first, ShouldResemble, repository.SeedResult{Companies: 1, Employees: 1, Devices: 1, MotionTypes: 2})
				So(second, ShouldResemble, repository.SeedResult{})
			})

			Convey("Then defaults and hashes are applied", func() {
				lift, err := store.GetMotionTypeByName(ctx, "lift_extinguisher")
				So(err, ShouldBeNil)
				So(lift.MaxDTWDistance, ShouldEqual, 1000)
				cpr, err := store.GetMotionTypeByName(ctx, "cpr")
				So(err, ShouldBeNil)
				So(cpr.MaxDTWDistance, ShouldEqual, 250)
				So(cpr.Channels, ShouldResemble, []string{"ax", "ay", "az"})

				dev, err := store.FindDeviceByKeyHash(ctx, repository.HashAPIKey("secret-key"))
				So(err, ShouldBeNil)
				So(dev.DeviceUID, ShouldEqual, "glove-1")
			})
		})

		Convey("When an employee names an unknown company", func() {
			bad := repository.Seed{Employees: []repository.SeedEmployee{{Company: "globex", EmpNo: "X"}}}
			_, err := bad.Apply(ctx, store, 1000)
			So(errors.Is(err, repository.ErrCompanyNotFound), ShouldBeTrue)
		})
	})
}

func TestHashAPIKey(t *testing.T) {
	Convey("Given API keys", t, func() {
		So(repository.HashAPIKey("abc"), ShouldEqual, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad")
		So(repository.HashAPIKey("abc"), ShouldNotEqual, repository.HashAPIKey("abd"))
		So(fmt.Sprint(len(repository.HashAPIKey(""))), ShouldEqual, "64")
	})
}
