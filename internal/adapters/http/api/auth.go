package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/okian/motionscore/internal/adapters/repository"
	"github.com/okian/motionscore/internal/domain/model"
)

// APIKeyHeader carries the sensor device key.
const APIKeyHeader = "X-API-Key"

type ctxKey int

const (
	companyKey ctxKey = iota
	deviceKey
)

// CompanyFrom returns the company attached by DeviceAuth.
func CompanyFrom(ctx context.Context) (model.Company, bool) {
	c, ok := ctx.Value(companyKey).(model.Company)
	return c, ok
}

// DeviceFrom returns the authenticated device, if any.
func DeviceFrom(ctx context.Context) (model.SensorDevice, bool) {
	d, ok := ctx.Value(deviceKey).(model.SensorDevice)
	return d, ok
}

// DeviceAuth resolves the X-API-Key header to an active device and attaches
// the device and its company to the request context. When keys are not
// required a request without a key runs as the default company.
func (s *Server) DeviceAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "api.device_auth"
		ctx := r.Context()

		key := strings.TrimSpace(r.Header.Get(APIKeyHeader))
		if key == "" {
			if s.requireDeviceKey {
				s.writeError(w, r, WrapKind(op, ErrUnauthorized, errors.New("X-API-Key header is required")))
				return
			}
			company, err := s.deps.Directory.FindCompanyByName(ctx, s.defaultCompany)
			if err != nil {
				s.writeError(w, r, Wrap(op, err))
				return
			}
			next(w, r.WithContext(context.WithValue(ctx, companyKey, company)))
			return
		}

		device, err := s.deps.Directory.FindDeviceByKeyHash(ctx, repository.HashAPIKey(key))
		if err != nil {
			if errors.Is(err, repository.ErrDeviceNotFound) {
				s.writeError(w, r, WrapKind(op, ErrUnauthorized, errors.New("invalid API key")))
				return
			}
			s.writeError(w, r, Wrap(op, err))
			return
		}
		company, err := s.deps.Directory.GetCompany(ctx, device.CompanyID)
		if err != nil {
			s.writeError(w, r, Wrap(op, err))
			return
		}
		ctx = context.WithValue(ctx, deviceKey, device)
		ctx = context.WithValue(ctx, companyKey, company)
		next(w, r.WithContext(ctx))
	}
}
