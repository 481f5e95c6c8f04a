// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/motionscore/internal/domain/evaluation"
	"github.com/okian/motionscore/internal/domain/ingest"
	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/pkg/logger"
)

const (
	defaultMaxListLimit = 100
	defaultListLimit    = 20
	defaultMaxBodyBytes = 32 << 20
)

// Evaluator scores recordings and reads the evaluation audit trail.
type Evaluator interface {
	Evaluate(ctx context.Context, req evaluation.Request) (evaluation.Result, error)
	History(ctx context.Context, employee model.Employee, motionName string, limit int) ([]evaluation.HistoryEntry, error)
	Leaderboard(ctx context.Context, motionName string, limit int) ([]model.EmployeeScore, error)
}

// Ingester manages motion types and their recordings.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (ingest.Receipt, error)
	Delete(ctx context.Context, recordingID string) (ingest.Receipt, error)
	Recalibrate(ctx context.Context, motionName string) (ingest.Receipt, error)
	CreateMotionType(ctx context.Context, spec ingest.MotionTypeSpec) (model.MotionType, error)
	ListMotionTypes(ctx context.Context) ([]model.MotionType, error)
	GetMotionType(ctx context.Context, name string) (model.MotionType, error)
}

// Directory resolves devices, companies and employees.
type Directory interface {
	FindDeviceByKeyHash(ctx context.Context, keyHash string) (model.SensorDevice, error)
	GetCompany(ctx context.Context, id string) (model.Company, error)
	FindCompanyByName(ctx context.Context, name string) (model.Company, error)
	FindEmployee(ctx context.Context, empNo, companyID string) (model.Employee, error)
}

// Dependencies required by HTTP handlers.
type Dependencies struct {
	Evaluator Evaluator
	Ingester  Ingester
	Directory Directory
	Stats     StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps             Dependencies
	requireDeviceKey bool
	defaultCompany   string
	maxListLimit     int
	maxBodyBytes     int64
	log              logger.Logger

	healthHandler *HealthHandler
	statsHandler  *StatsHandler
}

// Option configures a Server.
type Option func(*Server)

// WithRequireDeviceKey toggles the X-API-Key check.
func WithRequireDeviceKey(require bool) Option {
	return func(s *Server) { s.requireDeviceKey = require }
}

// WithDefaultCompany names the company used when no device key is presented
// and keys are not required.
func WithDefaultCompany(name string) Option {
	return func(s *Server) { s.defaultCompany = name }
}

// WithMaxListLimit caps the limit query parameter.
func WithMaxListLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxListLimit = n
		}
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:             deps,
		requireDeviceKey: true,
		maxListLimit:     defaultMaxListLimit,
		maxBodyBytes:     defaultMaxBodyBytes,
		healthHandler:    NewHealthHandler(),
		statsHandler:     NewStatsHandler(deps.Stats),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Named("api")
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	device := func(h http.HandlerFunc, endpoint string) http.HandlerFunc {
		return MetricsMiddleware(s.DeviceAuth(h), endpoint)
	}
	mux.HandleFunc("POST /api/ai/evaluate/", device(s.handleEvaluate, "evaluate"))
	mux.HandleFunc("POST /api/ai/motion-recordings/", device(s.handleCreateRecording, "motion_recordings"))
	mux.HandleFunc("DELETE /api/ai/motion-recordings/{id}", device(s.handleDeleteRecording, "motion_recordings"))
	mux.HandleFunc("GET /api/ai/motion-types/", device(s.handleListMotionTypes, "motion_types"))
	mux.HandleFunc("POST /api/ai/motion-types/", device(s.handleCreateMotionType, "motion_types"))
	mux.HandleFunc("GET /api/ai/motion-types/{name}", device(s.handleGetMotionType, "motion_types"))
	mux.HandleFunc("POST /api/ai/motion-types/{name}/recalibrate", device(s.handleRecalibrate, "recalibrate"))
	mux.HandleFunc("GET /api/ai/evaluations/", device(s.handleHistory, "evaluations"))
	mux.HandleFunc("GET /api/ai/leaderboard/", device(s.handleLeaderboard, "leaderboard"))
}

type errorResponse struct {
	OK     bool   `json:"ok"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status and writes the error payload. Server-side
// failures are logged with their full chain.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := detail(err)
	if status >= http.StatusInternalServerError {
		s.log.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.String("code", code),
			logger.Error(err),
		)
		if errors.Is(err, evaluation.ErrDefect) {
			msg = http.StatusText(status)
		}
	}
	writeJSON(w, status, errorResponse{OK: false, Code: code, Detail: msg})
}

// decodeJSON reads a size-limited JSON body into v.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("body exceeds %d bytes", tooLarge.Limit)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// parseLimit reads ?limit=, defaulting when absent.
func (s *Server) parseLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return min(defaultListLimit, s.maxListLimit), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("limit must be a positive integer, got %q", raw)
	}
	if n > s.maxListLimit {
		return 0, fmt.Errorf("limit must not exceed %d", s.maxListLimit)
	}
	return n, nil
}
