package api

import (
	"net/http"
	"time"

	"github.com/okian/motionscore/internal/domain/ingest"
	"github.com/okian/motionscore/internal/domain/model"
)

type motionTypeRequest struct {
	MotionName     string   `json:"motionName"`
	Description    string   `json:"description"`
	Channels       []string `json:"channels"`
	MaxDTWDistance float64  `json:"maxDtwDistance"`
}

type motionTypeBody struct {
	ID             string    `json:"id"`
	MotionName     string    `json:"motionName"`
	Description    string    `json:"description,omitempty"`
	Channels       []string  `json:"channels,omitempty"`
	MaxDTWDistance float64   `json:"maxDtwDistance"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func toMotionTypeBody(mt model.MotionType) motionTypeBody {
	return motionTypeBody{
		ID:             mt.ID,
		MotionName:     mt.Name,
		Description:    mt.Description,
		Channels:       mt.Channels,
		MaxDTWDistance: mt.MaxDTWDistance,
		CreatedAt:      mt.CreatedAt,
		UpdatedAt:      mt.UpdatedAt,
	}
}

// handleListMotionTypes handles GET /api/ai/motion-types/.
func (s *Server) handleListMotionTypes(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_motion_types"
	types, err := s.deps.Ingester.ListMotionTypes(r.Context())
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	out := make([]motionTypeBody, len(types))
	for i, mt := range types {
		out[i] = toMotionTypeBody(mt)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateMotionType handles POST /api/ai/motion-types/.
func (s *Server) handleCreateMotionType(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_motion_type"
	var req motionTypeRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	mt, err := s.deps.Ingester.CreateMotionType(r.Context(), ingest.MotionTypeSpec{
		Name:           req.MotionName,
		Description:    req.Description,
		Channels:       req.Channels,
		MaxDTWDistance: req.MaxDTWDistance,
	})
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, toMotionTypeBody(mt))
}

// handleGetMotionType handles GET /api/ai/motion-types/{name}.
func (s *Server) handleGetMotionType(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_motion_type"
	mt, err := s.deps.Ingester.GetMotionType(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, toMotionTypeBody(mt))
}

// handleRecalibrate handles POST /api/ai/motion-types/{name}/recalibrate.
func (s *Server) handleRecalibrate(w http.ResponseWriter, r *http.Request) {
	const op = "api.recalibrate"
	rc, err := s.deps.Ingester.Recalibrate(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, toReceiptResponse(rc, "recalibrated"))
}
