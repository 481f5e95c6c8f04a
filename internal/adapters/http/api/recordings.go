package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/okian/motionscore/internal/domain/calibration"
	"github.com/okian/motionscore/internal/domain/ingest"
	"github.com/okian/motionscore/internal/domain/model"
)

type recordingRequest struct {
	MotionName    string        `json:"motionName"`
	ScoreCategory string        `json:"scoreCategory"`
	SensorData    []model.Frame `json:"sensorData"`
	RecordingKey  string        `json:"recordingKey,omitempty"`
}

func (rr recordingRequest) validate() error {
	switch {
	case strings.TrimSpace(rr.MotionName) == "":
		return errors.New("missing motionName")
	case strings.TrimSpace(rr.ScoreCategory) == "":
		return errors.New("missing scoreCategory")
	}
	return nil
}

type recordingBody struct {
	ID            string    `json:"id"`
	MotionTypeID  string    `json:"motionTypeId"`
	ScoreCategory string    `json:"scoreCategory"`
	DataFrames    int       `json:"dataFrames"`
	Channels      []string  `json:"channels"`
	RecordedAt    time.Time `json:"recordedAt"`
}

type calibrationBody struct {
	MotionName string  `json:"motionName"`
	Previous   float64 `json:"previousMaxDtwDistance"`
	Ceiling    float64 `json:"maxDtwDistance"`
	Updated    bool    `json:"updated"`
	References int     `json:"references"`
	ZeroScores int     `json:"zeroScores"`
	Pairs      int     `json:"pairs"`
	Warning    string  `json:"warning,omitempty"`
}

type receiptResponse struct {
	OK          bool             `json:"ok"`
	Detail      string           `json:"detail"`
	Duplicate   bool             `json:"duplicate,omitempty"`
	Recording   *recordingBody   `json:"recording,omitempty"`
	Calibration *calibrationBody `json:"calibration,omitempty"`
}

func toCalibrationBody(out calibration.Outcome, warning error) *calibrationBody {
	b := &calibrationBody{
		MotionName: out.MotionName,
		Previous:   out.Previous,
		Ceiling:    out.Ceiling,
		Updated:    out.Updated,
		References: out.References,
		ZeroScores: out.ZeroScores,
		Pairs:      out.Pairs,
	}
	if warning != nil {
		b.Warning = warning.Error()
	}
	return b
}

func toReceiptResponse(rc ingest.Receipt, detail string) receiptResponse {
	resp := receiptResponse{OK: true, Detail: detail, Calibration: toCalibrationBody(rc.Calibration, rc.Warning)}
	if rc.Recording.ID != "" {
		resp.Recording = &recordingBody{
			ID:            rc.Recording.ID,
			MotionTypeID:  rc.Recording.MotionTypeID,
			ScoreCategory: string(rc.Recording.Category),
			DataFrames:    rc.Recording.DataFrames,
			Channels:      rc.Recording.Channels,
			RecordedAt:    rc.Recording.RecordedAt,
		}
	}
	return resp
}

// handleCreateRecording handles POST /api/ai/motion-recordings/.
func (s *Server) handleCreateRecording(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_recording"

	var req recordingRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}

	rc, err := s.deps.Ingester.Ingest(r.Context(), ingest.Request{
		MotionName:   req.MotionName,
		Category:     req.ScoreCategory,
		Frames:       req.SensorData,
		RecordingKey: req.RecordingKey,
	})
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	if rc.Duplicate {
		writeJSON(w, http.StatusOK, receiptResponse{OK: true, Detail: "duplicate recording ignored", Duplicate: true})
		return
	}
	writeJSON(w, http.StatusCreated, toReceiptResponse(rc, "recording stored"))
}

// handleDeleteRecording handles DELETE /api/ai/motion-recordings/{id}.
func (s *Server) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_recording"
	id := r.PathValue("id")
	if strings.TrimSpace(id) == "" {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, errors.New("missing recording id")))
		return
	}
	rc, err := s.deps.Ingester.Delete(r.Context(), id)
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, toReceiptResponse(rc, "recording deleted"))
}
