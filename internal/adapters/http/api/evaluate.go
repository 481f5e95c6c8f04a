package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okian/motionscore/internal/adapters/repository"
	"github.com/okian/motionscore/internal/domain/evaluation"
	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/pkg/logger"
)

type evaluateRequest struct {
	MotionName string        `json:"motionName"`
	EmpNo      string        `json:"empNo"`
	SensorData []model.Frame `json:"sensorData"`
}

func (e evaluateRequest) validate() error {
	switch {
	case strings.TrimSpace(e.MotionName) == "":
		return errors.New("missing motionName")
	case strings.TrimSpace(e.EmpNo) == "":
		return errors.New("missing empNo")
	case len(e.SensorData) == 0:
		return errors.New("missing sensorData")
	}
	return nil
}

type evaluationBody struct {
	MotionName  string    `json:"motionName"`
	Score       float64   `json:"score"`
	Distance    float64   `json:"distance"`
	Ceiling     float64   `json:"ceiling"`
	Grade       string    `json:"grade,omitempty"`
	RecordID    string    `json:"recordId,omitempty"`
	EvaluatedAt time.Time `json:"evaluatedAt"`
}

type evaluateResponse struct {
	OK         bool            `json:"ok"`
	Code       string          `json:"code,omitempty"`
	Detail     string          `json:"detail"`
	Evaluation *evaluationBody `json:"evaluation,omitempty"`
}

func toEvaluationBody(res evaluation.Result) *evaluationBody {
	return &evaluationBody{
		MotionName:  res.MotionName,
		Score:       res.Score,
		Distance:    res.Distance,
		Ceiling:     res.Ceiling,
		Grade:       res.Grade,
		RecordID:    res.RecordID,
		EvaluatedAt: res.EvaluatedAt,
	}
}

// handleEvaluate handles POST /api/ai/evaluate/.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	const op = "api.evaluate"
	ctx := r.Context()

	var req evaluateRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}

	company, _ := CompanyFrom(ctx)
	employee, err := s.deps.Directory.FindEmployee(ctx, req.EmpNo, company.ID)
	if err != nil {
		if errors.Is(err, repository.ErrEmployeeNotFound) {
			err = fmt.Errorf("%w: employee %s does not exist in company %s", repository.ErrEmployeeNotFound, req.EmpNo, company.Name)
		}
		s.writeError(w, r, Wrap(op, err))
		return
	}

	res, err := s.deps.Evaluator.Evaluate(ctx, evaluation.Request{
		MotionName: req.MotionName,
		Employee:   employee,
		Frames:     req.SensorData,
	})
	if err != nil {
		if errors.Is(err, evaluation.ErrEvaluationPersistence) {
			// the score was computed; hand it back with the failure
			status, code := classify(err)
			s.log.Error(ctx, "evaluation not stored", logger.String("emp_no", req.EmpNo), logger.Error(err))
			writeJSON(w, status, evaluateResponse{OK: false, Code: code, Detail: detail(err), Evaluation: toEvaluationBody(res)})
			return
		}
		s.writeError(w, r, Wrap(op, err))
		return
	}

	writeJSON(w, http.StatusOK, evaluateResponse{OK: true, Detail: "evaluation completed", Evaluation: toEvaluationBody(res)})
}
