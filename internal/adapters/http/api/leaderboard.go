package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okian/motionscore/internal/adapters/repository"
	"github.com/okian/motionscore/internal/domain/types"
)

type historyEntry struct {
	RecordID   string    `json:"recordId"`
	MotionName string    `json:"motionName"`
	Score      float64   `json:"score"`
	RecordedAt time.Time `json:"recordedAt"`
}

type historyResponse struct {
	EmpNo       string         `json:"empNo"`
	Evaluations []historyEntry `json:"evaluations"`
}

type leaderboardResponse struct {
	MotionName string        `json:"motionName"`
	Entries    []types.Entry `json:"entries"`
}

// handleHistory handles GET /api/ai/evaluations/?empNo=&motionName=&limit=.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.evaluations"
	ctx := r.Context()
	q := r.URL.Query()

	empNo := strings.TrimSpace(q.Get("empNo"))
	if empNo == "" {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, errors.New("missing empNo")))
		return
	}
	limit, err := s.parseLimit(r)
	if err != nil {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}

	company, _ := CompanyFrom(ctx)
	employee, err := s.deps.Directory.FindEmployee(ctx, empNo, company.ID)
	if err != nil {
		if errors.Is(err, repository.ErrEmployeeNotFound) {
			err = fmt.Errorf("%w: employee %s does not exist in company %s", repository.ErrEmployeeNotFound, empNo, company.Name)
		}
		s.writeError(w, r, Wrap(op, err))
		return
	}

	entries, err := s.deps.Evaluator.History(ctx, employee, strings.TrimSpace(q.Get("motionName")), limit)
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	out := historyResponse{EmpNo: empNo, Evaluations: make([]historyEntry, len(entries))}
	for i, e := range entries {
		out.Evaluations[i] = historyEntry{RecordID: e.RecordID, MotionName: e.MotionName, Score: e.Score, RecordedAt: e.RecordedAt}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleLeaderboard handles GET /api/ai/leaderboard/?motionName=&limit=.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.leaderboard"
	motionName := strings.TrimSpace(r.URL.Query().Get("motionName"))
	if motionName == "" {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, errors.New("missing motionName")))
		return
	}
	limit, err := s.parseLimit(r)
	if err != nil {
		s.writeError(w, r, WrapKind(op, ErrBadRequest, err))
		return
	}
	scores, err := s.deps.Evaluator.Leaderboard(r.Context(), motionName, limit)
	if err != nil {
		s.writeError(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, leaderboardResponse{MotionName: motionName, Entries: types.Ranked(scores)})
}
