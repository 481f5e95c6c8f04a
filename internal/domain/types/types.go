// Package types contains read shapes shared by the transport adapters.
package types

import "github.com/okian/motionscore/internal/domain/model"

// Entry represents a leaderboard entry.
type Entry struct {
	Rank     int     `json:"rank"`
	EmpNo    string  `json:"empNo"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
	Attempts int     `json:"attempts"`
}

// Ranked turns best scores, ordered by score descending, into leaderboard
// entries. Equal scores share a rank and the next rank skips accordingly
// (1, 1, 3).
func Ranked(scores []model.EmployeeScore) []Entry {
	out := make([]Entry, len(scores))
	for i, s := range scores {
		rank := i + 1
		if i > 0 && s.Score == scores[i-1].Score {
			rank = out[i-1].Rank
		}
		out[i] = Entry{Rank: rank, EmpNo: s.EmpNo, Name: s.Name, Score: s.Score, Attempts: s.Attempts}
	}
	return out
}
