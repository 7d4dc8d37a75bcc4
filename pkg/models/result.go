package models

import (
	"math"
	"time"
)

// SessionResult summarizes a completed study session.
type SessionResult struct {
	ID         string     `json:"id"`
	UserID     int64      `json:"user_id"`
	Level      int        `json:"level"`
	Mode       ReviewMode `json:"mode"`
	Total      int        `json:"total"`
	Correct    int        `json:"correct"`
	Mistakes   []Item     `json:"mistakes"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

// Percentage returns the rounded share of correct answers, 0 for empty sessions.
func (r SessionResult) Percentage() int {
	if r.Total == 0 {
		return 0
	}
	return int(math.Round(float64(r.Correct) / float64(r.Total) * 100))
}

// Duration is the wall time the session took.
func (r SessionResult) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
