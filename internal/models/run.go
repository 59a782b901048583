package models

import (
	"errors"
	"math"
	"time"
)

// Moments is the persisted form of a moment set
type Moments struct {
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	Skewness float64 `json:"skewness"`
}

// StdDev returns the standard deviation
func (m Moments) StdDev() float64 {
	return math.Sqrt(m.Variance)
}

// GridRecord is the persisted form of a discretized distribution.
// Point i sits at (Origin+i)*Step.
type GridRecord struct {
	Origin int       `json:"origin"`
	Step   float64   `json:"step"`
	Mass   []float64 `json:"mass"`
}

// GroupRecord captures the statistics of one base action group
type GroupRecord struct {
	Name    string   `json:"name"`
	Actions []string `json:"actions"`
	Moments Moments  `json:"moments"`
	P05     float64  `json:"p05"`
	P50     float64  `json:"p50"`
	P95     float64  `json:"p95"`
}

// Run represents one analyzed rotation, as stored and reported
type Run struct {
	ID        string        `json:"id"`
	Label     string        `json:"label"`
	Elapsed   float64       `json:"elapsed"`
	Total     Moments       `json:"total"`
	Groups    []GroupRecord `json:"groups"`
	Grid      *GridRecord   `json:"grid,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Validate checks that all run fields are valid
func (r *Run) Validate() error {
	if r.ID == "" {
		return errors.New("run ID must not be empty")
	}
	if r.Elapsed <= 0 {
		return errors.New("elapsed time must be positive")
	}
	if r.Total.Variance < 0 {
		return errors.New("total variance must not be negative")
	}
	if len(r.Groups) == 0 {
		return errors.New("run must contain at least one group")
	}
	if r.Grid != nil {
		if r.Grid.Step <= 0 {
			return errors.New("grid step must be positive")
		}
		if len(r.Grid.Mass) == 0 {
			return errors.New("grid must contain at least one point")
		}
	}
	if r.CreatedAt.After(time.Now()) {
		return errors.New("created at must not be in the future")
	}
	return nil
}
