package model

import (
	"time"

	"github.com/sells-group/geocluster/pkg/geokmeans"
)

// RunStatus represents the current state of a clustering run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusQueued, RunStatusRunning, RunStatusComplete, RunStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are expected.
func (s RunStatus) Terminal() bool {
	return s == RunStatusComplete || s == RunStatusFailed
}

// RunParams records the configuration a run was fitted with.
type RunParams struct {
	NClusters int     `json:"n_clusters" yaml:"n_clusters"`
	Init      string  `json:"init" yaml:"init"`
	NInit     int     `json:"n_init" yaml:"n_init"`
	MaxIter   int     `json:"max_iter" yaml:"max_iter"`
	Tol       float64 `json:"tol" yaml:"tol"`
	Seed      uint64  `json:"seed" yaml:"seed"`
	Metric    string  `json:"metric" yaml:"metric"`
	Source    string  `json:"source,omitempty" yaml:"source,omitempty"` // input file or "api"
	NPoints   int     `json:"n_points" yaml:"n_points"`
}

// ParamsFromOptions captures the engine options of a run.
func ParamsFromOptions(o geokmeans.Options, source string, nPoints int) RunParams {
	p := RunParams{
		NClusters: o.NClusters,
		Init:      o.Init.String(),
		NInit:     o.NInit,
		MaxIter:   o.MaxIter,
		Tol:       o.Tol,
		Seed:      o.Seed,
		Source:    source,
		NPoints:   nPoints,
	}
	if o.Metric != nil {
		p.Metric = o.Metric.Name()
	}
	return p
}

// Restart is the per-restart summary kept with a run.
type Restart struct {
	Seed        uint64  `json:"seed"`
	Inertia     float64 `json:"inertia"`
	NIter       int     `json:"n_iter"`
	Converged   bool    `json:"converged"`
	Kept        bool    `json:"kept"`
	BestInertia float64 `json:"best_inertia"`
}

// RunResult holds the fitted partition of a run.
type RunResult struct {
	Labels    []int        `json:"labels"`
	Centers   [][2]float64 `json:"centers"` // lon, lat degrees
	Sizes     []int        `json:"sizes"`
	Inertia   float64      `json:"inertia"`
	NIter     int          `json:"n_iter"`
	Converged bool         `json:"converged"`
	Restarts  []Restart    `json:"restarts,omitempty"`
	Warnings  []string     `json:"warnings,omitempty"`
}

// NewRunResult converts an engine result into its stored form.
func NewRunResult(res *geokmeans.Result) *RunResult {
	out := &RunResult{
		Labels:    append([]int(nil), res.Labels...),
		Centers:   make([][2]float64, len(res.Centers)),
		Sizes:     res.Sizes(),
		Inertia:   res.Inertia,
		NIter:     res.NIter,
		Converged: res.Converged,
	}
	for i, c := range res.Centers {
		out.Centers[i] = [2]float64(c)
	}
	for _, r := range res.Restarts {
		out.Restarts = append(out.Restarts, Restart(r))
	}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, w.Error())
	}
	return out
}

// CenterPoints returns the centers in the engine's point type.
func (r *RunResult) CenterPoints() []geokmeans.Point {
	pts := make([]geokmeans.Point, len(r.Centers))
	for i, c := range r.Centers {
		pts[i] = geokmeans.Point(c)
	}
	return pts
}

// Run represents a single clustering run.
type Run struct {
	ID        string     `json:"id"`
	Status    RunStatus  `json:"status"`
	Params    RunParams  `json:"params"`
	Result    *RunResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
