package geokmeans

import (
	"context"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// RestartSummary describes one independent restart of a Fit.
type RestartSummary struct {
	Seed        uint64  `json:"seed"`
	Inertia     float64 `json:"inertia"`
	NIter       int     `json:"n_iter"`
	Converged   bool    `json:"converged"`
	Kept        bool    `json:"kept"`
	BestInertia float64 `json:"best_inertia"` // retained inertia after this restart
}

// Result is the fitted state of a KMeans.
type Result struct {
	Labels    []int            `json:"labels"`
	Centers   []Point          `json:"centers"`
	Inertia   float64          `json:"inertia"`
	NIter     int              `json:"n_iter"`
	Converged bool             `json:"converged"`
	Restarts  []RestartSummary `json:"restarts"`
	Warnings  []error          `json:"-"`
}

// NClusters returns the number of centers.
func (r *Result) NClusters() int { return len(r.Centers) }

// Sizes returns the number of samples assigned to each cluster.
func (r *Result) Sizes() []int {
	sizes := make([]int, len(r.Centers))
	for _, l := range r.Labels {
		sizes[l]++
	}
	return sizes
}

func (r *Result) clone() *Result {
	c := *r
	c.Labels = slices.Clone(r.Labels)
	c.Centers = slices.Clone(r.Centers)
	c.Restarts = slices.Clone(r.Restarts)
	c.Warnings = slices.Clone(r.Warnings)
	return &c
}

// KMeans clusters geographic points under a pluggable distance, haversine by
// default. A KMeans is safe for concurrent queries; Fit replaces the fitted
// state atomically.
type KMeans struct {
	opts Options

	mu     sync.RWMutex
	fitted *Result
	proj   []Point // fitted centers in the metric's space
}

// New creates a KMeans with the given options applied over the defaults.
func New(opts ...Option) (*KMeans, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	return &KMeans{opts: o}, nil
}

// Options returns the effective configuration.
func (km *KMeans) Options() Options { return km.opts }

func (km *KMeans) log() *zap.Logger {
	if km.opts.Logger != nil {
		return km.opts.Logger
	}
	return zap.L()
}

// Fit clusters x (rows of [lon, lat] in degrees). weights may be nil for
// uniform weights. The best of the configured restarts is kept and stored.
func (km *KMeans) Fit(ctx context.Context, x [][]float64, weights []float64) (*Result, error) {
	k := km.opts.NClusters
	pts, w, err := checkSamples(x, weights, k)
	if err != nil {
		return nil, err
	}

	m := km.opts.Metric
	xp := make([]Point, len(pts))
	for i, p := range pts {
		xp[i] = m.Project(p)
	}
	tol := tolerance(xp, km.opts.Tol)

	nInit := km.opts.restarts()
	if km.opts.Init.kind == initExplicit && km.opts.NInit > 1 {
		km.log().Debug("geokmeans: explicit initial centers given, running a single restart",
			zap.Int("n_init", km.opts.NInit))
	}

	master := rand.New(rand.NewPCG(km.opts.Seed, km.opts.Seed^0x9e3779b97f4a7c15))

	var best *Result
	var bestProj []Point
	summaries := make([]RestartSummary, 0, nInit)
	for r := 0; r < nInit; r++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrapf(err, "geokmeans: fit restart %d", r)
		}
		seed := master.Uint64()
		rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

		start, err := km.initialCenters(pts, xp, w, rng)
		if err != nil {
			return nil, err
		}

		ws := newWorkspace(m, xp, w, start, km.opts.Workers)
		nIter, converged, err := ws.run(ctx, km.opts.MaxIter, tol)
		if err != nil {
			return nil, err
		}
		inertia := ws.inertia()

		sum := RestartSummary{Seed: seed, Inertia: inertia, NIter: nIter, Converged: converged}
		if best == nil || (inertia < best.Inertia && !sameClustering(ws.labels, best.Labels, k)) {
			best = &Result{
				Labels:    slices.Clone(ws.labels),
				Inertia:   inertia,
				NIter:     nIter,
				Converged: converged,
			}
			bestProj = slices.Clone(ws.centers)
			sum.Kept = true
		}
		sum.BestInertia = best.Inertia
		summaries = append(summaries, sum)

		km.log().Debug("geokmeans: restart complete",
			zap.Int("restart", r),
			zap.Float64("inertia", inertia),
			zap.Int("n_iter", nIter),
			zap.Bool("converged", converged),
			zap.Bool("kept", sum.Kept),
		)
	}

	best.Centers = make([]Point, k)
	for j, c := range bestProj {
		best.Centers[j] = m.Unproject(c)
	}
	best.Restarts = summaries

	if distinct := countDistinct(best.Labels, k); distinct < k {
		warn := &DegenerateClusteringWarning{Requested: k, Distinct: distinct}
		best.Warnings = append(best.Warnings, warn)
		km.log().Warn(warn.Error(),
			zap.Int("n_clusters", k),
			zap.Int("distinct", distinct),
		)
	}

	km.mu.Lock()
	km.fitted = best
	km.proj = bestProj
	km.mu.Unlock()

	return best.clone(), nil
}

func (km *KMeans) initialCenters(pts, xp []Point, w []float64, rng *rand.Rand) ([]Point, error) {
	m := km.opts.Metric
	k := km.opts.NClusters
	switch km.opts.Init.kind {
	case initRandom:
		return randomCenters(xp, w, k, rng)
	case initExplicit:
		out := make([]Point, k)
		for j, c := range km.opts.Init.centers {
			out[j] = m.Project(c)
		}
		return out, nil
	case initCallable:
		centers, err := km.opts.Init.fn(slices.Clone(pts), slices.Clone(w), k, rng)
		if err != nil {
			return nil, err
		}
		if len(centers) != k {
			return nil, invalid("init", "callable returned %d centers for n_clusters=%d", len(centers), k)
		}
		out := make([]Point, k)
		for j, c := range centers {
			if err := checkPoint("init", j, c[:]); err != nil {
				return nil, err
			}
			out[j] = m.Project(c)
		}
		return out, nil
	default:
		return kmeansPlusPlus(m, xp, w, k, rng), nil
	}
}

// Result returns a copy of the fitted state.
func (km *KMeans) Result() (*Result, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()
	if km.fitted == nil {
		return nil, ErrNotFitted
	}
	return km.fitted.clone(), nil
}

// Restore builds a KMeans already fitted to centers (degrees), so a stored
// model can answer Predict, Transform and Score without refitting. The
// restored Result carries the centers only.
func Restore(centers []Point, opts ...Option) (*KMeans, error) {
	opts = append(opts, WithClusters(len(centers)), WithInit(InitCenters(centers)))
	km, err := New(opts...)
	if err != nil {
		return nil, err
	}

	m := km.opts.Metric
	proj := make([]Point, len(centers))
	for j, c := range km.opts.Init.centers {
		proj[j] = m.Project(c)
	}
	km.fitted = &Result{Centers: slices.Clone(km.opts.Init.centers)}
	km.proj = proj
	return km, nil
}

// fittedCenters returns the projected centers, or ErrNotFitted.
func (km *KMeans) fittedCenters() ([]Point, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()
	if km.fitted == nil {
		return nil, ErrNotFitted
	}
	return km.proj, nil
}

// Transform returns, for each row of x, its distance to every fitted center.
// For the haversine metric distances are radians on the unit sphere; scale by
// the Earth's radius for a physical distance.
func (km *KMeans) Transform(x [][]float64) ([][]float64, error) {
	centers, err := km.fittedCenters()
	if err != nil {
		return nil, err
	}
	pts, err := checkMatrix(x)
	if err != nil {
		return nil, err
	}

	m := km.opts.Metric
	out := make([][]float64, len(pts))
	parallelFor(km.opts.Workers, len(pts), func(from, to int) {
		for i := from; i < to; i++ {
			p := m.Project(pts[i])
			row := make([]float64, len(centers))
			for j, c := range centers {
				row[j] = m.Distance(p, c)
			}
			out[i] = row
		}
	})
	return out, nil
}

// Predict returns the index of the closest fitted center for each row of x.
func (km *KMeans) Predict(x [][]float64) ([]int, error) {
	centers, err := km.fittedCenters()
	if err != nil {
		return nil, err
	}
	pts, err := checkMatrix(x)
	if err != nil {
		return nil, err
	}

	m := km.opts.Metric
	labels := make([]int, len(pts))
	parallelFor(km.opts.Workers, len(pts), func(from, to int) {
		for i := from; i < to; i++ {
			labels[i], _ = nearestCenter(m, m.Project(pts[i]), centers)
		}
	})
	return labels, nil
}

// Score returns the negative weighted inertia of x against the fitted centers.
func (km *KMeans) Score(x [][]float64, weights []float64) (float64, error) {
	centers, err := km.fittedCenters()
	if err != nil {
		return 0, err
	}
	pts, err := checkMatrix(x)
	if err != nil {
		return 0, err
	}
	w, err := checkWeights(weights, len(pts))
	if err != nil {
		return 0, err
	}

	m := km.opts.Metric
	var total float64
	for i, p := range pts {
		_, d := nearestCenter(m, m.Project(p), centers)
		total += w[i] * m.Cost(d)
	}
	return -total, nil
}

// FitPredict fits and returns the labels.
func (km *KMeans) FitPredict(ctx context.Context, x [][]float64, weights []float64) ([]int, error) {
	res, err := km.Fit(ctx, x, weights)
	if err != nil {
		return nil, err
	}
	return res.Labels, nil
}

// FitTransform fits and returns the distances of x to the fitted centers.
func (km *KMeans) FitTransform(ctx context.Context, x [][]float64, weights []float64) ([][]float64, error) {
	if _, err := km.Fit(ctx, x, weights); err != nil {
		return nil, err
	}
	return km.Transform(x)
}

// tolerance scales tol by the mean per-column variance of x.
func tolerance(x []Point, tol float64) float64 {
	if tol == 0 {
		return 0
	}
	col := make([]float64, len(x))
	var mean float64
	for d := 0; d < 2; d++ {
		for i, p := range x {
			col[i] = p[d]
		}
		mean += stat.PopVariance(col, nil)
	}
	return mean / 2 * tol
}

// sameClustering reports whether two labelings describe the same partition up
// to a renaming of the labels. The renaming must be one-to-one, so a labeling
// never matches a coarser one.
func sameClustering(a, b []int, k int) bool {
	fwd := make([]int, k)
	rev := make([]int, k)
	for i := range fwd {
		fwd[i], rev[i] = -1, -1
	}
	for i := range a {
		switch {
		case fwd[a[i]] == -1 && rev[b[i]] == -1:
			fwd[a[i]], rev[b[i]] = b[i], a[i]
		case fwd[a[i]] != b[i] || rev[b[i]] != a[i]:
			return false
		}
	}
	return true
}

func countDistinct(labels []int, k int) int {
	seen := make([]bool, k)
	n := 0
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			n++
		}
	}
	return n
}
