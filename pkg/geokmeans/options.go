package geokmeans

import (
	"math/rand/v2"
	"strings"

	"go.uber.org/zap"
)

// Defaults applied by New.
const (
	DefaultClusters = 8
	DefaultMaxIter  = 300
	DefaultTol      = 1e-4
)

// InitFunc produces k initial centers. x is the sample matrix in degrees and
// the returned centers must be in degrees too.
type InitFunc func(x []Point, weights []float64, k int, rng *rand.Rand) ([]Point, error)

type initKind int

const (
	initKMeansPlusPlus initKind = iota
	initRandom
	initExplicit
	initCallable
)

// Init selects how each restart picks its starting centers.
type Init struct {
	kind    initKind
	centers []Point
	fn      InitFunc
}

var (
	// InitKMeansPlusPlus is greedy k-means++ seeding under the configured metric.
	InitKMeansPlusPlus = Init{kind: initKMeansPlusPlus}
	// InitRandom draws k distinct samples with probability proportional to weight.
	InitRandom = Init{kind: initRandom}
)

// InitCenters starts every restart from the given centers (degrees).
func InitCenters(centers []Point) Init {
	cp := make([]Point, len(centers))
	copy(cp, centers)
	return Init{kind: initExplicit, centers: cp}
}

// InitWith delegates seeding to fn.
func InitWith(fn InitFunc) Init {
	return Init{kind: initCallable, fn: fn}
}

func (i Init) String() string {
	switch i.kind {
	case initRandom:
		return "random"
	case initExplicit:
		return "explicit"
	case initCallable:
		return "callable"
	default:
		return "k-means++"
	}
}

// ParseInit resolves the named init strategies ("k-means++", "random").
func ParseInit(s string) (Init, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "k-means++", "kmeans++", "k-means-plus-plus":
		return InitKMeansPlusPlus, nil
	case "random":
		return InitRandom, nil
	default:
		return Init{}, invalid("init", "unknown init %q", s)
	}
}

// Options holds the engine configuration. Use the With* options to set it.
type Options struct {
	NClusters int
	Init      Init
	NInit     int // 0 selects automatically
	MaxIter   int
	Tol       float64
	Seed      uint64
	Workers   int
	Metric    Metric
	Logger    *zap.Logger
}

// Option configures a KMeans.
type Option func(*Options)

// WithClusters sets the number of clusters.
func WithClusters(k int) Option {
	return func(o *Options) { o.NClusters = k }
}

// WithInit sets the seeding strategy.
func WithInit(in Init) Option {
	return func(o *Options) { o.Init = in }
}

// WithNInit sets the number of restarts. 0 means 1 for k-means++, explicit
// and callable init, 10 for random init.
func WithNInit(n int) Option {
	return func(o *Options) { o.NInit = n }
}

// WithMaxIter caps refinement iterations per restart.
func WithMaxIter(n int) Option {
	return func(o *Options) { o.MaxIter = n }
}

// WithTol sets the relative center-shift tolerance.
func WithTol(tol float64) Option {
	return func(o *Options) { o.Tol = tol }
}

// WithSeed fixes the random stream so fits are reproducible.
func WithSeed(seed uint64) Option {
	return func(o *Options) { o.Seed = seed }
}

// WithWorkers sets how many goroutines share the per-point work inside an
// iteration. Values <= 1 run sequentially.
func WithWorkers(n int) Option {
	return func(o *Options) { o.Workers = n }
}

// WithMetric replaces the haversine distance.
func WithMetric(m Metric) Option {
	return func(o *Options) { o.Metric = m }
}

// WithLogger sets the logger. Defaults to zap.L() at call time.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func defaultOptions() Options {
	return Options{
		NClusters: DefaultClusters,
		Init:      InitKMeansPlusPlus,
		MaxIter:   DefaultMaxIter,
		Tol:       DefaultTol,
		Workers:   1,
		Metric:    Haversine{},
	}
}

func (o Options) validate() error {
	if o.NClusters < 1 {
		return invalid("n_clusters", "must be >= 1, got %d", o.NClusters)
	}
	if o.MaxIter < 1 {
		return invalid("max_iter", "must be >= 1, got %d", o.MaxIter)
	}
	if o.Tol < 0 {
		return invalid("tol", "must be >= 0, got %g", o.Tol)
	}
	if o.NInit < 0 {
		return invalid("n_init", "must be >= 0, got %d", o.NInit)
	}
	if o.Workers < 0 {
		return invalid("workers", "must be >= 0, got %d", o.Workers)
	}
	if o.Metric == nil {
		return invalid("metric", "must not be nil")
	}
	switch o.Init.kind {
	case initExplicit:
		if len(o.Init.centers) != o.NClusters {
			return invalid("init", "got %d explicit centers for n_clusters=%d", len(o.Init.centers), o.NClusters)
		}
		for i, c := range o.Init.centers {
			if err := checkPoint("init", i, c[:]); err != nil {
				return err
			}
		}
	case initCallable:
		if o.Init.fn == nil {
			return invalid("init", "callable init is nil")
		}
	}
	return nil
}

// restarts resolves NInit.
func (o Options) restarts() int {
	if o.NInit > 0 {
		if o.Init.kind == initExplicit {
			return 1
		}
		return o.NInit
	}
	if o.Init.kind == initRandom {
		return 10
	}
	return 1
}
