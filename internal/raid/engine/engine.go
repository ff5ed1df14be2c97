// Package engine contains the raid planning business logic: resource
// calculation, damage lookup and the raid optimizer.
package engine

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/rsned/raid-optimizer-server/internal/raid/catalog"
	"github.com/rsned/raid-optimizer-server/internal/raid/solver"
	"github.com/rsned/raid-optimizer-server/pkg/raid"
)

// Defaults applied by New when Options leaves a field zero.
const (
	DefaultSolveTimeout = 10 * time.Second
	DefaultMaxInstances = 500
	DefaultMaxPatterns  = 20000
)

// Observer is notified after every optimization attempt.
type Observer interface {
	ObserveOptimize(mode raid.Mode, outcome string, duration time.Duration, nodes int)
}

// Options configures an Engine.
type Options struct {
	Solver       solver.Solver
	SolveTimeout time.Duration
	MaxInstances int
	MaxPatterns  int // hit combinations enumerated per request
	Logger       *slog.Logger
	Observer     Observer
}

// Engine is the main query engine for raid planning.
// It holds no per-call state and is safe for concurrent use.
type Engine struct {
	catalog      *catalog.Catalog
	solver       solver.Solver
	solveTimeout time.Duration
	maxInstances int
	maxPatterns  int
	logger       *slog.Logger
	observer     Observer
}

// New creates a new Engine over the given catalog.
func New(cat *catalog.Catalog, opts Options) *Engine {
	e := &Engine{
		catalog:      cat,
		solver:       opts.Solver,
		solveTimeout: opts.SolveTimeout,
		maxInstances: opts.MaxInstances,
		maxPatterns:  opts.MaxPatterns,
		logger:       opts.Logger,
		observer:     opts.Observer,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.solver == nil {
		e.solver = solver.NewBranchAndBound(0, e.logger)
	}
	if e.solveTimeout <= 0 {
		e.solveTimeout = DefaultSolveTimeout
	}
	if e.maxInstances <= 0 {
		e.maxInstances = DefaultMaxInstances
	}
	if e.maxPatterns <= 0 {
		e.maxPatterns = DefaultMaxPatterns
	}
	return e
}

// Catalog returns the catalog the engine operates over.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog
}

// resourcesFor multiplies the explosive's per-unit materials by quantity.
func resourcesFor(exp raid.Explosive, quantity int) map[string]float64 {
	out := make(map[string]float64, len(exp.RawMaterials))
	for material, amount := range exp.RawMaterials {
		out[material] = amount * float64(quantity)
	}
	return out
}

// addMaterials adds src into dst.
func addMaterials(dst, src map[string]float64) {
	for m, v := range src {
		dst[m] += v
	}
}

// sortedMaterials converts a material map into a list ordered by material name.
func sortedMaterials(m map[string]float64) []raid.MaterialAmount {
	out := make([]raid.MaterialAmount, 0, len(m))
	for material, amount := range m {
		out = append(out, raid.MaterialAmount{Material: material, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Material < out[j].Material
	})
	return out
}

// hitsNeeded returns how many hits of damage destroy hp, or 0 if damage
// rounds to nothing in fixed point.
func hitsNeeded(hp, damage float64) int {
	d := toFixed(damage)
	if d <= 0 {
		return 0
	}
	return int(ceilDiv(toFixed(hp), d))
}

// fixedScale is the fixed-point precision used when checking damage windows.
// Damage and hit points are compared in thousandths.
const fixedScale = 1000

func toFixed(v float64) int64 {
	return int64(math.Round(v * fixedScale))
}

// ceilDiv divides non-negative a by positive b, rounding up.
func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
