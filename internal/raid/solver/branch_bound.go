package solver

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// DefaultMaxNodes bounds the branch-and-bound search when no limit is configured.
const DefaultMaxNodes = 200000

const integralityTol = 1e-6

// BranchAndBound is a best-bound branch-and-bound solver. Each node's LP
// relaxation is solved with gonum's simplex.
//
// A relaxation that fails numerically ends the solve with StatusFailed even
// when an incumbent exists, since the pruned subtree may hold a better one.
type BranchAndBound struct {
	maxNodes int
	logger   *slog.Logger
	relax    relaxFunc
}

// NewBranchAndBound creates a solver that gives up after maxNodes nodes.
func NewBranchAndBound(maxNodes int, logger *slog.Logger) *BranchAndBound {
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BranchAndBound{maxNodes: maxNodes, logger: logger, relax: solveRelaxation}
}

type node struct {
	lo, hi []float64
	depth  int
	// bound is the parent's relaxation objective, a lower bound for the node.
	bound float64
	seq   int
}

// nodeQueue orders open nodes by bound, then deepest and newest first.
type nodeQueue []*node

func (q nodeQueue) Len() int { return len(q) }

func (q nodeQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.bound != b.bound {
		return a.bound < b.bound
	}
	if a.depth != b.depth {
		return a.depth > b.depth
	}
	return a.seq > b.seq
}

func (q nodeQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *nodeQueue) Push(x any) { *q = append(*q, x.(*node)) }

func (q *nodeQueue) Pop() any {
	old := *q
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*q = old[:len(old)-1]
	return n
}

// Solve implements Solver.
func (s *BranchAndBound) Solve(ctx context.Context, m *Model) (*Solution, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model: %w", err)
	}
	start := time.Now()

	lo := make([]float64, len(m.Vars))
	hi := make([]float64, len(m.Vars))
	for i, v := range m.Vars {
		lo[i], hi[i] = v.Lower, v.Upper
		if v.Integer {
			lo[i] = math.Ceil(lo[i] - integralityTol)
			if !math.IsInf(hi[i], 1) {
				hi[i] = math.Floor(hi[i] + integralityTol)
			}
		}
		if hi[i] < lo[i] {
			return &Solution{Status: StatusInfeasible, Duration: time.Since(start),
				Detail: fmt.Sprintf("variable %s has no integer value in its bounds", v.Name)}, nil
		}
	}

	integralObjective := hasIntegralObjective(m)

	var incumbent []float64
	best := math.Inf(1)
	if m.Hint != nil && m.Feasible(m.Hint, feasTol) {
		incumbent = roundIntegers(m, m.Hint)
		best = m.Evaluate(incumbent)
	}

	queue := &nodeQueue{{lo: lo, hi: hi, bound: math.Inf(-1)}}
	nodes, seq := 0, 0

	finish := func(status Status, detail string) *Solution {
		sol := &Solution{Status: status, Nodes: nodes, Duration: time.Since(start), Detail: detail}
		if status == StatusOptimal {
			sol.Values = incumbent
			sol.Objective = best
		}
		s.logger.Debug("branch and bound finished",
			"model", m.Name, "status", status.String(), "nodes", nodes,
			"objective", sol.Objective, "duration", sol.Duration)
		return sol
	}

	for queue.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return finish(contextStatus(err), err.Error()), nil
		}
		if nodes >= s.maxNodes {
			return finish(StatusNodeLimit, fmt.Sprintf("node limit %d reached", s.maxNodes)), nil
		}

		nd := heap.Pop(queue).(*node)
		if nd.bound >= best-integralityTol {
			continue
		}
		nodes++

		relax := s.relax(ctx, m, nd.lo, nd.hi)
		switch relax.status {
		case relaxInfeasible:
			continue
		case relaxUnbounded:
			return finish(StatusFailed, "relaxation is unbounded"), nil
		case relaxCanceled:
			return finish(contextStatus(relax.err), relax.err.Error()), nil
		case relaxFailed:
			s.logger.Debug("relaxation failed", "model", m.Name, "depth", nd.depth, "error", relax.err)
			return finish(StatusFailed, fmt.Sprintf("relaxation failed at depth %d: %v", nd.depth, relax.err)), nil
		}

		bound := relax.objective
		if integralObjective {
			bound = math.Ceil(bound - integralityTol)
		}
		if bound >= best-integralityTol {
			continue
		}

		j := mostFractional(m, relax.x)
		if j < 0 {
			x := roundIntegers(m, relax.x)
			if !m.Feasible(x, feasTol) {
				return finish(StatusFailed, fmt.Sprintf("rounded relaxation violates constraints at depth %d", nd.depth)), nil
			}
			if obj := m.Evaluate(x); obj < best {
				incumbent, best = x, obj
			}
			continue
		}

		v := relax.x[j]
		// Up is pushed last so it wins ties: covering rows are satisfied sooner by rounding up.
		seq++
		heap.Push(queue, &node{lo: nd.lo, hi: cloneWith(nd.hi, j, math.Floor(v)), depth: nd.depth + 1, bound: bound, seq: seq})
		seq++
		heap.Push(queue, &node{lo: cloneWith(nd.lo, j, math.Ceil(v)), hi: nd.hi, depth: nd.depth + 1, bound: bound, seq: seq})
	}

	if incumbent == nil {
		return finish(StatusInfeasible, "no integer solution exists"), nil
	}
	return finish(StatusOptimal, ""), nil
}

func contextStatus(err error) Status {
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimedOut
	}
	return StatusCanceled
}

func hasIntegralObjective(m *Model) bool {
	for _, t := range m.Objective {
		if !m.Vars[t.Var].Integer || t.Coef != math.Trunc(t.Coef) {
			return false
		}
	}
	return true
}

func mostFractional(m *Model, x []float64) int {
	best, bestFrac := -1, integralityTol
	for j, v := range m.Vars {
		if !v.Integer {
			continue
		}
		f := math.Abs(x[j] - math.Round(x[j]))
		if f > bestFrac {
			best, bestFrac = j, f
		}
	}
	return best
}

func roundIntegers(m *Model, x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range m.Vars {
		if v.Integer {
			out[j] = math.Round(x[j])
		} else {
			out[j] = x[j]
		}
	}
	return out
}

func cloneWith(bounds []float64, j int, v float64) []float64 {
	out := make([]float64, len(bounds))
	copy(out, bounds)
	out[j] = v
	return out
}
