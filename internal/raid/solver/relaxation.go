package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	simplexTol = 1e-10
	feasTol    = 1e-7
)

type relaxStatus int

const (
	relaxOptimal relaxStatus = iota
	relaxInfeasible
	relaxUnbounded
	relaxFailed
	relaxCanceled
)

// relaxFunc solves one node's relaxation. BranchAndBound calls it through a
// field so tests can substitute failures.
type relaxFunc func(ctx context.Context, m *Model, lo, hi []float64) relaxation

type relaxation struct {
	status    relaxStatus
	x         []float64
	objective float64
	err       error
}

type stdRow struct {
	a     []float64
	slack float64 // +1, -1, or 0 for equality rows
	b     float64
}

// solveRelaxation solves the LP relaxation of m with the variable bounds
// replaced by lo and hi. It returns relaxCanceled as soon as ctx is done.
//
// Every variable is shifted to y = x - lo so the standard form only needs
// y >= 0. Fixed variables are substituted out, finite upper bounds become
// rows, and every inequality gets its own slack column, which keeps the
// constraint matrix at full row rank as gonum's simplex requires.
func solveRelaxation(ctx context.Context, m *Model, lo, hi []float64) relaxation {
	n := len(m.Vars)
	x := make([]float64, n)
	col := make([]int, n)
	cols := 0
	for j := 0; j < n; j++ {
		x[j] = lo[j]
		if hi[j]-lo[j] <= feasTol {
			col[j] = -1
			continue
		}
		col[j] = cols
		cols++
	}

	var rows []stdRow
	for j := 0; j < n; j++ {
		if col[j] < 0 || math.IsInf(hi[j], 1) {
			continue
		}
		a := make([]float64, cols)
		a[col[j]] = 1
		rows = append(rows, stdRow{a: a, slack: 1, b: hi[j] - lo[j]})
	}

	for _, c := range m.Constraints {
		a := make([]float64, cols)
		rhs := c.RHS
		for _, t := range c.Terms {
			rhs -= t.Coef * lo[t.Var]
			if k := col[t.Var]; k >= 0 {
				a[k] += t.Coef
			}
		}
		if !anyNonZero(a) {
			if !holdsAtZero(c.Sense, rhs) {
				return relaxation{status: relaxInfeasible}
			}
			continue
		}
		var slack float64
		switch c.Sense {
		case LessEqual:
			slack = 1
		case GreaterEqual:
			slack = -1
		}
		if rhs < 0 {
			for k := range a {
				a[k] = -a[k]
			}
			slack, rhs = -slack, -rhs
		}
		rows = append(rows, stdRow{a: a, slack: slack, b: rhs})
	}

	cost := make([]float64, cols)
	for _, t := range m.Objective {
		if k := col[t.Var]; k >= 0 {
			cost[k] += t.Coef
		}
	}

	// Columns that appear in no row are unconstrained above; they sit at
	// their lower bound unless the objective rewards increasing them.
	used := make([]bool, cols)
	for _, r := range rows {
		for k, v := range r.a {
			if v != 0 {
				used[k] = true
			}
		}
	}
	remap := make([]int, cols)
	structural := 0
	for k := 0; k < cols; k++ {
		if !used[k] {
			if cost[k] < 0 {
				return relaxation{status: relaxUnbounded}
			}
			remap[k] = -1
			continue
		}
		remap[k] = structural
		structural++
	}

	if len(rows) == 0 {
		return relaxation{status: relaxOptimal, x: x, objective: m.Evaluate(x)}
	}

	slacks := 0
	for _, r := range rows {
		if r.slack != 0 {
			slacks++
		}
	}
	total := structural + slacks
	if len(rows) > total {
		return relaxation{status: relaxFailed, err: fmt.Errorf("standard form has %d rows and only %d columns", len(rows), total)}
	}

	A := mat.NewDense(len(rows), total, nil)
	b := make([]float64, len(rows))
	c := make([]float64, total)
	for k := 0; k < cols; k++ {
		if remap[k] >= 0 {
			c[remap[k]] = cost[k]
		}
	}
	s := structural
	for i, r := range rows {
		for k, v := range r.a {
			if v != 0 {
				A.Set(i, remap[k], v)
			}
		}
		if r.slack != 0 {
			A.Set(i, s, r.slack)
			s++
		}
		b[i] = r.b
	}

	y, err := simplexContext(ctx, c, A, b)
	if err != nil {
		switch {
		case ctx.Err() != nil && errors.Is(err, ctx.Err()):
			return relaxation{status: relaxCanceled, err: err}
		case errors.Is(err, lp.ErrInfeasible):
			return relaxation{status: relaxInfeasible}
		case errors.Is(err, lp.ErrUnbounded):
			return relaxation{status: relaxUnbounded}
		default:
			return relaxation{status: relaxFailed, err: err}
		}
	}

	for j := 0; j < n; j++ {
		k := col[j]
		if k < 0 || remap[k] < 0 {
			continue
		}
		v := y[remap[k]]
		if v < 0 {
			v = 0
		}
		x[j] = lo[j] + v
	}
	return relaxation{status: relaxOptimal, x: x, objective: m.Evaluate(x)}
}

type simplexResult struct {
	x   []float64
	err error
}

// simplexContext runs simplex on its own goroutine so a done context is
// noticed mid-solve. lp.Simplex cannot be interrupted: an abandoned call
// finishes the current relaxation in the background and its result is dropped.
func simplexContext(ctx context.Context, c []float64, A *mat.Dense, b []float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	done := make(chan simplexResult, 1)
	go func() {
		_, x, err := simplex(c, A, b)
		done <- simplexResult{x: x, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.x, r.err
	}
}

// simplex calls lp.Simplex, turning its dimension panics into errors.
func simplex(c []float64, A *mat.Dense, b []float64) (opt float64, x []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("simplex: %v", r)
		}
	}()
	return lp.Simplex(c, A, b, simplexTol, nil)
}

func anyNonZero(a []float64) bool {
	for _, v := range a {
		if v != 0 {
			return true
		}
	}
	return false
}

func holdsAtZero(sense Sense, rhs float64) bool {
	tol := feasTol * math.Max(1, math.Abs(rhs))
	switch sense {
	case LessEqual:
		return 0 <= rhs+tol
	case GreaterEqual:
		return 0 >= rhs-tol
	default:
		return math.Abs(rhs) <= tol
	}
}
