// Package solver defines the integer-program model the raid engine builds and
// the contract a solver must satisfy, together with an embedded
// branch-and-bound solver over an LP relaxation.
//
// Models are plain values built per call. A Solver must not keep any model
// state between calls, so a single Solver may be shared by concurrent callers.
package solver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Sense is the direction of a linear constraint.
type Sense int

const (
	LessEqual Sense = iota
	GreaterEqual
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEqual:
		return "<="
	case GreaterEqual:
		return ">="
	case Equal:
		return "="
	default:
		return fmt.Sprintf("Sense(%d)", int(s))
	}
}

// Variable is a decision variable with bounds. Upper may be +Inf.
type Variable struct {
	Name    string
	Lower   float64
	Upper   float64
	Integer bool
}

// Term is a coefficient applied to a variable, by index into Model.Vars.
type Term struct {
	Var  int
	Coef float64
}

// Constraint is a linear row: sum(Terms) Sense RHS.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Model is a minimization integer program.
type Model struct {
	Name        string
	Vars        []Variable
	Constraints []Constraint
	Objective   []Term

	// Hint is an optional feasible assignment used as the first incumbent.
	Hint []float64
}

// NewModel creates an empty model.
func NewModel(name string) *Model {
	return &Model{Name: name}
}

// AddVar adds a variable and returns its index.
func (m *Model) AddVar(name string, lower, upper float64, integer bool) int {
	m.Vars = append(m.Vars, Variable{Name: name, Lower: lower, Upper: upper, Integer: integer})
	return len(m.Vars) - 1
}

// AddConstraint adds a linear constraint.
func (m *Model) AddConstraint(name string, terms []Term, sense Sense, rhs float64) {
	m.Constraints = append(m.Constraints, Constraint{Name: name, Terms: terms, Sense: sense, RHS: rhs})
}

// SetObjective sets the terms to minimize.
func (m *Model) SetObjective(terms []Term) {
	m.Objective = terms
}

// Validate checks the model is well formed.
func (m *Model) Validate() error {
	if len(m.Vars) == 0 {
		return errors.New("model has no variables")
	}
	for i, v := range m.Vars {
		if math.IsNaN(v.Lower) || math.IsNaN(v.Upper) || math.IsInf(v.Lower, 0) {
			return fmt.Errorf("variable %d (%s): invalid bounds [%v, %v]", i, v.Name, v.Lower, v.Upper)
		}
		if v.Upper < v.Lower {
			return fmt.Errorf("variable %d (%s): upper bound %v below lower bound %v", i, v.Name, v.Upper, v.Lower)
		}
	}
	check := func(where string, terms []Term) error {
		for _, t := range terms {
			if t.Var < 0 || t.Var >= len(m.Vars) {
				return fmt.Errorf("%s: variable index %d out of range", where, t.Var)
			}
			if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
				return fmt.Errorf("%s: invalid coefficient %v", where, t.Coef)
			}
		}
		return nil
	}
	for _, c := range m.Constraints {
		if err := check("constraint "+c.Name, c.Terms); err != nil {
			return err
		}
		if math.IsNaN(c.RHS) || math.IsInf(c.RHS, 0) {
			return fmt.Errorf("constraint %s: invalid right-hand side %v", c.Name, c.RHS)
		}
	}
	if err := check("objective", m.Objective); err != nil {
		return err
	}
	if m.Hint != nil && len(m.Hint) != len(m.Vars) {
		return fmt.Errorf("hint has %d values, model has %d variables", len(m.Hint), len(m.Vars))
	}
	return nil
}

// Evaluate returns the objective value of x.
func (m *Model) Evaluate(x []float64) float64 {
	var sum float64
	for _, t := range m.Objective {
		sum += t.Coef * x[t.Var]
	}
	return sum
}

// Feasible reports whether x satisfies bounds, integrality and constraints within tol.
func (m *Model) Feasible(x []float64, tol float64) bool {
	if len(x) != len(m.Vars) {
		return false
	}
	for i, v := range m.Vars {
		if x[i] < v.Lower-tol || x[i] > v.Upper+tol {
			return false
		}
		if v.Integer && math.Abs(x[i]-math.Round(x[i])) > tol {
			return false
		}
	}
	for _, c := range m.Constraints {
		var lhs float64
		for _, t := range c.Terms {
			lhs += t.Coef * x[t.Var]
		}
		scale := tol * math.Max(1, math.Abs(c.RHS))
		switch c.Sense {
		case LessEqual:
			if lhs > c.RHS+scale {
				return false
			}
		case GreaterEqual:
			if lhs < c.RHS-scale {
				return false
			}
		case Equal:
			if math.Abs(lhs-c.RHS) > scale {
				return false
			}
		}
	}
	return true
}

// Status is the terminal state of a solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusTimedOut
	StatusCanceled
	StatusNodeLimit
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusTimedOut:
		return "timed_out"
	case StatusCanceled:
		return "canceled"
	case StatusNodeLimit:
		return "node_limit"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Solution is the outcome of a solve. Values is nil unless Status is StatusOptimal.
type Solution struct {
	Status    Status
	Values    []float64
	Objective float64
	Nodes     int
	Duration  time.Duration
	// Detail explains a non-optimal status.
	Detail string
}

// Solver solves integer programs.
//
// Solve returns an error only for a malformed model. Every terminal outcome,
// including infeasibility and timeouts, is reported through Solution.Status.
type Solver interface {
	Solve(ctx context.Context, m *Model) (*Solution, error)
}
