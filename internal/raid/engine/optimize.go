package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rsned/raid-optimizer-server/internal/raid/solver"
	"github.com/rsned/raid-optimizer-server/pkg/raid"
)

const (
	integralTol = 1e-6
	costTol     = 1e-6
)

// target is one requested structure type. Its instances are interchangeable,
// so the model counts how many of them take each hit pattern instead of
// giving every instance its own variables.
type target struct {
	structure raid.Structure
	count     int

	// damage is per candidate in fixed point. low and high bound the damage
	// an instance must receive; high is math.MaxInt64 in legacy mode.
	damage    []int64
	low, high int64

	// budget is the crafting cost of the cheapest single-explosive pattern.
	// A pattern whose unavoidable crafting exceeds it is never optimal.
	budget float64

	// patterns holds hit counts by candidate; vars the model variable
	// counting instances that take each pattern.
	patterns [][]int
	vars     []int
}

// plan is the per-call model together with the index maps needed to read
// the solver's values back.
type plan struct {
	mode       raid.Mode
	candidates []raid.Explosive
	inventory  []int
	targets    []target
	instances  int
	model      *solver.Model

	// crafted is the model variable per candidate, -1 for candidates no
	// pattern uses.
	crafted []int
}

// instance is one structure to destroy, numbered from 1 within its type.
type instance struct {
	target  *target
	ordinal int
	owned   []int
	crafted []int
}

// OptimizeRaid executes the optimize_raid tool logic: it finds the
// assignment of owned and crafted explosives that destroys every requested
// structure instance with the least crafted sulfur.
func (e *Engine) OptimizeRaid(ctx context.Context, req raid.OptimizeRequest) (*raid.OptimizationResult, error) {
	start := time.Now()
	result, err := e.optimizeRaid(ctx, req)
	e.observe(raid.ModeStandard, start, result, err)
	return result, err
}

func (e *Engine) optimizeRaid(ctx context.Context, req raid.OptimizeRequest) (*raid.OptimizationResult, error) {
	if len(req.Structures) == 0 {
		return nil, raid.EmptySelection("structures")
	}
	if len(req.Explosives) == 0 {
		return nil, raid.EmptySelection("explosives")
	}

	targets, total, err := e.expandTargets(req.Structures)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(req.Explosives))
	for id := range req.Explosives {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	p := &plan{mode: raid.ModeStandard, targets: targets, instances: total}
	for _, id := range ids {
		exp, err := e.catalog.Explosive(id)
		if err != nil {
			return nil, err
		}
		owned := req.Explosives[id]
		if owned < 0 {
			return nil, raid.InvalidQuantity(id, owned)
		}
		p.candidates = append(p.candidates, exp)
		p.inventory = append(p.inventory, owned)
	}

	return e.solvePlan(ctx, p)
}

// expandTargets validates the structure counts and returns one target per
// structure type ordered by id, with the total instance count.
func (e *Engine) expandTargets(counts map[string]int) ([]target, int, error) {
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	total := 0
	out := make([]target, 0, len(ids))
	for _, id := range ids {
		s, err := e.catalog.Structure(id)
		if err != nil {
			return nil, 0, err
		}
		n := counts[id]
		if n <= 0 {
			return nil, 0, raid.InvalidQuantity(id, n)
		}
		total += n
		if total > e.maxInstances {
			return nil, 0, raid.InvalidQuantity("structures",
				fmt.Sprintf("%d instances exceeds the limit of %d", total, e.maxInstances))
		}
		out = append(out, target{structure: s, count: n})
	}
	return out, total, nil
}

// solvePlan runs the shared pipeline once candidates and targets are known.
func (e *Engine) solvePlan(ctx context.Context, p *plan) (*raid.OptimizationResult, error) {
	if err := p.prepare(); err != nil {
		return nil, err
	}
	if err := p.enumerate(ctx, e.maxPatterns); err != nil {
		return nil, err
	}
	p.build()
	return e.run(ctx, p)
}

// prepare converts damage to fixed point, sets each target's window and
// reports structures no candidate can damage.
func (p *plan) prepare() error {
	for i := range p.targets {
		t := &p.targets[i]
		t.damage = make([]int64, len(p.candidates))
		var maxDamage int64
		for k, exp := range p.candidates {
			t.damage[k] = toFixed(exp.DamageTo(t.structure.ID))
			maxDamage = max(maxDamage, t.damage[k])
		}
		if maxDamage <= 0 {
			return fmt.Errorf("%w: no candidate explosive damages %s", raid.ErrSolverInfeasible, t.structure.ID)
		}

		hp := toFixed(t.structure.HitPoints)
		t.low, t.high = hp, hp+maxDamage
		if p.mode == raid.ModeLegacy {
			t.low, t.high = hp+fixedScale, math.MaxInt64
		}

		t.budget = math.Inf(1)
		for k, exp := range p.candidates {
			if d := t.damage[k]; d > 0 {
				t.budget = math.Min(t.budget, float64(ceilDiv(t.low, d))*exp.SulfurCost())
			}
		}
	}
	return nil
}

// enumerate lists every minimal hit pattern for each target: a count per
// candidate whose damage lands in the window and drops below the lower bound
// if any single hit is removed. Any window assignment can shed hits until it
// is minimal without raising its cost, so minimal patterns lose nothing.
func (p *plan) enumerate(ctx context.Context, limit int) error {
	found := 0
	for i := range p.targets {
		t := &p.targets[i]

		// Strongest first, so the weakest explosive is the one completed
		// arithmetically at the last level.
		var order []int
		for k, d := range t.damage {
			if d > 0 {
				order = append(order, k)
			}
		}
		sort.SliceStable(order, func(a, b int) bool { return t.damage[order[a]] > t.damage[order[b]] })

		counts := make([]int, len(p.candidates))
		leaves := 0
		var walk func(pos int, dealt int64, floor float64) error
		walk = func(pos int, dealt int64, floor float64) error {
			k := order[pos]
			d := t.damage[k]
			if pos == len(order)-1 {
				leaves++
				if leaves%4096 == 0 {
					if err := ctx.Err(); err != nil {
						return stopped(err)
					}
				}
				n := 0
				if dealt < t.low {
					n = int(ceilDiv(t.low-dealt, d))
				}
				if floor+p.overrun(k, n) > t.budget+costTol {
					return nil
				}
				counts[k] = n
				defer func() { counts[k] = 0 }()
				if !t.minimal(counts) {
					return nil
				}
				found++
				if found > limit {
					return fmt.Errorf("%w: more than %d hit patterns for %s; narrow the candidate explosives",
						raid.ErrSolverFailure, limit, t.structure.ID)
				}
				t.patterns = append(t.patterns, append([]int(nil), counts...))
				return nil
			}

			// Past the lower bound every further unit of k could be removed.
			for n := 0; n == 0 || dealt+int64(n-1)*d < t.low; n++ {
				f := floor + p.overrun(k, n)
				if f > t.budget+costTol {
					break
				}
				counts[k] = n
				if err := walk(pos+1, dealt+int64(n)*d, f); err != nil {
					counts[k] = 0
					return err
				}
			}
			counts[k] = 0
			return nil
		}
		if err := walk(0, 0, 0); err != nil {
			return err
		}
		if len(t.patterns) == 0 {
			return fmt.Errorf("%w: no hit combination fits the window for %s", raid.ErrSolverInfeasible, t.structure.ID)
		}
	}
	return nil
}

// stopped maps a done caller context seen while building the model.
func stopped(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("optimization abandoned: %w", err)
	}
	return fmt.Errorf("%w: %v", raid.ErrSolverTimeout, err)
}

// overrun is the sulfur n units of candidate k cost beyond what inventory
// covers: the least any instance using them can add to the objective.
func (p *plan) overrun(k, n int) float64 {
	return float64(max(0, n-p.inventory[k])) * p.candidates[k].SulfurCost()
}

func (t *target) dealt(counts []int) int64 {
	var sum int64
	for k, n := range counts {
		sum += int64(n) * t.damage[k]
	}
	return sum
}

func (t *target) minimal(counts []int) bool {
	sum := t.dealt(counts)
	if sum < t.low || sum > t.high {
		return false
	}
	for k, n := range counts {
		if n > 0 && sum-t.damage[k] >= t.low {
			return false
		}
	}
	return true
}

// build creates the aggregated model: an integer count per (target, pattern)
// that must cover the target's instances, and a crafted count per candidate
// that absorbs whatever usage inventory cannot.
func (p *plan) build() {
	name := "raid"
	if p.mode == raid.ModeLegacy {
		name = "raid-legacy"
	}
	m := solver.NewModel(name)

	used := make([]bool, len(p.candidates))
	for i := range p.targets {
		t := &p.targets[i]
		t.vars = make([]int, len(t.patterns))
		terms := make([]solver.Term, len(t.patterns))
		for j, pat := range t.patterns {
			t.vars[j] = m.AddVar(fmt.Sprintf("hits_%s_%d", t.structure.ID, j+1), 0, math.Inf(1), true)
			terms[j] = solver.Term{Var: t.vars[j], Coef: 1}
			for k, n := range pat {
				used[k] = used[k] || n > 0
			}
		}
		m.AddConstraint("count_"+t.structure.ID, terms, solver.Equal, float64(t.count))
	}

	var objective []solver.Term
	p.crafted = make([]int, len(p.candidates))
	for k, exp := range p.candidates {
		p.crafted[k] = -1
		if !used[k] {
			continue
		}
		v := m.AddVar("crafted_"+exp.ID, 0, math.Inf(1), true)
		p.crafted[k] = v
		terms := []solver.Term{{Var: v, Coef: -1}}
		for _, t := range p.targets {
			for j, pat := range t.patterns {
				if pat[k] > 0 {
					terms = append(terms, solver.Term{Var: t.vars[j], Coef: float64(pat[k])})
				}
			}
		}
		m.AddConstraint("inventory_"+exp.ID, terms, solver.LessEqual, float64(p.inventory[k]))
		if sulfur := exp.SulfurCost(); sulfur != 0 {
			objective = append(objective, solver.Term{Var: v, Coef: sulfur})
		}
	}

	m.SetObjective(objective)
	p.model = m
	p.model.Hint = p.greedyHint()
}

// greedyHint gives each instance in turn the pattern that is cheapest given
// the inventory left over. The result is always feasible.
func (p *plan) greedyHint() []float64 {
	hint := make([]float64, len(p.model.Vars))
	remaining := append([]int(nil), p.inventory...)
	usage := make([]int, len(p.candidates))

	for _, t := range p.targets {
		for left := t.count; left > 0; {
			best, bestCost := 0, math.Inf(1)
			for j, pat := range t.patterns {
				var cost float64
				for k, n := range pat {
					cost += float64(max(0, n-remaining[k])) * p.candidates[k].SulfurCost()
				}
				if cost < bestCost {
					best, bestCost = j, cost
				}
			}

			// Once the pick draws nothing from inventory it stays the pick.
			take := 1
			if !drawsInventory(t.patterns[best], remaining) {
				take = left
			}
			for k, n := range t.patterns[best] {
				usage[k] += n * take
				remaining[k] = max(0, remaining[k]-n*take)
			}
			hint[t.vars[best]] += float64(take)
			left -= take
		}
	}

	for k, v := range p.crafted {
		if v >= 0 {
			hint[v] = float64(max(0, usage[k]-p.inventory[k]))
		}
	}
	return hint
}

func drawsInventory(pattern, remaining []int) bool {
	for k, n := range pattern {
		if n > 0 && remaining[k] > 0 {
			return true
		}
	}
	return false
}

// run solves the plan and turns the solution into a verified result.
func (e *Engine) run(ctx context.Context, p *plan) (*raid.OptimizationResult, error) {
	e.logger.Debug("solving raid model",
		"mode", p.mode, "instances", p.instances, "candidates", len(p.candidates),
		"variables", len(p.model.Vars), "constraints", len(p.model.Constraints))

	sol, err := e.solve(ctx, p)
	if err != nil {
		return nil, err
	}

	values, err := p.integerValues(sol.Values)
	if err != nil {
		return nil, err
	}
	assigned, err := p.expand(values)
	if err != nil {
		e.logger.Warn("solver returned an invalid assignment", "mode", p.mode, "error", err)
		return nil, err
	}
	if err := p.verify(assigned, sol.Objective); err != nil {
		e.logger.Warn("solver returned an invalid assignment", "mode", p.mode, "error", err)
		return nil, err
	}

	result, err := e.aggregate(ctx, p, assigned)
	if err != nil {
		return nil, err
	}
	result.Stats = raid.SolveStats{Status: sol.Status.String(), Nodes: sol.Nodes, Duration: sol.Duration}
	return result, nil
}

// solve runs the solver under the configured timeout and maps every
// non-optimal status to an error.
func (e *Engine) solve(ctx context.Context, p *plan) (*solver.Solution, error) {
	solveCtx, cancel := context.WithTimeout(ctx, e.solveTimeout)
	defer cancel()

	sol, err := e.solver.Solve(solveCtx, p.model)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", raid.ErrSolverFailure, err)
	}
	if sol == nil {
		return nil, fmt.Errorf("%w: solver returned no solution", raid.ErrSolverFailure)
	}

	switch sol.Status {
	case solver.StatusOptimal:
	case solver.StatusInfeasible:
		return nil, fmt.Errorf("%w: %s", raid.ErrSolverInfeasible, sol.Detail)
	case solver.StatusTimedOut, solver.StatusCanceled:
		if err := ctx.Err(); errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("optimization abandoned: %w", err)
		}
		if sol.Status == solver.StatusCanceled && solveCtx.Err() == nil {
			return nil, fmt.Errorf("%w: solver stopped without a cancellation", raid.ErrSolverFailure)
		}
		e.logger.Warn("solver timed out", "mode", p.mode, "timeout", e.solveTimeout, "nodes", sol.Nodes)
		return nil, fmt.Errorf("%w after %s (%d nodes)", raid.ErrSolverTimeout, sol.Duration.Round(time.Millisecond), sol.Nodes)
	default:
		e.logger.Warn("solver failed", "mode", p.mode, "status", sol.Status.String(), "detail", sol.Detail)
		return nil, fmt.Errorf("%w: %s: %s", raid.ErrSolverFailure, sol.Status, sol.Detail)
	}

	if len(sol.Values) != len(p.model.Vars) {
		return nil, fmt.Errorf("%w: solver returned %d values for %d variables",
			raid.ErrSolverFailure, len(sol.Values), len(p.model.Vars))
	}
	return sol, nil
}

// integerValues converts solver values to non-negative integers, rejecting
// anything that is not within tolerance of one.
func (p *plan) integerValues(values []float64) ([]int, error) {
	out := make([]int, len(values))
	for j, v := range values {
		r := math.Round(v)
		if math.IsNaN(v) || math.Abs(v-r) > integralTol || r < 0 {
			return nil, fmt.Errorf("%w: variable %s has value %g", raid.ErrSolverFailure, p.model.Vars[j].Name, v)
		}
		out[j] = int(r)
	}
	return out, nil
}

// expand hands patterns to instances in ordinal order and spends owned
// units on the earliest instances that use them.
func (p *plan) expand(values []int) ([]instance, error) {
	out := make([]instance, 0, p.instances)
	remaining := append([]int(nil), p.inventory...)
	for i := range p.targets {
		t := &p.targets[i]
		ordinal := 0
		for j, pat := range t.patterns {
			for n := values[t.vars[j]]; n > 0; n-- {
				ordinal++
				if ordinal > t.count {
					break
				}
				inst := instance{
					target:  t,
					ordinal: ordinal,
					owned:   make([]int, len(p.candidates)),
					crafted: make([]int, len(p.candidates)),
				}
				for k, hits := range pat {
					owned := min(hits, remaining[k])
					remaining[k] -= owned
					inst.owned[k], inst.crafted[k] = owned, hits-owned
				}
				out = append(out, inst)
			}
		}
		if ordinal != t.count {
			return nil, fmt.Errorf("%w: solver covered %d of %d %s instances",
				raid.ErrSolverFailure, ordinal, t.count, t.structure.ID)
		}
	}
	return out, nil
}

// verify re-checks the expanded assignment against inventory, the damage
// window in fixed point and the reported objective.
func (p *plan) verify(instances []instance, objective float64) error {
	used := make([]int, len(p.candidates))
	for _, inst := range instances {
		t := inst.target
		var dealt int64
		for k := range p.candidates {
			used[k] += inst.owned[k]
			dealt += int64(inst.owned[k]+inst.crafted[k]) * t.damage[k]
		}
		if dealt < t.low || dealt > t.high {
			high := "inf"
			if t.high != math.MaxInt64 {
				high = fmt.Sprintf("%.3f", float64(t.high)/fixedScale)
			}
			return fmt.Errorf("%w: %s #%d receives %.3f damage outside [%.3f, %s]",
				raid.ErrSolverFailure, t.structure.ID, inst.ordinal,
				float64(dealt)/fixedScale, float64(t.low)/fixedScale, high)
		}
	}
	for k, exp := range p.candidates {
		if used[k] > p.inventory[k] {
			return fmt.Errorf("%w: %d owned %s used with %d in inventory",
				raid.ErrSolverFailure, used[k], exp.ID, p.inventory[k])
		}
	}

	cost := p.cost(instances)
	if math.Abs(cost-objective) > integralTol*math.Max(1, math.Abs(cost)) {
		return fmt.Errorf("%w: objective %g does not match assignment cost %g", raid.ErrSolverFailure, objective, cost)
	}
	return nil
}

// cost is the sulfur spent on crafting.
func (p *plan) cost(instances []instance) float64 {
	var cost float64
	for _, inst := range instances {
		for k, exp := range p.candidates {
			cost += float64(inst.crafted[k]) * exp.SulfurCost()
		}
	}
	return cost
}

// aggregate builds the per-instance, per-structure and per-explosive views
// of an assignment and prices it through the resource calculator.
func (e *Engine) aggregate(ctx context.Context, p *plan, instances []instance) (*raid.OptimizationResult, error) {
	result := &raid.OptimizationResult{
		Mode:            p.mode,
		Instances:       make([]raid.InstanceUsage, 0, len(instances)),
		ExplosiveTotals: make(map[string]raid.ExplosiveUsage, len(p.candidates)),
		SulfurCost:      int(math.Round(p.cost(instances))),
	}
	for _, exp := range p.candidates {
		result.ExplosiveTotals[exp.ID] = raid.ExplosiveUsage{}
	}

	for _, inst := range instances {
		id := inst.target.structure.ID
		usage := raid.InstanceUsage{
			Structure: id,
			Ordinal:   inst.ordinal,
			Usage:     make(map[string]raid.ExplosiveUsage),
		}
		for k, exp := range p.candidates {
			owned, crafted := inst.owned[k], inst.crafted[k]
			if owned+crafted == 0 {
				continue
			}
			u := raid.ExplosiveUsage{Owned: owned, Crafted: crafted, Total: owned + crafted}
			usage.Usage[exp.ID] = u
			usage.Damage += float64(u.Total) * exp.DamageTo(id)

			t := result.ExplosiveTotals[exp.ID]
			t.Owned += u.Owned
			t.Crafted += u.Crafted
			t.Total += u.Total
			result.ExplosiveTotals[exp.ID] = t
		}
		result.Instances = append(result.Instances, usage)

		// Instances are grouped by structure id.
		n := len(result.Structures)
		if n == 0 || result.Structures[n-1].Structure != id {
			result.Structures = append(result.Structures, raid.StructureUsage{
				Structure: id,
				Usage:     make(map[string]int),
			})
			n++
		}
		su := &result.Structures[n-1]
		su.Count++
		for eid, u := range usage.Usage {
			su.Usage[eid] += u.Total
		}
	}

	total := make(map[string]float64)
	crafted := make(map[string]float64)
	for _, exp := range p.candidates {
		t := result.ExplosiveTotals[exp.ID]
		if t.Total > 0 {
			r, err := e.CalculateResources(ctx, raid.ResourcesRequest{Explosive: exp.ID, Quantity: t.Total})
			if err != nil {
				return nil, fmt.Errorf("pricing %s: %w", exp.ID, err)
			}
			addMaterials(total, r.Totals())
		}
		if t.Crafted > 0 {
			r, err := e.CalculateResources(ctx, raid.ResourcesRequest{Explosive: exp.ID, Quantity: t.Crafted})
			if err != nil {
				return nil, fmt.Errorf("pricing crafted %s: %w", exp.ID, err)
			}
			addMaterials(crafted, r.Totals())
		}
	}
	result.TotalResources = sortedMaterials(total)
	result.CraftedResources = sortedMaterials(crafted)
	return result, nil
}

// observe reports an optimization attempt to the configured observer.
func (e *Engine) observe(mode raid.Mode, start time.Time, result *raid.OptimizationResult, err error) {
	if e.observer == nil {
		return
	}
	outcome, nodes := "optimal", 0
	switch {
	case errors.Is(err, context.Canceled):
		outcome = "Canceled"
	case err != nil:
		outcome = raid.ErrorKind(err)
	}
	if result != nil {
		nodes = result.Stats.Nodes
	}
	e.observer.ObserveOptimize(mode, outcome, time.Since(start), nodes)
}
