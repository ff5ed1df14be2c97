package engine

import (
	"context"
	"sort"
	"time"

	"github.com/rsned/raid-optimizer-server/pkg/raid"
)

// OptimizeLegacy runs the craft-only model: every unit is crafted and each
// instance must receive at least HP+1 damage, with no upper bound.
func (e *Engine) OptimizeLegacy(ctx context.Context, req raid.LegacyRequest) (*raid.OptimizationResult, error) {
	start := time.Now()
	result, err := e.optimizeLegacy(ctx, req)
	e.observe(raid.ModeLegacy, start, result, err)
	return result, err
}

func (e *Engine) optimizeLegacy(ctx context.Context, req raid.LegacyRequest) (*raid.OptimizationResult, error) {
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

	ids := append([]string(nil), req.Explosives...)
	sort.Strings(ids)
	p := &plan{mode: raid.ModeLegacy, targets: targets, instances: total}
	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		exp, err := e.catalog.Explosive(id)
		if err != nil {
			return nil, err
		}
		p.candidates = append(p.candidates, exp)
		p.inventory = append(p.inventory, 0)
	}

	return e.solvePlan(ctx, p)
}
