package engine

import (
	"context"

	"github.com/rsned/raid-optimizer-server/pkg/raid"
)

// CalculateResources executes the calculate_resources tool logic.
func (e *Engine) CalculateResources(ctx context.Context, req raid.ResourcesRequest) (*raid.ResourcesResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	exp, err := e.catalog.Explosive(req.Explosive)
	if err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, raid.InvalidQuantity(req.Explosive, req.Quantity)
	}

	return &raid.ResourcesResponse{
		Explosive: exp.ID,
		Quantity:  req.Quantity,
		Materials: sortedMaterials(resourcesFor(exp, req.Quantity)),
	}, nil
}

// CalculateBatch totals the materials for several explosive/quantity lines.
// Repeated explosives accumulate. Every line is validated before anything is summed.
func (e *Engine) CalculateBatch(ctx context.Context, lines []raid.BatchLine) (*raid.BatchResourcesResponse, error) {
	if len(lines) == 0 {
		return nil, raid.EmptySelection("explosives")
	}

	resp := &raid.BatchResourcesResponse{Counts: make(map[string]int)}
	totals := make(map[string]float64)
	for _, line := range lines {
		r, err := e.CalculateResources(ctx, raid.ResourcesRequest(line))
		if err != nil {
			return nil, err
		}
		resp.Counts[r.Explosive] += r.Quantity
		addMaterials(totals, r.Totals())
	}
	resp.Materials = sortedMaterials(totals)
	return resp, nil
}
