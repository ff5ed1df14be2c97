package engine

import (
	"context"

	"github.com/rsned/raid-optimizer-server/pkg/raid"
)

// DamageValues executes the damage_values tool logic.
// Damages are returned in the order the explosives were requested.
func (e *Engine) DamageValues(ctx context.Context, req raid.DamageRequest) (*raid.DamageResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target, err := e.catalog.Structure(req.Structure)
	if err != nil {
		return nil, err
	}
	if len(req.Explosives) == 0 {
		return nil, raid.EmptySelection("explosives")
	}

	resp := &raid.DamageResponse{
		Structure: target.ID,
		HitPoints: target.HitPoints,
		Damages:   make([]raid.DamageValue, 0, len(req.Explosives)),
	}
	seen := make(map[string]bool, len(req.Explosives))
	for _, id := range req.Explosives {
		exp, err := e.catalog.Explosive(id)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true

		dmg := exp.DamageTo(target.ID)
		resp.Damages = append(resp.Damages, raid.DamageValue{
			Explosive:  exp.ID,
			Damage:     dmg,
			HitsNeeded: hitsNeeded(target.HitPoints, dmg),
		})
	}
	return resp, nil
}
