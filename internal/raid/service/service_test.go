package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsned/raid-optimizer-server/internal/raid/catalog"
	"github.com/rsned/raid-optimizer-server/internal/raid/db"
	"github.com/rsned/raid-optimizer-server/internal/raid/engine"
	"github.com/rsned/raid-optimizer-server/pkg/raid"
)

func newTestService(t *testing.T, withPlans bool) *Service {
	t.Helper()
	cat, err := catalog.New(
		[]raid.Explosive{
			{
				ID:                 "Rocket",
				RawMaterials:       map[string]float64{"sulfur": 1400, "charcoal": 1950},
				DamagePerStructure: map[string]float64{"Stone Wall": 137.5, "Wooden Door": 200},
			},
			{
				ID:                 "Satchel Charge",
				RawMaterials:       map[string]float64{"sulfur": 480, "charcoal": 720},
				DamagePerStructure: map[string]float64{"Stone Wall": 47.5, "Wooden Door": 95},
			},
		},
		[]raid.Structure{{ID: "Stone Wall", HitPoints: 500}, {ID: "Wooden Door", HitPoints: 200}},
	)
	require.NoError(t, err)
	resolver, err := catalog.NewResolver(cat, 16, 3)
	require.NoError(t, err)

	var plans *db.PlanStore
	if withPlans {
		database, err := db.OpenAndInit(context.Background(), db.MemoryPath)
		require.NoError(t, err)
		t.Cleanup(func() { _ = database.Close() })
		plans = db.NewPlanStore(database)
	}
	return New(engine.New(cat, engine.Options{}), resolver, plans, nil)
}

func TestResourcesResolvesNames(t *testing.T) {
	s := newTestService(t, false)
	resp, err := s.Resources(context.Background(), raid.ResourcesArgs{Explosive: "rocket", Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, "Rocket", resp.Explosive)
	assert.Equal(t, 2800.0, resp.Totals()["sulfur"])

	_, err = s.Resources(context.Background(), raid.ResourcesArgs{Explosive: "Rocket", Quantity: 1.5})
	assert.ErrorIs(t, err, raid.ErrInvalidQuantity)

	_, err = s.Resources(context.Background(), raid.ResourcesArgs{Explosive: "grenade", Quantity: 1})
	assert.ErrorIs(t, err, raid.ErrUnknownExplosive)
}

func TestBatch(t *testing.T) {
	s := newTestService(t, false)
	resp, err := s.Batch(context.Background(), []raid.ResourcesArgs{
		{Explosive: "Rocket", Quantity: 1},
		{Explosive: "satchel charge", Quantity: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Rocket": 1, "Satchel Charge": 1}, resp.Counts)
}

func TestDamage(t *testing.T) {
	s := newTestService(t, false)
	resp, err := s.Damage(context.Background(), raid.DamageRequest{Structure: "stone wall", Explosives: []string{"satchel"}})
	require.NoError(t, err)
	assert.Equal(t, "Stone Wall", resp.Structure)
	assert.Equal(t, map[string]float64{"Satchel Charge": 47.5}, resp.ByExplosive())
}

func TestOptimize(t *testing.T) {
	s := newTestService(t, true)
	ctx := context.Background()

	res, err := s.Optimize(ctx, raid.OptimizeArgs{
		Structures: map[string]float64{"wooden door": 1, "Wooden Door": 1},
		Explosives: map[string]float64{"rocket": 1},
		Save:       true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1400, res.SulfurCost)
	assert.Len(t, res.Instances, 2)
	require.NotEmpty(t, res.PlanID)

	plan, err := s.Plan(ctx, res.PlanID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Wooden Door": 2}, plan.Request.Structures)
	assert.Equal(t, 1400, plan.SulfurCost)

	plans, err := s.Plans(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, plans, 1)
}

func TestOptimizeLegacyMode(t *testing.T) {
	s := newTestService(t, false)
	res, err := s.Optimize(context.Background(), raid.OptimizeArgs{
		Structures: map[string]float64{"Wooden Door": 1},
		Explosives: map[string]float64{"Rocket": 5},
		Mode:       raid.ModeLegacy,
	})
	require.NoError(t, err)
	assert.Equal(t, raid.ModeLegacy, res.Mode)
	// 200 damage does not clear the HP+1 bound, so two rockets are crafted.
	assert.Equal(t, raid.ExplosiveUsage{Crafted: 2, Total: 2}, res.ExplosiveTotals["Rocket"])
}

func TestOptimizeErrors(t *testing.T) {
	s := newTestService(t, false)
	ctx := context.Background()

	_, err := s.Optimize(ctx, raid.OptimizeArgs{Mode: "turbo"})
	assert.ErrorIs(t, err, raid.ErrInvalidMode)

	_, err = s.Optimize(ctx, raid.OptimizeArgs{
		Structures: map[string]float64{"Wooden Door": 1},
		Explosives: map[string]float64{"Rocket": 0},
		Save:       true,
	})
	assert.ErrorIs(t, err, ErrPlansDisabled)

	_, err = s.Optimize(ctx, raid.OptimizeArgs{
		Structures: map[string]float64{"Castle": 1},
		Explosives: map[string]float64{"Rocket": 0},
	})
	assert.ErrorIs(t, err, raid.ErrUnknownStructure)

	_, err = s.Optimize(ctx, raid.OptimizeArgs{Explosives: map[string]float64{"Rocket": 0}})
	assert.ErrorIs(t, err, raid.ErrEmptySelection)

	_, err = s.Plan(ctx, "x")
	assert.ErrorIs(t, err, ErrPlansDisabled)
}

func TestResolveAndCatalog(t *testing.T) {
	s := newTestService(t, false)
	res, err := s.Resolve(raid.ResolveRequest{Kind: catalog.KindStructure, Name: "stone wal"})
	require.NoError(t, err)
	assert.Equal(t, "Stone Wall", res.ID)

	listing := s.Catalog()
	assert.Len(t, listing.Explosives, 2)
	assert.Equal(t, []string{"charcoal", "sulfur"}, listing.Materials)
}
