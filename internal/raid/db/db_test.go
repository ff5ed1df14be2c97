package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsned/raid-optimizer-server/internal/raid/catalog"
	"github.com/rsned/raid-optimizer-server/pkg/raid"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := OpenAndInit(context.Background(), MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(
		[]raid.Explosive{
			{
				ID:                 "Rocket",
				RawMaterials:       map[string]float64{"sulfur": 1400, "charcoal": 1950, "metal fragments": 100},
				DamagePerStructure: map[string]float64{"Stone Wall": 137.5, "Metal Wall": 250},
			},
			{
				ID:                 "Beancan Grenade",
				RawMaterials:       map[string]float64{"sulfur": 120, "charcoal": 180, "metal fragments": 20},
				DamagePerStructure: map[string]float64{"Stone Wall": 11.5},
			},
		},
		[]raid.Structure{{ID: "Stone Wall", HitPoints: 500}, {ID: "Metal Wall", HitPoints: 1000}},
	)
	require.NoError(t, err)
	return cat
}

func TestInitSchemaIsIdempotent(t *testing.T) {
	database := openTestDB(t)
	require.NoError(t, InitSchema(context.Background(), database.DB))
}

func TestInitSchemaRejectsNewerVersion(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	var version int
	require.NoError(t, database.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version))
	assert.Equal(t, SchemaVersion, version)

	_, err := database.ExecContext(ctx, `PRAGMA user_version = 99`)
	require.NoError(t, err)
	assert.ErrorContains(t, InitSchema(ctx, database.DB), "newer than supported")
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "raid.db")
	database, err := OpenAndInit(context.Background(), path)
	require.NoError(t, err)
	defer func() { _ = database.Close() }()
	assert.Equal(t, path, database.Path())
	assert.FileExists(t, path)
}

func TestMetadata(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	v, err := database.Metadata(ctx, "catalog_last_sync")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, database.SetMetadata(ctx, map[string]string{"catalog_last_sync": "a", "other": "x"}))
	require.NoError(t, database.SetMetadata(ctx, map[string]string{"catalog_last_sync": "b"}))
	v, err = database.Metadata(ctx, "catalog_last_sync")
	require.NoError(t, err)
	assert.Equal(t, "b", v)
	v, err = database.Metadata(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}

func TestInTransactionRollsBack(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := database.InTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO structures (id, hit_points) VALUES ('Wall', 10)`); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, database.QueryRowContext(ctx, `SELECT COUNT(*) FROM structures`).Scan(&n))
	assert.Zero(t, n)
}

func TestCatalogStoreRoundTrip(t *testing.T) {
	store := NewCatalogStore(openTestDB(t))
	ctx := context.Background()

	_, err := store.LoadCatalog(ctx)
	assert.ErrorIs(t, err, ErrEmptyCatalog)

	want := testCatalog(t)
	require.NoError(t, store.BulkInsert(ctx, want))

	got, err := store.LoadCatalog(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(want.Listing(), got.Listing()); diff != "" {
		t.Errorf("catalog mismatch (-want +got):\n%s", diff)
	}

	explosives, structures, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, explosives)
	assert.Equal(t, 2, structures)
}

func TestCatalogStoreReplace(t *testing.T) {
	store := NewCatalogStore(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.BulkInsert(ctx, testCatalog(t)))

	smaller, err := catalog.New(
		[]raid.Explosive{{
			ID:                 "Satchel Charge",
			RawMaterials:       map[string]float64{"sulfur": 480},
			DamagePerStructure: map[string]float64{"Wooden Door": 200},
		}},
		[]raid.Structure{{ID: "Wooden Door", HitPoints: 200}},
	)
	require.NoError(t, err)
	require.NoError(t, store.BulkInsert(ctx, smaller))

	got, err := store.LoadCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Satchel Charge"}, got.ExplosiveIDs())
	assert.Equal(t, []string{"Wooden Door"}, got.StructureIDs())

	require.NoError(t, store.Clear(ctx))
	explosives, structures, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, explosives)
	assert.Zero(t, structures)
}

func TestPlanStore(t *testing.T) {
	store := NewPlanStore(openTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * 1500 * time.Millisecond)
	}

	req := raid.OptimizeRequest{
		Structures: map[string]int{"Stone Wall": 1},
		Explosives: map[string]int{"Rocket": 2},
	}
	result := &raid.OptimizationResult{
		Mode: raid.ModeStandard,
		Instances: []raid.InstanceUsage{{
			Structure: "Stone Wall",
			Ordinal:   1,
			Damage:    550,
			Usage:     map[string]raid.ExplosiveUsage{"Rocket": {Owned: 2, Crafted: 2, Total: 4}},
		}},
		ExplosiveTotals: map[string]raid.ExplosiveUsage{"Rocket": {Owned: 2, Crafted: 2, Total: 4}},
		SulfurCost:      2800,
		Stats:           raid.SolveStats{Status: "optimal", Nodes: 3, Duration: 2 * time.Millisecond},
	}

	first, err := store.Save(ctx, raid.ModeStandard, req, result)
	require.NoError(t, err)
	assert.Equal(t, first.ID, result.PlanID)

	got, err := store.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, raid.ModeStandard, got.Mode)
	assert.Equal(t, req, got.Request)
	assert.Equal(t, result, got.Result)

	second, err := store.Save(ctx, raid.ModeLegacy, req, &raid.OptimizationResult{Mode: raid.ModeLegacy, SulfurCost: 5600})
	require.NoError(t, err)

	plans, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, second.ID, plans[0].ID)
	assert.Equal(t, 5600, plans[0].SulfurCost)
	assert.Equal(t, raid.ModeLegacy, plans[0].Mode)
	assert.Equal(t, first.ID, plans[1].ID)

	plans, err = store.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, plans, 1)
}

func TestPlanStoreNotFound(t *testing.T) {
	store := NewPlanStore(openTestDB(t))
	for _, id := range []string{"not-a-uuid", "5f0c2d56-8f0e-4d0c-9d55-52a1e3f1b6a2"} {
		_, err := store.Get(context.Background(), id)
		assert.ErrorIs(t, err, ErrPlanNotFound)
	}
}
