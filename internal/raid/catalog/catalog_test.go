package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsned/raid-optimizer-server/pkg/raid"
)

func testStructures() []raid.Structure {
	return []raid.Structure{
		{ID: "Stone Wall", HitPoints: 500},
		{ID: "Stone Door", HitPoints: 300},
		{ID: "Metal Wall", HitPoints: 1000},
	}
}

func testExplosives() []raid.Explosive {
	return []raid.Explosive{
		{
			ID:           "Rocket",
			RawMaterials: map[string]float64{"sulfur": 1400, "charcoal": 1950, "metal fragments": 100},
			DamagePerStructure: map[string]float64{
				"Stone Wall": 137.5, "Stone Door": 200, "Metal Wall": 250,
			},
		},
		{
			ID:           "Satchel Charge",
			RawMaterials: map[string]float64{"sulfur": 480, "charcoal": 720, "rope": 1},
			DamagePerStructure: map[string]float64{
				"Stone Wall": 47.5, "Stone Door": 75, "Metal Wall": 90,
			},
		},
		{
			ID:           "Timed Explosive Charge",
			RawMaterials: map[string]float64{"sulfur": 2200, "charcoal": 3000, "tech trash": 2},
			DamagePerStructure: map[string]float64{
				"Stone Wall": 275, "Stone Door": 300, "Metal Wall": 500,
			},
		},
	}
}

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := New(testExplosives(), testStructures())
	require.NoError(t, err)
	return c
}

func TestNew(t *testing.T) {
	c := newTestCatalog(t)

	assert.Equal(t, []string{"Rocket", "Satchel Charge", "Timed Explosive Charge"}, c.ExplosiveIDs())
	assert.Equal(t, []string{"Metal Wall", "Stone Door", "Stone Wall"}, c.StructureIDs())
	assert.Equal(t, []string{"charcoal", "metal fragments", "rope", "sulfur", "tech trash"}, c.Materials())
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name       string
		explosives []raid.Explosive
		structures []raid.Structure
		wantErr    string
	}{
		{
			name:       "non-positive hit points",
			structures: []raid.Structure{{ID: "Wall", HitPoints: 0}},
			wantErr:    `structure "Wall": hit points must be positive`,
		},
		{
			name:       "empty structure id",
			structures: []raid.Structure{{HitPoints: 10}},
			wantErr:    "structure id must not be empty",
		},
		{
			name:       "duplicate structure",
			structures: []raid.Structure{{ID: "Wall", HitPoints: 10}, {ID: "Wall", HitPoints: 20}},
			wantErr:    `duplicate structure "Wall"`,
		},
		{
			name:       "negative material",
			structures: []raid.Structure{{ID: "Wall", HitPoints: 10}},
			explosives: []raid.Explosive{{ID: "C4", RawMaterials: map[string]float64{"sulfur": -1}}},
			wantErr:    `explosive "C4": sulfur amount must be non-negative`,
		},
		{
			name:       "damage for unknown structure",
			structures: []raid.Structure{{ID: "Wall", HitPoints: 10}},
			explosives: []raid.Explosive{{ID: "C4", DamagePerStructure: map[string]float64{"Moat": 5}}},
			wantErr:    `explosive "C4": damage for unknown structure "Moat"`,
		},
		{
			name:       "negative damage",
			structures: []raid.Structure{{ID: "Wall", HitPoints: 10}},
			explosives: []raid.Explosive{{ID: "C4", DamagePerStructure: map[string]float64{"Wall": -5}}},
			wantErr:    `explosive "C4": damage to Wall must be non-negative`,
		},
		{
			name:       "duplicate explosive",
			structures: []raid.Structure{{ID: "Wall", HitPoints: 10}},
			explosives: []raid.Explosive{{ID: "C4"}, {ID: "C4"}},
			wantErr:    `duplicate explosive "C4"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.explosives, tt.structures)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLookup(t *testing.T) {
	c := newTestCatalog(t)

	e, err := c.Explosive("Rocket")
	require.NoError(t, err)
	assert.Equal(t, 1400.0, e.SulfurCost())
	assert.Equal(t, 137.5, e.DamageTo("Stone Wall"))

	s, err := c.Structure("Metal Wall")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, s.HitPoints)

	_, err = c.Explosive("C5")
	assert.True(t, errors.Is(err, raid.ErrUnknownExplosive))
	assert.Equal(t, "C5", raid.OffendingID(err))

	_, err = c.Structure("Moat")
	assert.True(t, errors.Is(err, raid.ErrUnknownStructure))
}

func TestCatalogIsImmutable(t *testing.T) {
	explosives := testExplosives()
	c, err := New(explosives, testStructures())
	require.NoError(t, err)

	// Mutating the input after construction must not leak in.
	explosives[0].RawMaterials["sulfur"] = 1

	e, err := c.Explosive("Rocket")
	require.NoError(t, err)
	assert.Equal(t, 1400.0, e.SulfurCost())

	// Neither must mutating a returned copy.
	e.DamagePerStructure["Stone Wall"] = 0
	again, err := c.Explosive("Rocket")
	require.NoError(t, err)
	assert.Equal(t, 137.5, again.DamageTo("Stone Wall"))

	ids := c.ExplosiveIDs()
	ids[0] = "changed"
	assert.Equal(t, "Rocket", c.ExplosiveIDs()[0])
}

func TestListing(t *testing.T) {
	c := newTestCatalog(t)
	l := c.Listing()
	require.Len(t, l.Explosives, 3)
	require.Len(t, l.Structures, 3)
	assert.Equal(t, "Metal Wall", l.Structures[0].ID)
	assert.Equal(t, "Rocket", l.Explosives[0].ID)
}
