package sync

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsned/raid-optimizer-server/internal/raid/db"
)

func testdata(name string) string {
	return filepath.Join("testdata", name)
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatFor("catalog/explosives.YAML"))
	assert.Equal(t, FormatYAML, FormatFor("structures.yml"))
	assert.Equal(t, FormatJSON, FormatFor("explosives.json"))
	assert.Equal(t, FormatJSON, FormatFor("explosives"))
}

func TestParseExplosives(t *testing.T) {
	explosives, err := ParseExplosives([]byte(`{"Beancan Grenade": {"raw_materials": {"sulfur": 120}}}`), FormatJSON)
	require.NoError(t, err)
	require.Len(t, explosives, 1)
	assert.Equal(t, "Beancan Grenade", explosives[0].ID)
	assert.Equal(t, 120.0, explosives[0].SulfurCost())
	assert.NotNil(t, explosives[0].DamagePerStructure)

	_, err = ParseExplosives([]byte(`[1, 2]`), FormatJSON)
	assert.Error(t, err)
}

func TestParseStructures(t *testing.T) {
	structures, err := ParseStructures([]byte("Wooden Door: 200\nStone Wall: 500\n"), FormatYAML)
	require.NoError(t, err)
	require.Len(t, structures, 2)
	assert.Equal(t, "Stone Wall", structures[0].ID)
	assert.Equal(t, 500.0, structures[0].HitPoints)

	_, err = ParseStructures([]byte(`{"Stone Wall": "lots"}`), FormatJSON)
	assert.Error(t, err)
}

func TestLoadCatalogFilesJSONAndYAMLAgree(t *testing.T) {
	fromJSON, err := LoadCatalogFiles(testdata("explosives.json"), testdata("structures.json"))
	require.NoError(t, err)
	fromYAML, err := LoadCatalogFiles(testdata("explosives.yaml"), testdata("structures.yml"))
	require.NoError(t, err)

	if diff := cmp.Diff(fromJSON.Listing(), fromYAML.Listing()); diff != "" {
		t.Errorf("catalog mismatch (-json +yaml):\n%s", diff)
	}
	assert.Equal(t, []string{"Rocket", "Satchel Charge"}, fromJSON.ExplosiveIDs())
}

func TestLoadCatalogFilesErrors(t *testing.T) {
	_, err := LoadCatalogFiles(testdata("missing.json"), testdata("structures.json"))
	assert.ErrorContains(t, err, "reading explosives file")

	_, err = LoadCatalogFiles(testdata("bad_explosives.json"), testdata("structures.json"))
	assert.ErrorContains(t, err, "catalog validation failed")
}

func TestImportCatalogFromFiles(t *testing.T) {
	ctx := context.Background()
	database, err := db.OpenAndInit(ctx, db.MemoryPath)
	require.NoError(t, err)
	defer func() { _ = database.Close() }()

	s := NewSyncer(database)
	imported, err := s.ImportCatalogFromFiles(ctx, testdata("explosives.json"), testdata("structures.json"))
	require.NoError(t, err)

	stored, err := db.NewCatalogStore(database).LoadCatalog(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(imported.Listing(), stored.Listing()); diff != "" {
		t.Errorf("stored catalog mismatch (-imported +stored):\n%s", diff)
	}

	count, err := database.Metadata(ctx, MetaExplosivesCount)
	require.NoError(t, err)
	assert.Equal(t, "2", count)
	last, err := database.Metadata(ctx, MetaLastSync)
	require.NoError(t, err)
	assert.NotEmpty(t, last)

	// A failed import leaves the stored catalog untouched.
	_, err = s.ImportCatalogFromFiles(ctx, testdata("bad_explosives.json"), testdata("structures.json"))
	require.Error(t, err)
	explosives, _, err := db.NewCatalogStore(database).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, explosives)

	require.NoError(t, s.ClearAll(ctx))
	_, err = db.NewCatalogStore(database).LoadCatalog(ctx)
	assert.ErrorIs(t, err, db.ErrEmptyCatalog)
}
