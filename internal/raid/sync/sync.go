// Package sync handles importing catalog definitions into the database.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rsned/raid-optimizer-server/internal/raid/catalog"
	"github.com/rsned/raid-optimizer-server/internal/raid/db"
	"github.com/rsned/raid-optimizer-server/pkg/raid"
)

// Metadata keys written by ImportCatalogFromFiles.
const (
	MetaLastSync        = "catalog_last_sync"
	MetaExplosivesCount = "explosives_count"
	MetaStructuresCount = "structures_count"
)

// Syncer handles catalog imports.
type Syncer struct {
	db *db.DB
}

// NewSyncer creates a new Syncer.
func NewSyncer(database *db.DB) *Syncer {
	return &Syncer{db: database}
}

// ExplosiveImport is one entry of the explosive table, keyed by explosive id.
type ExplosiveImport struct {
	RawMaterials       map[string]float64 `json:"raw_materials" yaml:"raw_materials"`
	DamagePerStructure map[string]float64 `json:"damage_per_structure" yaml:"damage_per_structure"`
}

// Format is a catalog file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the encoding from the file extension. Anything that is
// not .yaml or .yml is read as JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

func decode(data []byte, format Format, v any) error {
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("parsing YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("parsing JSON: %w", err)
		}
	}
	return nil
}

// ParseExplosives decodes an explosive table.
func ParseExplosives(data []byte, format Format) ([]raid.Explosive, error) {
	var imports map[string]ExplosiveImport
	if err := decode(data, format, &imports); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(imports))
	for id := range imports {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	explosives := make([]raid.Explosive, 0, len(imports))
	for _, id := range ids {
		explosives = append(explosives, transformExplosive(id, imports[id]))
	}
	return explosives, nil
}

// transformExplosive converts import format to domain format.
func transformExplosive(id string, imp ExplosiveImport) raid.Explosive {
	exp := raid.Explosive{
		ID:                 id,
		RawMaterials:       imp.RawMaterials,
		DamagePerStructure: imp.DamagePerStructure,
	}
	if exp.RawMaterials == nil {
		exp.RawMaterials = map[string]float64{}
	}
	if exp.DamagePerStructure == nil {
		exp.DamagePerStructure = map[string]float64{}
	}
	return exp
}

// ParseStructures decodes a structure table mapping structure id to hit points.
func ParseStructures(data []byte, format Format) ([]raid.Structure, error) {
	var imports map[string]float64
	if err := decode(data, format, &imports); err != nil {
		return nil, err
	}

	structures := make([]raid.Structure, 0, len(imports))
	for id, hp := range imports {
		structures = append(structures, raid.Structure{ID: id, HitPoints: hp})
	}
	sort.Slice(structures, func(i, j int) bool {
		return structures[i].ID < structures[j].ID
	})
	return structures, nil
}

// LoadCatalogFiles reads both tables and builds a validated catalog without
// touching the database.
func LoadCatalogFiles(explosivesPath, structuresPath string) (*catalog.Catalog, error) {
	data, err := os.ReadFile(explosivesPath)
	if err != nil {
		return nil, fmt.Errorf("reading explosives file: %w", err)
	}
	explosives, err := ParseExplosives(data, FormatFor(explosivesPath))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", explosivesPath, err)
	}

	data, err = os.ReadFile(structuresPath)
	if err != nil {
		return nil, fmt.Errorf("reading structures file: %w", err)
	}
	structures, err := ParseStructures(data, FormatFor(structuresPath))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", structuresPath, err)
	}

	return catalog.New(explosives, structures)
}

// ImportCatalogFromFiles validates both tables and replaces the stored catalog.
func (s *Syncer) ImportCatalogFromFiles(ctx context.Context, explosivesPath, structuresPath string) (*catalog.Catalog, error) {
	cat, err := LoadCatalogFiles(explosivesPath, structuresPath)
	if err != nil {
		return nil, err
	}

	catalogStore := db.NewCatalogStore(s.db)
	if err := catalogStore.BulkInsert(ctx, cat); err != nil {
		return nil, fmt.Errorf("inserting catalog: %w", err)
	}

	if err := s.db.SetMetadata(ctx, map[string]string{
		MetaLastSync:        time.Now().UTC().Format(time.RFC3339),
		MetaExplosivesCount: strconv.Itoa(len(cat.ExplosiveIDs())),
		MetaStructuresCount: strconv.Itoa(len(cat.StructureIDs())),
	}); err != nil {
		return nil, fmt.Errorf("recording import: %w", err)
	}

	return cat, nil
}

// ClearAll removes the stored catalog. Saved plans are kept.
func (s *Syncer) ClearAll(ctx context.Context) error {
	return db.NewCatalogStore(s.db).Clear(ctx)
}
