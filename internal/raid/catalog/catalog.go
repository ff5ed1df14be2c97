// Package catalog holds the immutable explosive and structure definitions.
//
// A Catalog is built once from validated data and shared by handle with every
// component that needs it. It is never mutated after New returns, so
// concurrent readers need no locking.
package catalog

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rsned/raid-optimizer-server/pkg/raid"
)

// Catalog is a read-only set of explosive and structure definitions.
type Catalog struct {
	explosives   map[string]raid.Explosive
	structures   map[string]raid.Structure
	explosiveIDs []string
	structureIDs []string
	materials    []string
}

// New validates the definitions and returns a Catalog holding private copies of them.
func New(explosives []raid.Explosive, structures []raid.Structure) (*Catalog, error) {
	c := &Catalog{
		explosives: make(map[string]raid.Explosive, len(explosives)),
		structures: make(map[string]raid.Structure, len(structures)),
	}

	var errs []error
	for _, s := range structures {
		if err := validateStructure(s); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := c.structures[s.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate structure %q", s.ID))
			continue
		}
		c.structures[s.ID] = s
		c.structureIDs = append(c.structureIDs, s.ID)
	}

	materials := make(map[string]bool)
	for _, e := range explosives {
		if err := c.validateExplosive(e); err != nil {
			errs = append(errs, err)
			continue
		}
		if _, dup := c.explosives[e.ID]; dup {
			errs = append(errs, fmt.Errorf("duplicate explosive %q", e.ID))
			continue
		}
		c.explosives[e.ID] = copyExplosive(e)
		c.explosiveIDs = append(c.explosiveIDs, e.ID)
		for m := range e.RawMaterials {
			materials[m] = true
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("catalog validation failed: %w", errors.Join(errs...))
	}

	for m := range materials {
		c.materials = append(c.materials, m)
	}
	sort.Strings(c.explosiveIDs)
	sort.Strings(c.structureIDs)
	sort.Strings(c.materials)

	return c, nil
}

func validateStructure(s raid.Structure) error {
	if s.ID == "" {
		return errors.New("structure id must not be empty")
	}
	if !(s.HitPoints > 0) || math.IsInf(s.HitPoints, 0) {
		return fmt.Errorf("structure %q: hit points must be positive, got %v", s.ID, s.HitPoints)
	}
	return nil
}

func (c *Catalog) validateExplosive(e raid.Explosive) error {
	if e.ID == "" {
		return errors.New("explosive id must not be empty")
	}
	for m, amount := range e.RawMaterials {
		if m == "" {
			return fmt.Errorf("explosive %q: material name must not be empty", e.ID)
		}
		if !validAmount(amount) {
			return fmt.Errorf("explosive %q: %s amount must be non-negative, got %v", e.ID, m, amount)
		}
	}
	for sid, dmg := range e.DamagePerStructure {
		if _, ok := c.structures[sid]; !ok {
			return fmt.Errorf("explosive %q: damage for unknown structure %q", e.ID, sid)
		}
		if !validAmount(dmg) {
			return fmt.Errorf("explosive %q: damage to %s must be non-negative, got %v", e.ID, sid, dmg)
		}
	}
	return nil
}

func validAmount(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func copyExplosive(e raid.Explosive) raid.Explosive {
	out := raid.Explosive{
		ID:                 e.ID,
		RawMaterials:       make(map[string]float64, len(e.RawMaterials)),
		DamagePerStructure: make(map[string]float64, len(e.DamagePerStructure)),
	}
	for k, v := range e.RawMaterials {
		out.RawMaterials[k] = v
	}
	for k, v := range e.DamagePerStructure {
		out.DamagePerStructure[k] = v
	}
	return out
}

// Explosive returns the explosive with the given id.
// The returned value is a copy; modifying it does not affect the catalog.
func (c *Catalog) Explosive(id string) (raid.Explosive, error) {
	e, ok := c.explosives[id]
	if !ok {
		return raid.Explosive{}, raid.UnknownExplosive(id)
	}
	return copyExplosive(e), nil
}

// Structure returns the structure with the given id.
func (c *Catalog) Structure(id string) (raid.Structure, error) {
	s, ok := c.structures[id]
	if !ok {
		return raid.Structure{}, raid.UnknownStructure(id)
	}
	return s, nil
}

// HasExplosive reports whether id names a known explosive.
func (c *Catalog) HasExplosive(id string) bool {
	_, ok := c.explosives[id]
	return ok
}

// HasStructure reports whether id names a known structure.
func (c *Catalog) HasStructure(id string) bool {
	_, ok := c.structures[id]
	return ok
}

// ExplosiveIDs returns all explosive ids, sorted.
func (c *Catalog) ExplosiveIDs() []string {
	return append([]string(nil), c.explosiveIDs...)
}

// StructureIDs returns all structure ids, sorted.
func (c *Catalog) StructureIDs() []string {
	return append([]string(nil), c.structureIDs...)
}

// Materials returns every raw material used by any explosive, sorted.
func (c *Catalog) Materials() []string {
	return append([]string(nil), c.materials...)
}

// Explosives returns copies of all explosives in id order.
func (c *Catalog) Explosives() []raid.Explosive {
	out := make([]raid.Explosive, 0, len(c.explosiveIDs))
	for _, id := range c.explosiveIDs {
		out = append(out, copyExplosive(c.explosives[id]))
	}
	return out
}

// Structures returns all structures in id order.
func (c *Catalog) Structures() []raid.Structure {
	out := make([]raid.Structure, 0, len(c.structureIDs))
	for _, id := range c.structureIDs {
		out = append(out, c.structures[id])
	}
	return out
}

// Listing returns the whole catalog in the list_catalog response shape.
func (c *Catalog) Listing() *raid.CatalogListing {
	return &raid.CatalogListing{
		Explosives: c.Explosives(),
		Structures: c.Structures(),
		Materials:  c.Materials(),
	}
}
