package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rsned/raid-optimizer-server/internal/raid/catalog"
	"github.com/rsned/raid-optimizer-server/pkg/raid"
)

// ErrEmptyCatalog is returned by LoadCatalog when nothing has been imported.
var ErrEmptyCatalog = errors.New("no catalog stored")

// CatalogStore handles explosive and structure data access.
type CatalogStore struct {
	db *DB
}

// NewCatalogStore creates a new CatalogStore.
func NewCatalogStore(db *DB) *CatalogStore {
	return &CatalogStore{db: db}
}

// BulkInsert replaces the stored catalog with the given one in a single transaction.
func (s *CatalogStore) BulkInsert(ctx context.Context, cat *catalog.Catalog) error {
	return s.db.InTransaction(ctx, func(tx *sql.Tx) error {
		if err := clearCatalog(ctx, tx); err != nil {
			return err
		}

		structStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO structures (id, hit_points) VALUES (?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing structure statement: %w", err)
		}
		defer func() { _ = structStmt.Close() }()

		expStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO explosives (id) VALUES (?)
		`)
		if err != nil {
			return fmt.Errorf("preparing explosive statement: %w", err)
		}
		defer func() { _ = expStmt.Close() }()

		matStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO explosive_materials (explosive_id, material, amount) VALUES (?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing material statement: %w", err)
		}
		defer func() { _ = matStmt.Close() }()

		dmgStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO explosive_damage (explosive_id, structure_id, damage) VALUES (?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("preparing damage statement: %w", err)
		}
		defer func() { _ = dmgStmt.Close() }()

		for _, st := range cat.Structures() {
			if _, err := structStmt.ExecContext(ctx, st.ID, st.HitPoints); err != nil {
				return fmt.Errorf("inserting structure %s: %w", st.ID, err)
			}
		}

		for _, e := range cat.Explosives() {
			if _, err := expStmt.ExecContext(ctx, e.ID); err != nil {
				return fmt.Errorf("inserting explosive %s: %w", e.ID, err)
			}
			for material, amount := range e.RawMaterials {
				if _, err := matStmt.ExecContext(ctx, e.ID, material, amount); err != nil {
					return fmt.Errorf("inserting material %s for %s: %w", material, e.ID, err)
				}
			}
			for structure, damage := range e.DamagePerStructure {
				if _, err := dmgStmt.ExecContext(ctx, e.ID, structure, damage); err != nil {
					return fmt.Errorf("inserting damage to %s for %s: %w", structure, e.ID, err)
				}
			}
		}

		return nil
	})
}

// LoadCatalog reads the stored definitions and validates them into a Catalog.
func (s *CatalogStore) LoadCatalog(ctx context.Context) (*catalog.Catalog, error) {
	var structures []raid.Structure
	err := s.each(ctx, `SELECT id, hit_points FROM structures ORDER BY id`, func(rows *sql.Rows) error {
		var st raid.Structure
		if err := rows.Scan(&st.ID, &st.HitPoints); err != nil {
			return fmt.Errorf("scanning structure: %w", err)
		}
		structures = append(structures, st)
		return nil
	})
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*raid.Explosive)
	var order []string
	err = s.each(ctx, `SELECT id FROM explosives ORDER BY id`, func(rows *sql.Rows) error {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scanning explosive: %w", err)
		}
		byID[id] = &raid.Explosive{
			ID:                 id,
			RawMaterials:       make(map[string]float64),
			DamagePerStructure: make(map[string]float64),
		}
		order = append(order, id)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(structures) == 0 && len(order) == 0 {
		return nil, ErrEmptyCatalog
	}

	err = s.each(ctx, `SELECT explosive_id, material, amount FROM explosive_materials`, func(rows *sql.Rows) error {
		var id, material string
		var amount float64
		if err := rows.Scan(&id, &material, &amount); err != nil {
			return fmt.Errorf("scanning material: %w", err)
		}
		if e, ok := byID[id]; ok {
			e.RawMaterials[material] = amount
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.each(ctx, `SELECT explosive_id, structure_id, damage FROM explosive_damage`, func(rows *sql.Rows) error {
		var id, structure string
		var damage float64
		if err := rows.Scan(&id, &structure, &damage); err != nil {
			return fmt.Errorf("scanning damage: %w", err)
		}
		if e, ok := byID[id]; ok {
			e.DamagePerStructure[structure] = damage
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	explosives := make([]raid.Explosive, 0, len(order))
	for _, id := range order {
		explosives = append(explosives, *byID[id])
	}

	cat, err := catalog.New(explosives, structures)
	if err != nil {
		return nil, fmt.Errorf("stored catalog: %w", err)
	}
	return cat, nil
}

// each runs query and calls fn for every row. Rows are fully consumed
// before it returns.
func (s *CatalogStore) each(ctx context.Context, query string, fn func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("querying catalog: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count returns the number of stored explosives and structures.
func (s *CatalogStore) Count(ctx context.Context) (explosives, structures int, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM explosives), (SELECT COUNT(*) FROM structures)
	`).Scan(&explosives, &structures)
	if err != nil {
		return 0, 0, fmt.Errorf("counting catalog: %w", err)
	}
	return explosives, structures, nil
}

// Clear removes all catalog data (for re-import).
func (s *CatalogStore) Clear(ctx context.Context) error {
	return s.db.InTransaction(ctx, func(tx *sql.Tx) error {
		return clearCatalog(ctx, tx)
	})
}

func clearCatalog(ctx context.Context, tx *sql.Tx) error {
	for _, table := range []string{"explosive_damage", "explosive_materials", "explosives", "structures"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return nil
}
