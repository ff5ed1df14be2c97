// Package raid contains the core types for the raid optimizer server.
package raid

import "time"

// SulfurMaterial is the raw material whose crafted consumption the optimizer minimizes.
const SulfurMaterial = "sulfur"

// ============================================
// CATALOG TYPES
// ============================================

// Explosive is a catalog entry with raw-material costs per unit and damage per structure type.
type Explosive struct {
	ID                 string             `json:"id"`
	RawMaterials       map[string]float64 `json:"raw_materials"`
	DamagePerStructure map[string]float64 `json:"damage_per_structure"`
}

// SulfurCost returns the sulfur needed to craft one unit (0 if the explosive needs none).
func (e Explosive) SulfurCost() float64 {
	return e.RawMaterials[SulfurMaterial]
}

// DamageTo returns the damage one unit deals to the given structure type.
func (e Explosive) DamageTo(structureID string) float64 {
	return e.DamagePerStructure[structureID]
}

// Structure is a catalog entry with the hit points explosive damage must meet.
type Structure struct {
	ID        string  `json:"id"`
	HitPoints float64 `json:"hit_points"`
}

// MaterialAmount is a single raw material total.
type MaterialAmount struct {
	Material string  `json:"material"`
	Amount   float64 `json:"amount"`
}

// ============================================
// RESOURCE TYPES
// ============================================

// ResourcesRequest is the input for the calculate_resources tool.
type ResourcesRequest struct {
	Explosive string `json:"explosive"`
	Quantity  int    `json:"quantity"`
}

// ResourcesResponse is the output for the calculate_resources tool.
type ResourcesResponse struct {
	Explosive string           `json:"explosive"`
	Quantity  int              `json:"quantity"`
	Materials []MaterialAmount `json:"materials"`
}

// Totals returns the materials as a map.
func (r *ResourcesResponse) Totals() map[string]float64 {
	m := make(map[string]float64, len(r.Materials))
	for _, ma := range r.Materials {
		m[ma.Material] = ma.Amount
	}
	return m
}

// BatchLine is one explosive/quantity entry in a batch resource calculation.
type BatchLine struct {
	Explosive string `json:"explosive"`
	Quantity  int    `json:"quantity"`
}

// BatchResourcesResponse accumulates several resource calculations.
type BatchResourcesResponse struct {
	Counts    map[string]int   `json:"counts"`
	Materials []MaterialAmount `json:"materials"`
}

// ============================================
// DAMAGE TYPES
// ============================================

// DamageRequest is the input for the damage_values tool.
type DamageRequest struct {
	Explosives []string `json:"explosives"`
	Structure  string   `json:"structure"`
}

// DamageValue is the damage one explosive deals to the requested structure.
type DamageValue struct {
	Explosive  string  `json:"explosive"`
	Damage     float64 `json:"damage"`
	HitsNeeded int     `json:"hits_needed"`
}

// DamageResponse is the output for the damage_values tool.
type DamageResponse struct {
	Structure string        `json:"structure"`
	HitPoints float64       `json:"hit_points"`
	Damages   []DamageValue `json:"damages"`
}

// ByExplosive returns the damage values keyed by explosive id.
func (r *DamageResponse) ByExplosive() map[string]float64 {
	m := make(map[string]float64, len(r.Damages))
	for _, d := range r.Damages {
		m[d.Explosive] = d.Damage
	}
	return m
}

// ============================================
// OPTIMIZER TYPES
// ============================================

// Mode selects the optimization model.
type Mode string

const (
	// ModeStandard is the owned/crafted model with the overkill window.
	ModeStandard Mode = "standard"
	// ModeLegacy is the single-variable model with a lower bound of HP+1 and no inventory.
	ModeLegacy Mode = "legacy"
)

// IsValid checks if the mode is known. The empty mode means standard.
func (m Mode) IsValid() bool {
	return m == "" || m == ModeStandard || m == ModeLegacy
}

// OptimizeRequest is the input for the optimize_raid tool.
type OptimizeRequest struct {
	// Structures maps structure id to the number of instances to destroy.
	Structures map[string]int `json:"structures"`
	// Explosives maps candidate explosive id to the owned count (0 = craft only).
	Explosives map[string]int `json:"explosives"`
}

// LegacyRequest is the input for the legacy optimizer. Every unit is treated as crafted.
type LegacyRequest struct {
	Structures map[string]int `json:"structures"`
	Explosives []string       `json:"explosives"`
}

// ExplosiveUsage is the usage of one explosive.
type ExplosiveUsage struct {
	Owned   int `json:"owned"`
	Crafted int `json:"crafted"`
	Total   int `json:"total"`
}

// InstanceUsage is the explosives assigned to one structure instance.
// Only explosives with non-zero usage are present.
type InstanceUsage struct {
	Structure string                    `json:"structure"`
	Ordinal   int                       `json:"ordinal"`
	Damage    float64                   `json:"damage"`
	Usage     map[string]ExplosiveUsage `json:"usage"`
}

// StructureUsage is the per-structure-type summary.
type StructureUsage struct {
	Structure string         `json:"structure"`
	Count     int            `json:"count"`
	Usage     map[string]int `json:"usage"`
}

// SolveStats describes the solver run that produced a result.
type SolveStats struct {
	Status   string        `json:"status"`
	Nodes    int           `json:"nodes"`
	Duration time.Duration `json:"duration_ns"`
}

// OptimizationResult is the output for the optimize_raid tool.
//
// When several assignments reach the same sulfur cost, the split of owned
// units across instances depends on the solver's search order and is not
// guaranteed to be stable between calls. The cost and the per-explosive
// totals are.
type OptimizationResult struct {
	Mode             Mode                      `json:"mode"`
	Instances        []InstanceUsage           `json:"instances"`
	Structures       []StructureUsage          `json:"structures"`
	ExplosiveTotals  map[string]ExplosiveUsage `json:"explosive_totals"`
	SulfurCost       int                       `json:"sulfur_cost"`
	TotalResources   []MaterialAmount          `json:"total_resources"`
	CraftedResources []MaterialAmount          `json:"crafted_resources"`
	Stats            SolveStats                `json:"stats"`
	PlanID           string                    `json:"plan_id,omitempty"`
}

// ============================================
// PLAN TYPES
// ============================================

// Plan is a saved optimization result.
type Plan struct {
	ID         string              `json:"id"`
	CreatedAt  time.Time           `json:"created_at"`
	Mode       Mode                `json:"mode"`
	Request    OptimizeRequest     `json:"request"`
	Result     *OptimizationResult `json:"result"`
	SulfurCost int                 `json:"sulfur_cost"`
}

// PlanSummary is a lightweight plan entry for listings.
type PlanSummary struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Mode       Mode      `json:"mode"`
	SulfurCost int       `json:"sulfur_cost"`
}

// ============================================
// CATALOG LISTING TYPES
// ============================================

// CatalogListing is the output for the list_catalog tool.
type CatalogListing struct {
	Explosives []Explosive `json:"explosives"`
	Structures []Structure `json:"structures"`
	Materials  []string    `json:"materials"`
}

// ResolveRequest is the input for the resolve_name tool.
type ResolveRequest struct {
	Kind string `json:"kind"` // "explosive" or "structure"
	Name string `json:"name"`
}

// Resolution is the result of resolving free-text input to a catalog id.
type Resolution struct {
	Input       string   `json:"input"`
	ID          string   `json:"id,omitempty"`
	Match       string   `json:"match"` // "exact", "case", "fuzzy", "none"
	Suggestions []string `json:"suggestions,omitempty"`
}
