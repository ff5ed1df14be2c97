// Package service is the boundary shared by the MCP, HTTP and CLI front
// ends. It resolves user-typed names to catalog ids, converts wire arguments,
// runs the engine and persists plans.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/rsned/raid-optimizer-server/internal/raid/catalog"
	"github.com/rsned/raid-optimizer-server/internal/raid/db"
	"github.com/rsned/raid-optimizer-server/internal/raid/engine"
	"github.com/rsned/raid-optimizer-server/pkg/raid"
)

// ErrPlansDisabled is returned for plan operations when no plan store is configured.
var ErrPlansDisabled = errors.New("plan storage is not configured")

// Service wires the engine to name resolution and plan storage.
type Service struct {
	engine   *engine.Engine
	resolver *catalog.Resolver
	plans    *db.PlanStore
	logger   *slog.Logger
}

// New creates a Service. A nil resolver accepts exact ids only; a nil plan
// store disables saving and plan lookups.
func New(eng *engine.Engine, resolver *catalog.Resolver, plans *db.PlanStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: eng, resolver: resolver, plans: plans, logger: logger}
}

func (s *Service) explosive(name string) (string, error) {
	if s.resolver == nil {
		return name, nil
	}
	return s.resolver.Explosive(name)
}

func (s *Service) structure(name string) (string, error) {
	if s.resolver == nil {
		return name, nil
	}
	return s.resolver.Structure(name)
}

// Resources prices one explosive/quantity pair.
func (s *Service) Resources(ctx context.Context, args raid.ResourcesArgs) (*raid.ResourcesResponse, error) {
	id, err := s.explosive(args.Explosive)
	if err != nil {
		return nil, err
	}
	args.Explosive = id
	req, err := args.Request()
	if err != nil {
		return nil, err
	}
	return s.engine.CalculateResources(ctx, req)
}

// Batch prices several explosive/quantity pairs together.
func (s *Service) Batch(ctx context.Context, lines []raid.ResourcesArgs) (*raid.BatchResourcesResponse, error) {
	batch := make([]raid.BatchLine, 0, len(lines))
	for _, line := range lines {
		id, err := s.explosive(line.Explosive)
		if err != nil {
			return nil, err
		}
		line.Explosive = id
		req, err := line.Request()
		if err != nil {
			return nil, err
		}
		batch = append(batch, raid.BatchLine(req))
	}
	return s.engine.CalculateBatch(ctx, batch)
}

// Damage looks up damage values after resolving every name.
func (s *Service) Damage(ctx context.Context, req raid.DamageRequest) (*raid.DamageResponse, error) {
	id, err := s.structure(req.Structure)
	if err != nil {
		return nil, err
	}
	resolved := raid.DamageRequest{Structure: id, Explosives: make([]string, 0, len(req.Explosives))}
	for _, name := range req.Explosives {
		eid, err := s.explosive(name)
		if err != nil {
			return nil, err
		}
		resolved.Explosives = append(resolved.Explosives, eid)
	}
	return s.engine.DamageValues(ctx, resolved)
}

// Optimize runs the optimizer in the requested mode and saves the plan when asked.
func (s *Service) Optimize(ctx context.Context, args raid.OptimizeArgs) (*raid.OptimizationResult, error) {
	if !args.Mode.IsValid() {
		return nil, &raid.InputError{Kind: raid.ErrInvalidMode, Value: string(args.Mode)}
	}
	if args.Save && s.plans == nil {
		return nil, ErrPlansDisabled
	}

	req, err := args.Request()
	if err != nil {
		return nil, err
	}
	if req, err = s.resolveOptimize(req); err != nil {
		return nil, err
	}

	mode := args.Mode
	if mode == "" {
		mode = raid.ModeStandard
	}

	var result *raid.OptimizationResult
	switch mode {
	case raid.ModeLegacy:
		result, err = s.engine.OptimizeLegacy(ctx, req.Legacy())
	default:
		result, err = s.engine.OptimizeRaid(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	if args.Save {
		if _, err := s.plans.Save(ctx, mode, req, result); err != nil {
			return nil, fmt.Errorf("saving plan: %w", err)
		}
		s.logger.Info("saved raid plan", "id", result.PlanID, "mode", mode, "sulfur", result.SulfurCost)
	}
	return result, nil
}

// resolveOptimize maps request keys to canonical ids. Names that resolve to
// the same id are summed.
func (s *Service) resolveOptimize(req raid.OptimizeRequest) (raid.OptimizeRequest, error) {
	out := raid.OptimizeRequest{
		Structures: make(map[string]int, len(req.Structures)),
		Explosives: make(map[string]int, len(req.Explosives)),
	}
	for _, name := range sortedKeys(req.Structures) {
		id, err := s.structure(name)
		if err != nil {
			return raid.OptimizeRequest{}, err
		}
		out.Structures[id] += req.Structures[name]
	}
	for _, name := range sortedKeys(req.Explosives) {
		id, err := s.explosive(name)
		if err != nil {
			return raid.OptimizeRequest{}, err
		}
		out.Explosives[id] += req.Explosives[name]
	}
	return out, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Plan returns a saved plan.
func (s *Service) Plan(ctx context.Context, id string) (*raid.Plan, error) {
	if s.plans == nil {
		return nil, ErrPlansDisabled
	}
	return s.plans.Get(ctx, id)
}

// Plans lists saved plans, most recent first.
func (s *Service) Plans(ctx context.Context, limit int) ([]raid.PlanSummary, error) {
	if s.plans == nil {
		return nil, ErrPlansDisabled
	}
	return s.plans.List(ctx, limit)
}

// Catalog lists every explosive, structure and material.
func (s *Service) Catalog() *raid.CatalogListing {
	return s.engine.Catalog().Listing()
}

// Resolve resolves free text to a catalog id without failing on no match.
func (s *Service) Resolve(req raid.ResolveRequest) (raid.Resolution, error) {
	if s.resolver == nil {
		return raid.Resolution{}, errors.New("name resolution is not configured")
	}
	return s.resolver.Resolve(req.Kind, req.Name)
}

// ErrorKind extends raid.ErrorKind with the plan storage failures.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, db.ErrPlanNotFound):
		return "PlanNotFound"
	case errors.Is(err, ErrPlansDisabled):
		return "PlansDisabled"
	default:
		return raid.ErrorKind(err)
	}
}
