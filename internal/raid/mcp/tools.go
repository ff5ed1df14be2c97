package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rsned/raid-optimizer-server/internal/raid/db"
	"github.com/rsned/raid-optimizer-server/pkg/raid"
)

// ToolDefinition describes an MCP tool.
type ToolDefinition struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	InputSchema JSONSchema `json:"inputSchema"`
}

// JSONSchema is a simplified JSON Schema representation.
type JSONSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes a schema property.
type Property struct {
	Type                 string              `json:"type,omitempty"`
	Description          string              `json:"description,omitempty"`
	Default              any                 `json:"default,omitempty"`
	Enum                 []string            `json:"enum,omitempty"`
	Minimum              *float64            `json:"minimum,omitempty"`
	Maximum              *float64            `json:"maximum,omitempty"`
	Items                *Property           `json:"items,omitempty"`
	Properties           map[string]Property `json:"properties,omitempty"`
	Required             []string            `json:"required,omitempty"`
	AdditionalProperties *Property           `json:"additionalProperties,omitempty"`
}

// tool pairs a definition with its handler.
type tool struct {
	def  ToolDefinition
	call func(ctx context.Context, args json.RawMessage) (any, error)
}

// registry lists the tools in the order tools/list reports them.
func (s *Server) registry() []tool {
	return []tool{
		{calculateResourcesTool(), s.toolCalculateResources},
		{damageValuesTool(), s.toolDamageValues},
		{optimizeRaidTool(), s.toolOptimizeRaid},
		{getRaidPlanTool(), s.toolGetRaidPlan},
		{listCatalogTool(), s.toolListCatalog},
		{resolveNameTool(), s.toolResolveName},
	}
}

// Tools returns every tool definition.
func (s *Server) Tools() []ToolDefinition {
	reg := s.registry()
	defs := make([]ToolDefinition, len(reg))
	for i, t := range reg {
		defs[i] = t.def
	}
	return defs
}

func calculateResourcesTool() ToolDefinition {
	minQty := 1.0

	line := Property{
		Type: "object",
		Properties: map[string]Property{
			"explosive": {Type: "string", Description: "Explosive name"},
			"quantity":  {Type: "integer", Description: "Number of units to craft", Minimum: &minQty},
		},
		Required: []string{"explosive", "quantity"},
	}

	return ToolDefinition{
		Name:        "calculate_resources",
		Description: "Calculate the raw materials needed to craft a quantity of an explosive. Pass 'lines' to price several explosives at once.",
		InputSchema: JSONSchema{
			Type: "object",
			Properties: map[string]Property{
				"explosive": {Type: "string", Description: "Explosive name"},
				"quantity":  {Type: "integer", Description: "Number of units to craft", Minimum: &minQty},
				"lines": {
					Type:        "array",
					Description: "Several explosive/quantity pairs priced together",
					Items:       &line,
				},
			},
		},
	}
}

func damageValuesTool() ToolDefinition {
	return ToolDefinition{
		Name:        "damage_values",
		Description: "Look up the damage each explosive deals to a structure, with the structure's hit points and the hits needed to destroy it.",
		InputSchema: JSONSchema{
			Type: "object",
			Properties: map[string]Property{
				"structure": {Type: "string", Description: "Structure name"},
				"explosives": {
					Type:        "array",
					Description: "Explosive names to look up",
					Items:       &Property{Type: "string"},
				},
			},
			Required: []string{"structure", "explosives"},
		},
	}
}

func optimizeRaidTool() ToolDefinition {
	minCount := 0.0

	return ToolDefinition{
		Name:        "optimize_raid",
		Description: "Find the assignment of explosives to structures that destroys every structure while spending the least sulfur on newly crafted explosives. Owned explosives cost nothing.",
		InputSchema: JSONSchema{
			Type: "object",
			Properties: map[string]Property{
				"structures": {
					Type:                 "object",
					Description:          "Structures to destroy (name -> count)",
					AdditionalProperties: &Property{Type: "integer", Minimum: &minCount},
				},
				"explosives": {
					Type:                 "object",
					Description:          "Candidate explosives (name -> owned count). Use 0 for explosives that may only be crafted.",
					AdditionalProperties: &Property{Type: "integer", Minimum: &minCount},
				},
				"mode": {
					Type:        "string",
					Description: "Optimization model",
					Enum:        []string{string(raid.ModeStandard), string(raid.ModeLegacy)},
					Default:     string(raid.ModeStandard),
				},
				"save": {
					Type:        "boolean",
					Description: "Persist the resulting plan and return its id",
					Default:     false,
				},
			},
			Required: []string{"structures", "explosives"},
		},
	}
}

func getRaidPlanTool() ToolDefinition {
	minLimit := 1.0
	maxLimit := 500.0

	return ToolDefinition{
		Name:        "get_raid_plan",
		Description: "Fetch a saved raid plan by id, or list recent plans when no id is given.",
		InputSchema: JSONSchema{
			Type: "object",
			Properties: map[string]Property{
				"id": {Type: "string", Description: "Plan id returned by optimize_raid"},
				"limit": {
					Type:        "integer",
					Description: "Maximum plans to list",
					Default:     db.DefaultPlanListLimit,
					Minimum:     &minLimit,
					Maximum:     &maxLimit,
				},
			},
		},
	}
}

func listCatalogTool() ToolDefinition {
	return ToolDefinition{
		Name:        "list_catalog",
		Description: "List every explosive, structure and raw material known to the server.",
		InputSchema: JSONSchema{
			Type:       "object",
			Properties: map[string]Property{},
		},
	}
}

func resolveNameTool() ToolDefinition {
	return ToolDefinition{
		Name:        "resolve_name",
		Description: "Resolve a loosely typed explosive or structure name to its catalog id, with suggestions when nothing matches.",
		InputSchema: JSONSchema{
			Type: "object",
			Properties: map[string]Property{
				"kind": {
					Type:        "string",
					Description: "What the name refers to",
					Enum:        []string{"explosive", "structure"},
				},
				"name": {Type: "string", Description: "Name to resolve"},
			},
			Required: []string{"kind", "name"},
		},
	}
}

// decodeArgs unmarshals tool arguments, treating absent arguments as an
// empty object.
func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return &invalidParams{fmt.Errorf("invalid arguments: %w", err)}
	}
	return nil
}

type calculateResourcesArgs struct {
	raid.ResourcesArgs
	Lines []raid.ResourcesArgs `json:"lines,omitempty"`
}

func (s *Server) toolCalculateResources(ctx context.Context, args json.RawMessage) (any, error) {
	var req calculateResourcesArgs
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	if len(req.Lines) > 0 {
		return s.service.Batch(ctx, req.Lines)
	}
	return s.service.Resources(ctx, req.ResourcesArgs)
}

func (s *Server) toolDamageValues(ctx context.Context, args json.RawMessage) (any, error) {
	var req raid.DamageRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	return s.service.Damage(ctx, req)
}

func (s *Server) toolOptimizeRaid(ctx context.Context, args json.RawMessage) (any, error) {
	var req raid.OptimizeArgs
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	return s.service.Optimize(ctx, req)
}

type getRaidPlanArgs struct {
	ID    string `json:"id,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

func (s *Server) toolGetRaidPlan(ctx context.Context, args json.RawMessage) (any, error) {
	var req getRaidPlanArgs
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	if req.ID != "" {
		return s.service.Plan(ctx, req.ID)
	}
	plans, err := s.service.Plans(ctx, req.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"plans": plans}, nil
}

func (s *Server) toolListCatalog(ctx context.Context, args json.RawMessage) (any, error) {
	return s.service.Catalog(), nil
}

func (s *Server) toolResolveName(ctx context.Context, args json.RawMessage) (any, error) {
	var req raid.ResolveRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, err
	}
	return s.service.Resolve(req)
}
