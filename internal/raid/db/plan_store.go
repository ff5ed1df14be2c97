package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rsned/raid-optimizer-server/pkg/raid"
)

// ErrPlanNotFound is returned by Get for an unknown plan id.
var ErrPlanNotFound = errors.New("plan not found")

// DefaultPlanListLimit caps List when no limit is given.
const DefaultPlanListLimit = 50

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// PlanStore handles saved optimization results.
type PlanStore struct {
	db  *DB
	now func() time.Time
}

// NewPlanStore creates a new PlanStore.
func NewPlanStore(db *DB) *PlanStore {
	return &PlanStore{db: db, now: time.Now}
}

// Save stores an optimization result under a new plan id and sets
// result.PlanID to it.
func (s *PlanStore) Save(ctx context.Context, mode raid.Mode, req raid.OptimizeRequest, result *raid.OptimizationResult) (*raid.Plan, error) {
	if result == nil {
		return nil, errors.New("saving plan: nil result")
	}
	if mode == "" {
		mode = raid.ModeStandard
	}

	plan := &raid.Plan{
		ID:         uuid.NewString(),
		CreatedAt:  s.now().UTC(),
		Mode:       mode,
		Request:    req,
		SulfurCost: result.SulfurCost,
	}
	result.PlanID = plan.ID
	plan.Result = result

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding plan request: %w", err)
	}
	resJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encoding plan result: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO raid_plans (id, created_at, mode, request_json, result_json, sulfur_cost)
		VALUES (?, ?, ?, ?, ?, ?)
	`, plan.ID, plan.CreatedAt.Format(timeLayout), string(mode), string(reqJSON), string(resJSON), plan.SulfurCost)
	if err != nil {
		return nil, fmt.Errorf("inserting plan: %w", err)
	}

	return plan, nil
}

// Get retrieves a saved plan by id.
func (s *PlanStore) Get(ctx context.Context, id string) (*raid.Plan, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}

	var created, mode, reqJSON, resJSON string
	plan := &raid.Plan{ID: id}
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at, mode, request_json, result_json, sulfur_cost
		FROM raid_plans WHERE id = ?
	`, id).Scan(&created, &mode, &reqJSON, &resJSON, &plan.SulfurCost)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying plan: %w", err)
	}

	if plan.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return nil, fmt.Errorf("parsing plan timestamp: %w", err)
	}
	plan.Mode = raid.Mode(mode)
	if err := json.Unmarshal([]byte(reqJSON), &plan.Request); err != nil {
		return nil, fmt.Errorf("decoding plan request: %w", err)
	}
	plan.Result = &raid.OptimizationResult{}
	if err := json.Unmarshal([]byte(resJSON), plan.Result); err != nil {
		return nil, fmt.Errorf("decoding plan result: %w", err)
	}

	return plan, nil
}

// List returns the most recent plans first.
func (s *PlanStore) List(ctx context.Context, limit int) ([]raid.PlanSummary, error) {
	if limit <= 0 {
		limit = DefaultPlanListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, mode, sulfur_cost
		FROM raid_plans
		ORDER BY created_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing plans: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var plans []raid.PlanSummary
	for rows.Next() {
		var p raid.PlanSummary
		var created, mode string
		if err := rows.Scan(&p.ID, &created, &mode, &p.SulfurCost); err != nil {
			return nil, fmt.Errorf("scanning plan: %w", err)
		}
		if p.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parsing plan timestamp: %w", err)
		}
		p.Mode = raid.Mode(mode)
		plans = append(plans, p)
	}

	return plans, rows.Err()
}
