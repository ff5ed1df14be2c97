package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsned/raid-optimizer-server/internal/raid/catalog"
	"github.com/rsned/raid-optimizer-server/internal/raid/db"
	"github.com/rsned/raid-optimizer-server/internal/raid/engine"
	"github.com/rsned/raid-optimizer-server/internal/raid/metrics"
	"github.com/rsned/raid-optimizer-server/internal/raid/service"
	"github.com/rsned/raid-optimizer-server/pkg/raid"
)

func newTestRouter(t *testing.T, withPlans bool, opts Options) http.Handler {
	t.Helper()
	cat, err := catalog.New(
		[]raid.Explosive{
			{
				ID:                 "Rocket",
				RawMaterials:       map[string]float64{"sulfur": 1400, "charcoal": 1950},
				DamagePerStructure: map[string]float64{"Wooden Door": 200},
			},
			{
				ID:                 "Satchel Charge",
				RawMaterials:       map[string]float64{"sulfur": 480, "charcoal": 720},
				DamagePerStructure: map[string]float64{"Wooden Door": 95},
			},
		},
		[]raid.Structure{{ID: "Wooden Door", HitPoints: 200}, {ID: "Armored Wall", HitPoints: 1000}},
	)
	require.NoError(t, err)
	resolver, err := catalog.NewResolver(cat, 16, 3)
	require.NoError(t, err)

	var plans *db.PlanStore
	if withPlans {
		database, err := db.OpenAndInit(context.Background(), db.MemoryPath)
		require.NoError(t, err)
		t.Cleanup(func() { _ = database.Close() })
		plans = db.NewPlanStore(database)
	}
	var engOpts engine.Options
	if opts.Metrics != nil {
		engOpts.Observer = opts.Metrics
	}
	svc := service.New(engine.New(cat, engOpts), resolver, plans, nil)
	return NewRouter(svc, opts)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndCatalog(t *testing.T) {
	h := newTestRouter(t, false, Options{})

	rec := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/catalog", "")
	require.Equal(t, http.StatusOK, rec.Code)
	listing := decodeBody[raid.CatalogListing](t, rec)
	assert.Len(t, listing.Explosives, 2)
	assert.Len(t, listing.Structures, 2)
}

func TestResources(t *testing.T) {
	h := newTestRouter(t, false, Options{})

	rec := do(t, h, http.MethodPost, "/resources", `{"explosive":"rocket","quantity":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[raid.ResourcesResponse](t, rec)
	assert.Equal(t, 4200.0, resp.Totals()["sulfur"])

	rec = do(t, h, http.MethodPost, "/resources", `{"lines":[{"explosive":"Rocket","quantity":1},{"explosive":"Satchel Charge","quantity":1}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	batch := decodeBody[raid.BatchResourcesResponse](t, rec)
	assert.Equal(t, map[string]int{"Rocket": 1, "Satchel Charge": 1}, batch.Counts)
}

func TestDamage(t *testing.T) {
	h := newTestRouter(t, false, Options{})

	rec := do(t, h, http.MethodPost, "/damage", `{"structure":"wooden door","explosives":["Satchel Charge"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[raid.DamageResponse](t, rec)
	assert.Equal(t, []raid.DamageValue{{Explosive: "Satchel Charge", Damage: 95, HitsNeeded: 3}}, resp.Damages)
}

func TestOptimizerAndPlans(t *testing.T) {
	h := newTestRouter(t, true, Options{})

	rec := do(t, h, http.MethodPost, "/optimizer",
		`{"structures":{"Wooden Door":1},"explosives":{"Rocket":0,"Satchel Charge":0},"save":true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decodeBody[raid.OptimizationResult](t, rec)
	assert.Equal(t, 1400, result.SulfurCost)
	require.NotEmpty(t, result.PlanID)
	assert.Equal(t, "/plans/"+result.PlanID, rec.Header().Get("Location"))

	rec = do(t, h, http.MethodGet, "/plans/"+result.PlanID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	plan := decodeBody[raid.Plan](t, rec)
	assert.Equal(t, raid.ModeStandard, plan.Mode)
	assert.Equal(t, map[string]int{"Wooden Door": 1}, plan.Request.Structures)

	rec = do(t, h, http.MethodGet, "/plans?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[struct {
		Plans []raid.PlanSummary `json:"plans"`
	}](t, rec)
	require.Len(t, list.Plans, 1)
	assert.Equal(t, result.PlanID, list.Plans[0].ID)

	rec = do(t, h, http.MethodPost, "/optimizer",
		`{"structures":{"Wooden Door":1},"explosives":{"Rocket":0},"mode":"legacy"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	legacy := decodeBody[raid.OptimizationResult](t, rec)
	assert.Equal(t, raid.ModeLegacy, legacy.Mode)
	assert.Equal(t, 2800, legacy.SulfurCost)
	assert.Empty(t, legacy.PlanID)
}

func TestErrorStatus(t *testing.T) {
	h := newTestRouter(t, false, Options{MaxBodyBytes: 256})

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		kind   string
		id     string
	}{
		{
			name: "unknown explosive", method: http.MethodPost, path: "/resources",
			body:   `{"explosive":"grenade","quantity":1}`,
			status: http.StatusBadRequest, kind: "UnknownExplosive", id: "grenade",
		},
		{
			name: "negative owned", method: http.MethodPost, path: "/optimizer",
			body:   `{"structures":{"Wooden Door":1},"explosives":{"Rocket":-1}}`,
			status: http.StatusBadRequest, kind: "InvalidQuantity", id: "Rocket",
		},
		{
			name: "unreachable structure", method: http.MethodPost, path: "/optimizer",
			body:   `{"structures":{"Armored Wall":1},"explosives":{"Rocket":0}}`,
			status: http.StatusUnprocessableEntity, kind: "SolverInfeasible",
		},
		{
			name: "malformed body", method: http.MethodPost, path: "/damage",
			body:   `{"structure":`,
			status: http.StatusBadRequest, kind: "BadRequest",
		},
		{
			name: "body too large", method: http.MethodPost, path: "/damage",
			body:   `{"structure":"` + strings.Repeat("x", 512) + `"}`,
			status: http.StatusRequestEntityTooLarge, kind: "BodyTooLarge",
		},
		{
			name: "plans disabled", method: http.MethodGet, path: "/plans",
			status: http.StatusServiceUnavailable, kind: "PlansDisabled",
		},
		{
			name: "bad resolve kind", method: http.MethodGet, path: "/resolve?kind=tool&name=x",
			status: http.StatusBadRequest, kind: "BadRequest",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decodeBody[ErrorBody](t, rec)
			assert.Equal(t, tt.kind, body.Error)
			assert.Equal(t, tt.id, body.ID)
		})
	}
}

func TestPlanNotFound(t *testing.T) {
	h := newTestRouter(t, true, Options{})
	rec := do(t, h, http.MethodGet, "/plans/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "PlanNotFound", decodeBody[ErrorBody](t, rec).Error)

	rec = do(t, h, http.MethodGet, "/plans?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolve(t *testing.T) {
	h := newTestRouter(t, false, Options{})
	rec := do(t, h, http.MethodGet, "/resolve?kind=explosive&name=satchel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[raid.Resolution](t, rec)
	assert.Equal(t, "Satchel Charge", res.ID)
	assert.Equal(t, catalog.MatchPrefix, res.Match)
}

func TestMetrics(t *testing.T) {
	rec := metrics.NewRecorder()
	h := newTestRouter(t, false, Options{Metrics: rec})

	do(t, h, http.MethodPost, "/optimizer", `{"structures":{"Wooden Door":1},"explosives":{"Rocket":1}}`)
	do(t, h, http.MethodPost, "/resources", `{"explosive":"grenade","quantity":1}`)

	out := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, out.Code)
	text := out.Body.String()
	assert.Contains(t, text, `raid_http_requests_total{code="200",route="/optimizer"} 1`)
	assert.Contains(t, text, `raid_http_requests_total{code="400",route="/resources"} 1`)
	assert.Contains(t, text, `raid_optimize_total{mode="standard",outcome="optimal"} 1`)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, StatusFor(raid.ErrSolverTimeout))
	assert.Equal(t, http.StatusGatewayTimeout, StatusFor(fmt.Errorf("optimization abandoned: %w", context.DeadlineExceeded)))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(raid.ErrSolverFailure))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}
