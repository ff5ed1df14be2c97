package catalog

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsned/raid-optimizer-server/pkg/raid"
)

func TestResolve(t *testing.T) {
	r, err := NewResolver(newTestCatalog(t), 16, 3)
	require.NoError(t, err)

	tests := []struct {
		name      string
		kind      string
		input     string
		wantID    string
		wantMatch string
		wantSugg  []string
	}{
		{name: "exact", kind: KindExplosive, input: "Rocket", wantID: "Rocket", wantMatch: MatchExact},
		{name: "case insensitive", kind: KindExplosive, input: "rocket", wantID: "Rocket", wantMatch: MatchCase},
		{name: "extra whitespace", kind: KindExplosive, input: "  satchel   CHARGE ", wantID: "Satchel Charge", wantMatch: MatchCase},
		{name: "underscores", kind: KindExplosive, input: "timed_explosive_charge", wantID: "Timed Explosive Charge", wantMatch: MatchCase},
		{name: "unique prefix", kind: KindExplosive, input: "sat", wantID: "Satchel Charge", wantMatch: MatchPrefix},
		{name: "typo", kind: KindExplosive, input: "Rockt", wantID: "Rocket", wantMatch: MatchFuzzy},
		{name: "structure prefix", kind: KindStructure, input: "metal wal", wantID: "Metal Wall", wantMatch: MatchPrefix},
		{name: "structure typo", kind: KindStructure, input: "stone wll", wantID: "Stone Wall", wantMatch: MatchFuzzy},
		{
			name: "ambiguous prefix", kind: KindStructure, input: "stone",
			wantMatch: MatchNone, wantSugg: []string{"Stone Door", "Stone Wall"},
		},
		{name: "no match", kind: KindExplosive, input: "nuke", wantMatch: MatchNone},
		{name: "empty", kind: KindStructure, input: "   ", wantMatch: MatchNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Resolve(tt.kind, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, res.ID)
			assert.Equal(t, tt.wantMatch, res.Match)
			assert.Equal(t, tt.wantSugg, res.Suggestions)
			assert.Equal(t, tt.input, res.Input)
		})
	}
}

func TestResolveUnknownKind(t *testing.T) {
	r, err := NewResolver(newTestCatalog(t), 0, 0)
	require.NoError(t, err)
	_, err = r.Resolve("weapon", "Rocket")
	assert.Error(t, err)
}

func TestResolverErrors(t *testing.T) {
	r, err := NewResolver(newTestCatalog(t), 0, 3)
	require.NoError(t, err)

	id, err := r.Explosive("ROCKET")
	require.NoError(t, err)
	assert.Equal(t, "Rocket", id)

	_, err = r.Structure("stone")
	require.Error(t, err)
	assert.True(t, errors.Is(err, raid.ErrUnknownStructure))
	assert.Equal(t, "stone", raid.OffendingID(err))
	assert.Contains(t, err.Error(), "did you mean Stone Door, Stone Wall?")

	_, err = r.Explosive("nuke")
	assert.True(t, errors.Is(err, raid.ErrUnknownExplosive))
	assert.Equal(t, "unknown explosive: nuke", err.Error())
}

func TestResolverCache(t *testing.T) {
	r, err := NewResolver(newTestCatalog(t), 2, 3)
	require.NoError(t, err)

	first, err := r.Resolve(KindExplosive, "rockt")
	require.NoError(t, err)
	second, err := r.Resolve(KindExplosive, "rockt")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, r.cache.Len())

	// Same text under a different kind is a different entry.
	_, err = r.Resolve(KindStructure, "rockt")
	require.NoError(t, err)
	assert.Equal(t, 2, r.cache.Len())
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "sheet metal door", Normalize("  Sheet-Metal_Door "))
	assert.Equal(t, "", Normalize("\t"))
}
