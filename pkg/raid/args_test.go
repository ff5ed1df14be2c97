package raid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWholeQuantity(t *testing.T) {
	tests := []struct {
		v       float64
		want    int
		wantErr bool
	}{
		{v: 3, want: 3},
		{v: 0, want: 0},
		{v: -2, want: -2},
		{v: 1.5, wantErr: true},
		{v: math.NaN(), wantErr: true},
		{v: math.Inf(1), wantErr: true},
		{v: 1e12, wantErr: true},
	}
	for _, tt := range tests {
		got, err := WholeQuantity("Rocket", tt.v)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidQuantity, "%v", tt.v)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestOptimizeArgsRequest(t *testing.T) {
	req, err := OptimizeArgs{
		Structures: map[string]float64{"Stone Wall": 2},
		Explosives: map[string]float64{"Rocket": 0, "Satchel Charge": 4},
	}.Request()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Stone Wall": 2}, req.Structures)
	assert.Equal(t, map[string]int{"Rocket": 0, "Satchel Charge": 4}, req.Explosives)
	assert.ElementsMatch(t, []string{"Rocket", "Satchel Charge"}, req.Legacy().Explosives)

	_, err = OptimizeArgs{Structures: map[string]float64{"Stone Wall": 0.5}}.Request()
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Equal(t, "Stone Wall", OffendingID(err))

	_, err = ResourcesArgs{Explosive: "Rocket", Quantity: 2.25}.Request()
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}
