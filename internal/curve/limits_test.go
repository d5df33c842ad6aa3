package curve_test

import (
	"testing"

	"github.com/foucault/nvfancontrol/internal/curve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLimitsValidation(t *testing.T) {
	tests := []struct {
		name     string
		min, max int
		ok       bool
	}{
		{"full range", 0, 100, true},
		{"default range", 20, 80, true},
		{"single value", 50, 50, true},
		{"negative minimum", -1, 80, false},
		{"maximum above 100", 20, 101, false},
		{"inverted", 80, 20, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := curve.NewLimits(tt.min, tt.max)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestClamp(t *testing.T) {
	limits, err := curve.NewLimits(20, 80)
	require.NoError(t, err)

	assert.Equal(t, 20, limits.Clamp(10))
	assert.Equal(t, 20, limits.Clamp(20))
	assert.Equal(t, 50, limits.Clamp(50))
	assert.Equal(t, 80, limits.Clamp(80))
	assert.Equal(t, 80, limits.Clamp(95))
}

func TestClampIdempotent(t *testing.T) {
	limits := curve.DefaultLimits()

	for speed := -10; speed <= 110; speed += 5 {
		clamped := limits.Clamp(speed)
		assert.Equal(t, clamped, limits.Clamp(clamped))
		assert.GreaterOrEqual(t, clamped, limits.Min)
		assert.LessOrEqual(t, clamped, limits.Max)
	}
}
