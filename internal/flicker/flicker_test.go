package flicker_test

import (
	"testing"

	"github.com/foucault/nvfancontrol/internal/curve"
	"github.com/foucault/nvfancontrol/internal/errors"
	"github.com/foucault/nvfancontrol/internal/flicker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCurve(t *testing.T, points ...curve.Point) *curve.Curve {
	t.Helper()

	c, err := curve.New(points)
	require.NoError(t, err)

	return c
}

func fullLimits(t *testing.T) curve.Limits {
	t.Helper()

	limits, err := curve.NewLimits(0, 100)
	require.NoError(t, err)

	return limits
}

func TestNewRangeValidation(t *testing.T) {
	c := testCurve(t,
		curve.Point{Temperature: 30, Speed: 10},
		curve.Point{Temperature: 60, Speed: 60},
	)

	tests := []struct {
		name            string
		minimum, starts int
		limits          curve.Limits
		wantCode        errors.ErrorCode
	}{
		{"valid", 11, 38, fullLimits(t), ""},
		{"minimum below one", 0, 38, fullLimits(t), flicker.ErrMinimumTooLow},
		{"minimum not below starts", 38, 38, fullLimits(t), flicker.ErrInvertedRange},
		{"outside general limits", 11, 38, curve.Limits{Min: 20, Max: 80}, flicker.ErrOutsideLimits},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := flicker.NewRange(tt.minimum, tt.starts, c, tt.limits)
			if tt.wantCode == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, errors.CodeOf(err))
			}
		})
	}
}

func TestNewRangeUnreachableStart(t *testing.T) {
	// Curve never produces speed 38
	c := testCurve(t,
		curve.Point{Temperature: 30, Speed: 50},
		curve.Point{Temperature: 60, Speed: 80},
	)

	_, err := flicker.NewRange(11, 38, c, fullLimits(t))
	require.Error(t, err)
	assert.Equal(t, flicker.ErrStartUnreachable, errors.CodeOf(err))
}

func TestNewRangeUnsafeStart(t *testing.T) {
	// Speed 38 is only reached at 84 degrees, past the safe limit
	c := testCurve(t,
		curve.Point{Temperature: 70, Speed: 10},
		curve.Point{Temperature: 90, Speed: 50},
	)

	_, err := flicker.NewRange(11, 38, c, fullLimits(t))
	require.Error(t, err)
	assert.Equal(t, flicker.ErrStartUnsafe, errors.CodeOf(err))
}

func testRange(t *testing.T) flicker.Range {
	t.Helper()

	c := testCurve(t,
		curve.Point{Temperature: 30, Speed: 10},
		curve.Point{Temperature: 60, Speed: 60},
	)

	rng, err := flicker.NewRange(11, 38, c, fullLimits(t))
	require.NoError(t, err)

	return rng
}

func TestApplyPassthroughOutsideZone(t *testing.T) {
	f := flicker.NewFilter(testRange(t), 20)

	// Above the zone: immediate jump
	assert.Equal(t, 60, f.Apply(1500, 60))
	assert.Equal(t, 60, f.Previous())

	// Below the zone: immediate jump as well
	assert.Equal(t, 5, f.Apply(1500, 5))
	assert.Equal(t, 5, f.Previous())
}

func TestApplyStepsDownInsideZone(t *testing.T) {
	f := flicker.NewFilter(testRange(t), 38)

	// Raw target drops to 15; the applied speed walks down one point per
	// tick instead of slamming the fan to 15 at once.
	applied := f.Apply(1200, 15)
	assert.Equal(t, 37, applied)

	for i := 0; i < 30 && applied > 15; i++ {
		next := f.Apply(1200, 15)
		assert.Equal(t, applied-1, next)
		applied = next
	}
	assert.Equal(t, 15, applied)

	// Converged: stays put
	assert.Equal(t, 15, f.Apply(1200, 15))
}

func TestApplyStepsUpInsideZone(t *testing.T) {
	f := flicker.NewFilter(testRange(t), 12)

	assert.Equal(t, 14, f.Apply(900, 30))
	assert.Equal(t, 16, f.Apply(900, 30))
	assert.Equal(t, 18, f.Apply(900, 30))

	// Never overshoots the target
	f2 := flicker.NewFilter(testRange(t), 29)
	assert.Equal(t, 30, f2.Apply(900, 30))
}

func TestApplyEntersZoneAtBoundary(t *testing.T) {
	// Previous speed above the zone, target inside: first step starts from
	// the upper boundary rather than jumping straight to the target.
	f := flicker.NewFilter(testRange(t), 70)
	assert.Equal(t, 37, f.Apply(2000, 20))

	// Previous speed below the zone, target inside: enters at the lower
	// boundary and ramps up.
	f2 := flicker.NewFilter(testRange(t), 5)
	assert.Equal(t, 13, f2.Apply(400, 30))
}

func TestApplyZeroRPMPinsToZoneTop(t *testing.T) {
	f := flicker.NewFilter(testRange(t), 15)

	assert.Equal(t, 38, f.Apply(0, 15))
	assert.Equal(t, 38, f.Previous())

	// Unknown rpm must not trigger the flicker-detected branch
	f2 := flicker.NewFilter(testRange(t), 15)
	assert.Equal(t, 15, f2.Apply(-1, 15))
}

func TestApplyMonotoneConvergence(t *testing.T) {
	rng := testRange(t)

	for prev := 0; prev <= 100; prev += 7 {
		for target := rng.Minimum; target <= rng.Starts; target++ {
			f := flicker.NewFilter(rng, prev)
			applied := f.Apply(1000, target)

			distBefore := abs(target - prev)
			distAfter := abs(target - applied)
			assert.LessOrEqual(t, distAfter, distBefore,
				"prev=%d target=%d applied=%d", prev, target, applied)
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}

	return x
}
