package flicker

import (
	"github.com/foucault/nvfancontrol/internal/curve"
	"github.com/foucault/nvfancontrol/internal/errors"
)

const (
	// Error codes for flicker range validation
	ErrMinimumTooLow    = errors.ErrorCode("flicker_minimum_too_low")
	ErrInvertedRange    = errors.ErrorCode("flicker_inverted_range")
	ErrOutsideLimits    = errors.ErrorCode("flicker_outside_limits")
	ErrStartUnreachable = errors.ErrorCode("flicker_start_unreachable")
	ErrStartUnsafe      = errors.ErrorCode("flicker_start_unsafe")
)

// Inside the flicker zone speed adjustments are not instant, so the
// temperature may temporarily rise above the curve's answer. The zone must
// therefore not extend past a temperature where that becomes unsafe.
const maxSafeTemperature = 75

const (
	stepUp   = 2
	stepDown = 1
)

// Range is the low-speed band where smoothing applies. Minimum is the lowest
// speed the filter will converge to, Starts the speed at or below which
// firmware-induced flickering is expected.
type Range struct {
	Minimum int
	Starts  int
}

// NewRange validates a flicker range against the active curve and limits.
func NewRange(minimum, starts int, c *curve.Curve, limits curve.Limits) (Range, error) {
	errFactory := errors.New()

	if minimum < 1 {
		return Range{}, errFactory.WithData(ErrMinimumTooLow, minimum)
	}
	if minimum >= starts {
		return Range{}, errFactory.WithData(ErrInvertedRange, []int{minimum, starts})
	}
	if minimum < limits.Min || starts > limits.Max {
		return Range{}, errFactory.WithData(ErrOutsideLimits, []int{minimum, starts})
	}

	temperature, ok := c.TemperatureAt(starts)
	if !ok {
		return Range{}, errFactory.WithData(ErrStartUnreachable, starts)
	}
	if temperature > maxSafeTemperature {
		return Range{}, errFactory.WithData(ErrStartUnsafe, temperature)
	}

	return Range{Minimum: minimum, Starts: starts}, nil
}

// Contains reports whether speed lies inside the flicker zone.
func (r Range) Contains(speed int) bool {
	return speed >= r.Minimum && speed <= r.Starts
}

// Filter rate-limits speed changes while the target lies inside the flicker
// zone. It carries the last applied speed, the only mutable state in the
// smoothing path. Not safe for concurrent use; each cooler owns one filter.
type Filter struct {
	rng      Range
	previous int
}

// NewFilter creates a filter seeded with the cooler's current speed.
func NewFilter(rng Range, initial int) *Filter {
	return &Filter{rng: rng, previous: initial}
}

// Range returns the configured flicker zone.
func (f *Filter) Range() Range {
	return f.rng
}

// Previous returns the last applied speed.
func (f *Filter) Previous() int {
	return f.previous
}

// Apply computes the speed to actually command for a requested target.
// Targets outside the zone pass through unchanged. Inside the zone the
// applied speed moves toward the target in bounded steps (+2 up, -1 down per
// tick) from the previous applied speed, entering at the nearest zone
// boundary when the previous speed was outside. A spinning fan that reads
// zero rpm while the target is in the zone is taken as active flickering and
// pinned to the top of the zone. Pass a negative rpm when it is unknown.
func (f *Filter) Apply(rpm, target int) int {
	if !f.rng.Contains(target) {
		f.previous = target
		return target
	}

	if rpm == 0 {
		f.previous = f.rng.Starts
		return f.previous
	}

	prev := f.previous
	if prev > f.rng.Starts {
		prev = f.rng.Starts
	} else if prev < f.rng.Minimum {
		prev = f.rng.Minimum
	}

	next := prev
	if target > prev {
		next = min(prev+stepUp, target)
	} else if target < prev {
		next = max(prev-stepDown, target)
	}

	f.previous = next

	return next
}
