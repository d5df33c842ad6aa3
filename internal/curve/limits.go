package curve

import "github.com/foucault/nvfancontrol/internal/errors"

const (
	defaultMinLimit = 20
	defaultMaxLimit = 80
)

// Limits clamp any commanded fan speed before it reaches the hardware.
type Limits struct {
	Min int
	Max int
}

// DefaultLimits returns the process-wide default clamp range.
func DefaultLimits() Limits {
	return Limits{Min: defaultMinLimit, Max: defaultMaxLimit}
}

// NewLimits validates a clamp range: 0 <= min <= max <= 100.
func NewLimits(minPercent, maxPercent int) (Limits, error) {
	errFactory := errors.New()

	if minPercent < 0 || maxPercent > 100 || minPercent > maxPercent {
		return Limits{}, errFactory.WithData(errors.ErrInvalidLimits, []int{minPercent, maxPercent})
	}

	return Limits{Min: minPercent, Max: maxPercent}, nil
}

// Clamp coerces speed into [Min, Max].
func (l Limits) Clamp(speed int) int {
	if speed < l.Min {
		return l.Min
	}
	if speed > l.Max {
		return l.Max
	}

	return speed
}
