package curve

import (
	"math"
	"sort"

	"github.com/foucault/nvfancontrol/internal/errors"
)

const (
	// Error codes for curve construction
	ErrTooFewPoints    = errors.ErrorCode("curve_too_few_points")
	ErrDuplicateTemp   = errors.ErrorCode("curve_duplicate_temperature")
	ErrSpeedOutOfRange = errors.ErrorCode("curve_speed_out_of_range")
)

// Point maps a temperature in degrees Celsius to a fan speed percentage.
type Point struct {
	Temperature int
	Speed       int
}

// Curve is an ordered, immutable set of control points. Temperatures are
// strictly increasing after construction. Evaluation clamps to the first and
// last point outside the covered temperature range.
type Curve struct {
	points []Point
}

// New validates and builds a curve from the given points. The input is sorted
// by temperature and exact duplicate points are dropped. Two points sharing a
// temperature with different speeds, fewer than two distinct points, or a
// speed outside [0, 100] are configuration errors.
func New(points []Point) (*Curve, error) {
	errFactory := errors.New()

	sorted := make([]Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Temperature == sorted[j].Temperature {
			return sorted[i].Speed < sorted[j].Speed
		}
		return sorted[i].Temperature < sorted[j].Temperature
	})

	deduped := sorted[:0]
	for _, p := range sorted {
		if len(deduped) > 0 && deduped[len(deduped)-1] == p {
			continue
		}
		deduped = append(deduped, p)
	}

	if len(deduped) < 2 {
		return nil, errFactory.WithData(ErrTooFewPoints, len(deduped))
	}

	for i, p := range deduped {
		if p.Speed < 0 || p.Speed > 100 {
			return nil, errFactory.WithData(ErrSpeedOutOfRange, p)
		}
		if i > 0 && deduped[i-1].Temperature == p.Temperature {
			return nil, errFactory.WithData(ErrDuplicateTemp, p.Temperature)
		}
	}

	return &Curve{points: deduped}, nil
}

// Points returns a copy of the control points in evaluation order.
func (c *Curve) Points() []Point {
	points := make([]Point, len(c.points))
	copy(points, c.points)

	return points
}

// MinSpeed returns the speed of the lowest control point.
func (c *Curve) MinSpeed() int {
	return c.points[0].Speed
}

// MaxSpeed returns the speed of the highest control point.
func (c *Curve) MaxSpeed() int {
	return c.points[len(c.points)-1].Speed
}

// Evaluate returns the fan speed percentage for the given temperature.
// Temperatures at or below the first point return the first point's speed,
// at or above the last point the last point's speed. In between the two
// bracketing points are interpolated linearly and rounded to the nearest
// integer percent.
func (c *Curve) Evaluate(temperature int) int {
	first := c.points[0]
	last := c.points[len(c.points)-1]

	if temperature <= first.Temperature {
		return first.Speed
	}
	if temperature >= last.Temperature {
		return last.Speed
	}

	for i := 0; i < len(c.points)-1; i++ {
		p0 := c.points[i]
		p1 := c.points[i+1]

		if temperature < p0.Temperature || temperature > p1.Temperature {
			continue
		}

		slope := float64(p1.Speed-p0.Speed) / float64(p1.Temperature-p0.Temperature)
		speed := float64(p0.Speed) + float64(temperature-p0.Temperature)*slope

		return int(math.Round(speed))
	}

	// Unreachable: the bounds checks above cover every temperature.
	return last.Speed
}

// TemperatureAt is the inverse lookup: the temperature at which the curve
// reaches the given speed. Returns false when the curve never produces that
// speed. For speeds held across a plateau the highest temperature is returned.
func (c *Curve) TemperatureAt(speed int) (int, bool) {
	last := c.points[len(c.points)-1]
	if speed == last.Speed {
		return last.Temperature, true
	}

	for i := len(c.points) - 2; i >= 0; i-- {
		p0 := c.points[i]
		p1 := c.points[i+1]

		if speed < min(p0.Speed, p1.Speed) || speed > max(p0.Speed, p1.Speed) {
			continue
		}
		if p1.Speed == p0.Speed {
			return p1.Temperature, true
		}

		slope := float64(p1.Temperature-p0.Temperature) / float64(p1.Speed-p0.Speed)
		temperature := float64(p0.Temperature) + float64(speed-p0.Speed)*slope

		return int(math.Round(temperature)), true
	}

	return 0, false
}
