package control

import (
	"strconv"

	"github.com/foucault/nvfancontrol/internal/backend"
	"github.com/foucault/nvfancontrol/internal/curve"
	"github.com/foucault/nvfancontrol/internal/flicker"
)

// State is the per-cooler arbitration state. A cooler starts out passively
// observed in automatic mode and, once the loop asserts manual control,
// stays manually asserted for the process lifetime.
type State int

const (
	StateAutomaticObserved State = iota
	StateManualAsserted
)

func (s State) String() string {
	switch s {
	case StateAutomaticObserved:
		return "observing"
	case StateManualAsserted:
		return "asserted"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// RPMUnknown marks a cooler whose backend cannot report rpm.
const RPMUnknown = -1

// Cooler is one registry entry: the unit the control loop operates on each
// tick. Curve, Limits and the flicker filter are assigned at startup; the
// remaining fields are mutated by the loop only.
type Cooler struct {
	ID     backend.Cooler
	Curve  *curve.Curve
	Limits curve.Limits

	// Filter is nil when flicker prevention is disabled; the target then
	// passes through unchanged.
	Filter *flicker.Filter

	state       State
	mode        backend.Mode
	temperature int
	speed       int
	rpm         int
	lastCommand int
}

// Snapshot is a point-in-time copy of the reportable cooler fields, taken
// for external consumers. It has no identity beyond the request producing it.
type Snapshot struct {
	GPU         int
	Cooler      int
	Temperature int
	Speed       int
	Target      int
	RPM         int // RPMUnknown when the backend cannot read it
	Mode        backend.Mode
	State       State
}

func (c *Cooler) snapshot() Snapshot {
	return Snapshot{
		GPU:         c.ID.GPU,
		Cooler:      c.ID.Fan,
		Temperature: c.temperature,
		Speed:       c.speed,
		Target:      c.lastCommand,
		RPM:         c.rpm,
		Mode:        c.mode,
		State:       c.state,
	}
}
