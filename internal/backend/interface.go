package backend

import "strconv"

// Mode is the hardware-level fan control mode: either the GPU firmware
// drives the fan (Automatic) or the controlling program does (Manual).
type Mode int

const (
	ModeAutomatic Mode = iota
	ModeManual
)

func (m Mode) String() string {
	switch m {
	case ModeAutomatic:
		return "auto"
	case ModeManual:
		return "manual"
	default:
		return "mode(" + strconv.Itoa(int(m)) + ")"
	}
}

// Cooler identifies one independently controllable fan unit. Identifiers are
// assigned by the backend during enumeration and stable for the process
// lifetime.
type Cooler struct {
	GPU int
	Fan int
}

// Backend is the capability interface over a vendor fan-control API. One
// implementation exists per platform; the control loop depends only on this
// interface. Every operation may fail with ErrUnavailable.
type Backend interface {
	Init() error
	Shutdown() error

	// DriverVersion returns the driver version string, best effort.
	DriverVersion() (string, error)

	// Coolers enumerates every managed cooler with its owning GPU.
	Coolers() ([]Cooler, error)

	GetTemperature(gpu int) (int, error)
	GetControlMode(c Cooler) (Mode, error)

	// GetFanSpeed returns the current speed in percent.
	GetFanSpeed(c Cooler) (int, error)

	// GetFanSpeedRPM returns the current speed in rpm. Best effort: not
	// every backend or card exposes it, and multi-fan cards may report a
	// single shared tachometer.
	GetFanSpeedRPM(c Cooler) (int, error)

	SetControlMode(c Cooler, m Mode) error
	SetFanSpeed(c Cooler, percent int) error
}
