package control

import (
	"context"
	"sync"
	"time"

	"github.com/foucault/nvfancontrol/internal/backend"
	"github.com/foucault/nvfancontrol/internal/curve"
	"github.com/foucault/nvfancontrol/internal/errors"
	"github.com/foucault/nvfancontrol/internal/flicker"
	"github.com/foucault/nvfancontrol/internal/logger"
)

const (
	ErrNoCoolers       = errors.ErrorCode("control_no_coolers")
	ErrInvalidInterval = errors.ErrorCode("control_invalid_interval")
)

// Config carries the loop's control policy.
type Config struct {
	// Interval is the wall-clock tick cadence.
	Interval time.Duration

	// Hysteresis is the minimum difference between the computed target and
	// the passively observed automatic speed before the loop takes over a
	// cooler still driven by firmware.
	Hysteresis int

	// Force asserts manual control on the first tick regardless of what the
	// firmware is doing.
	Force bool
}

// Loop drives every registered cooler: one synchronous pass over the
// registry per tick, at a fixed interval, for the process lifetime. Cooler
// state is guarded by a mutex so that concurrent snapshot readers never
// observe a torn update.
type Loop struct {
	backend backend.Backend
	coolers []*Cooler
	cfg     Config
	onTick  func([]Snapshot)
	mu      sync.RWMutex
}

// NewRegistry enumerates the backend's coolers and builds one registry entry
// per cooler, all sharing the given curve, limits and optional flicker
// range. Each cooler gets its own filter instance seeded with its current
// speed. Any failure here is an initialization failure.
func NewRegistry(b backend.Backend, crv *curve.Curve, limits curve.Limits, rng *flicker.Range) ([]*Cooler, error) {
	errFactory := errors.New()

	ids, err := b.Coolers()
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitFailed, err)
	}
	if len(ids) == 0 {
		return nil, errFactory.New(ErrNoCoolers)
	}

	coolers := make([]*Cooler, 0, len(ids))
	for _, id := range ids {
		speed, err := b.GetFanSpeed(id)
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrInitFailed, err)
		}

		mode, err := b.GetControlMode(id)
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrInitFailed, err)
		}

		temperature, err := b.GetTemperature(id.GPU)
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrInitFailed, err)
		}

		rpm := RPMUnknown
		if r, err := b.GetFanSpeedRPM(id); err == nil {
			rpm = r
		}

		c := &Cooler{
			ID:          id,
			Curve:       crv,
			Limits:      limits,
			mode:        mode,
			temperature: temperature,
			speed:       speed,
			rpm:         rpm,
			lastCommand: -1,
		}
		if rng != nil {
			c.Filter = flicker.NewFilter(*rng, speed)
		}
		if mode == backend.ModeManual {
			// The cooler is already under manual control, ours to drive.
			c.state = StateManualAsserted
		}

		logger.Debug().
			Int("gpu", id.GPU).
			Int("cooler", id.Fan).
			Int("speed", speed).
			Str("mode", mode.String()).
			Msg("Registered cooler")

		coolers = append(coolers, c)
	}

	return coolers, nil
}

// New creates a control loop over an initialized backend and a populated
// registry.
func New(b backend.Backend, coolers []*Cooler, cfg Config) (*Loop, error) {
	errFactory := errors.New()

	if cfg.Interval <= 0 {
		return nil, errFactory.WithData(ErrInvalidInterval, cfg.Interval)
	}
	if len(coolers) == 0 {
		return nil, errFactory.New(ErrNoCoolers)
	}

	return &Loop{
		backend: b,
		coolers: coolers,
		cfg:     cfg,
	}, nil
}

// OnTick registers a hook invoked after every tick with a fresh snapshot.
// Must be set before Run.
func (l *Loop) OnTick(fn func([]Snapshot)) {
	l.onTick = fn
}

// Run ticks the loop at the configured interval until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick runs one synchronous control pass over every cooler.
func (l *Loop) Tick() {
	for _, c := range l.coolers {
		l.tickCooler(c)
	}

	if l.onTick != nil {
		l.onTick(l.Snapshot())
	}
}

// Snapshot returns a consistent copy of all cooler state. It holds the lock
// only for the duration of the copy, never during I/O.
func (l *Loop) Snapshot() []Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snapshots := make([]Snapshot, len(l.coolers))
	for i, c := range l.coolers {
		snapshots[i] = c.snapshot()
	}

	return snapshots
}

func (l *Loop) tickCooler(c *Cooler) {
	temperature, err := l.backend.GetTemperature(c.ID.GPU)
	if err != nil {
		logger.Warn().Err(err).Int("gpu", c.ID.GPU).Msg("Temperature read failed, skipping cooler this tick")
		return
	}

	mode, err := l.backend.GetControlMode(c.ID)
	if err != nil {
		logger.Warn().Err(err).Int("gpu", c.ID.GPU).Int("cooler", c.ID.Fan).
			Msg("Control mode read failed, skipping cooler this tick")
		return
	}

	speed, err := l.backend.GetFanSpeed(c.ID)
	if err != nil {
		logger.Warn().Err(err).Int("gpu", c.ID.GPU).Int("cooler", c.ID.Fan).
			Msg("Fan speed read failed, skipping cooler this tick")
		return
	}

	rpm := RPMUnknown
	if r, err := l.backend.GetFanSpeedRPM(c.ID); err == nil {
		rpm = r
	}

	target := c.Limits.Clamp(c.Curve.Evaluate(temperature))
	if c.Filter != nil {
		target = c.Filter.Apply(rpm, target)
	}

	if c.state == StateAutomaticObserved {
		switch {
		case mode == backend.ModeManual:
			// Someone already put the hardware in manual mode; adopt it.
			logger.Info().Int("gpu", c.ID.GPU).Int("cooler", c.ID.Fan).
				Msg("Cooler found in manual mode, taking over")
			l.mu.Lock()
			c.state = StateManualAsserted
			l.mu.Unlock()
		case l.cfg.Force:
			if l.assertManual(c) {
				// Explicit assertion commands the target even when it
				// matches the current speed.
				l.command(c, target)
			}
		case speed > 0 && abs(target-speed) > l.cfg.Hysteresis:
			// The firmware's answer has drifted too far from the curve's.
			// A silent fan is left alone: the firmware keeps it off below
			// a threshold on purpose.
			if l.assertManual(c) {
				l.command(c, target)
			}
		default:
			logger.Debug().Int("gpu", c.ID.GPU).Int("cooler", c.ID.Fan).
				Int("target", target).Int("speed", speed).
				Msg("Coasting in automatic mode")
		}
	} else if target != c.lastCommand {
		l.command(c, target)
	}

	l.mu.Lock()
	if c.state == StateManualAsserted {
		mode = backend.ModeManual
	}
	c.mode = mode
	c.temperature = temperature
	c.speed = speed
	c.rpm = rpm
	l.mu.Unlock()

	logger.Debug().
		Int("gpu", c.ID.GPU).
		Int("cooler", c.ID.Fan).
		Int("temperature", temperature).
		Int("speed", speed).
		Int("target", target).
		Str("mode", mode.String()).
		Str("state", c.state.String()).
		Msg("Cooler state")
}

// assertManual transitions a cooler to manual control. On failure the state
// is left untouched so the next tick retries.
func (l *Loop) assertManual(c *Cooler) bool {
	if err := l.backend.SetControlMode(c.ID, backend.ModeManual); err != nil {
		logger.Warn().Err(err).Int("gpu", c.ID.GPU).Int("cooler", c.ID.Fan).
			Msg("Failed to assert manual control")
		return false
	}

	logger.Info().Int("gpu", c.ID.GPU).Int("cooler", c.ID.Fan).Msg("Asserted manual fan control")
	l.mu.Lock()
	c.state = StateManualAsserted
	l.mu.Unlock()

	return true
}

// command issues a speed write. On failure lastCommand keeps its previous
// value so the next tick retries the same target instead of assuming
// success.
func (l *Loop) command(c *Cooler, target int) {
	if err := l.backend.SetFanSpeed(c.ID, target); err != nil {
		logger.Warn().Err(err).Int("gpu", c.ID.GPU).Int("cooler", c.ID.Fan).
			Int("target", target).Msg("Fan speed write failed")
		return
	}

	l.mu.Lock()
	c.lastCommand = target
	l.mu.Unlock()
}

func abs(x int) int {
	if x < 0 {
		return -x
	}

	return x
}
