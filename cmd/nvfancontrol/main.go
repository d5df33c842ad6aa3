package main

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/oklog/run"

	"github.com/foucault/nvfancontrol/internal/backend"
	"github.com/foucault/nvfancontrol/internal/config"
	"github.com/foucault/nvfancontrol/internal/control"
	"github.com/foucault/nvfancontrol/internal/curve"
	"github.com/foucault/nvfancontrol/internal/errors"
	"github.com/foucault/nvfancontrol/internal/flicker"
	"github.com/foucault/nvfancontrol/internal/logger"
	"github.com/foucault/nvfancontrol/internal/report"
	"github.com/foucault/nvfancontrol/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.Debug().Msg("Config loaded")

	crv, limits, rng := buildPolicy(cfg)

	b := backend.NewNVML(cfg.GPU)
	if err := b.Init(); err != nil {
		fatal(err, "Failed to initialize GPU backend")
	}
	defer b.Shutdown()

	if version, err := b.DriverVersion(); err == nil {
		logger.Info().Msgf("Using NVIDIA driver version %s", version)
	}

	coolers, err := control.NewRegistry(b, crv, limits, rng)
	if err != nil {
		fatal(err, "Failed to enumerate coolers")
	}

	loop, err := control.New(b, coolers, control.Config{
		Interval:   time.Duration(cfg.Interval) * time.Second,
		Hysteresis: cfg.Hysteresis,
		Force:      cfg.Force,
	})
	if err != nil {
		fatal(err, "Failed to create control loop")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := setupTelemetry(cfg)
	if collector != nil {
		defer collector.Close()
	}

	if cfg.JSON || collector != nil {
		loop.OnTick(func(snapshots []control.Snapshot) {
			if cfg.JSON {
				report.Write(os.Stdout, snapshots)
			}
			if collector != nil {
				if err := collector.Record(ctx, snapshots); err != nil {
					logger.Warn().Err(err).Msg("Failed to record telemetry")
				}
			}
		})
	}

	var g run.Group
	{
		g.Add(func() error {
			return loop.Run(ctx)
		}, func(error) {
			cancel()
		})
	}
	if cfg.Server {
		srv := report.NewServer(loop, cfg.Port)
		g.Add(func() error {
			return srv.Run(ctx)
		}, func(error) {
			cancel()
		})
	}
	{
		g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))
	}

	// Coolers under asserted manual control stay that way on exit; the
	// firmware is not handed back automatically.
	if err := g.Run(); err != nil {
		var sig run.SignalError
		if errors.As(err, &sig) {
			logger.Info().Msgf("Received %s, exiting", sig.Signal)
			return
		}

		var domainErr errors.Error
		if errors.As(err, &domainErr) {
			logger.ErrorWithCode(domainErr).Msg("Error in main loop")
		} else {
			logger.Error().Err(err).Msg("Error in main loop")
		}
		os.Exit(1)
	}
}

// fatal exits through the coded log path when err is a domain error.
func fatal(err error, msg string) {
	var domainErr errors.Error
	if errors.As(err, &domainErr) {
		logger.FatalWithCode(domainErr).Msg(msg)
	}

	logger.Fatal().Err(err).Msg(msg)
}

// buildPolicy assembles curve, limits and flicker range from flags and the
// optional curve file. Any inconsistency here is fatal: the control loop is
// never entered with a half-valid policy.
func buildPolicy(cfg *config.Config) (*curve.Curve, curve.Limits, *flicker.Range) {
	points := config.DefaultPoints()

	var fileBounds *config.FlickerBounds
	if cfg.CurveFile != "" {
		cf, err := config.LoadCurveFile(cfg.CurveFile)
		if err != nil {
			fatal(err, fmt.Sprintf("Failed to load curve file %s", cfg.CurveFile))
		}
		points = cf.Points
		fileBounds = cf.Flicker
	} else {
		logger.Info().Msg("No curve file configured, using built-in curve")
	}

	crv, err := curve.New(points)
	if err != nil {
		fatal(err, "Invalid fan curve")
	}

	limits, err := curve.NewLimits(cfg.MinSpeed, cfg.MaxSpeed)
	if err != nil {
		fatal(err, "Invalid fan speed limits")
	}

	// Flags win over the curve file's fanflicker directive
	flickerMin, flickerMax := cfg.FlickerMin, cfg.FlickerMax
	if !cfg.FlickerConfigured() && fileBounds != nil {
		flickerMin, flickerMax = fileBounds.Min, fileBounds.Max
	}

	var rng *flicker.Range
	if flickerMin != 0 || flickerMax != 0 {
		r, err := flicker.NewRange(flickerMin, flickerMax, crv, limits)
		if err != nil {
			fatal(err, "Invalid flicker prevention range")
		}
		rng = &r
		logger.Info().Msgf("Preventing fan flicker in range [%d, %d]", r.Minimum, r.Starts)
	}

	return crv, limits, rng
}

func setupTelemetry(cfg *config.Config) telemetry.Collector {
	if !cfg.Telemetry {
		return nil
	}

	tcfg := telemetry.DefaultConfig()
	if cfg.TelemetryDB != "" {
		tcfg.DBPath = cfg.TelemetryDB
	}

	collector, err := telemetry.NewService(tcfg)
	if err != nil {
		logger.Warn().Err(err).Msg("Telemetry disabled: failed to initialize")
		return nil
	}

	return collector
}
