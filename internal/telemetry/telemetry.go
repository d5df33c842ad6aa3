package telemetry

import (
	"context"
	"time"

	"github.com/foucault/nvfancontrol/internal/control"
	"github.com/foucault/nvfancontrol/internal/errors"
)

const defaultDBPath = "/var/lib/nvfancontrol/telemetry.db"

type Config struct {
	DBPath string
}

func DefaultConfig() Config {
	return Config{DBPath: defaultDBPath}
}

func (c Config) Validate() error {
	if c.DBPath == "" {
		return errors.New().New(ErrInvalidDBPath)
	}

	return nil
}

// Collector records per-tick cooler snapshots for later analysis. It is a
// measurement history, not control state: nothing is read back at runtime.
type Collector interface {
	Record(ctx context.Context, snapshots []control.Snapshot) error
	Close() error
}

type service struct {
	repo Repository
	cfg  Config
}

func NewService(cfg Config) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	repo, err := NewRepository(cfg)
	if err != nil {
		return nil, err
	}

	return &service{repo: repo, cfg: cfg}, nil
}

func (s *service) Record(ctx context.Context, snapshots []control.Snapshot) error {
	errFactory := errors.New()

	if len(snapshots) == 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Store(ctx, time.Now(), snapshots); err != nil {
			return errFactory.Wrap(ErrRecordFailed, err)
		}
	}

	return nil
}

func (s *service) Close() error {
	return s.repo.Close()
}
