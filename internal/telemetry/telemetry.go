// Package telemetry keeps a local run-history in SQLite so unattended
// runs leave an audit trail beyond the process log.
package telemetry

import (
	"context"

	"github.com/shigechika/speedtestz/internal/errors"
	"github.com/shigechika/speedtestz/internal/logger"
)

type service struct {
	repo Repository
}

// No-op implementation used when telemetry is disabled.
type noopRecorder struct{}

func NewService(cfg Config) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		logger.Debug().Msg("Telemetry disabled, using no-op recorder")
		return &noopRecorder{}, nil
	}

	repo, err := NewRepository(cfg)
	if err != nil {
		return nil, err
	}

	logger.Debug().Str("db_path", cfg.DBPath).Msg("Telemetry service initialized")

	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, entry *RunEntry) error {
	errFactory := errors.New()

	if entry == nil {
		return errFactory.New(errors.ErrInvalidArgument)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(errors.ErrInitTelemetry, ctx.Err())
	default:
		return s.repo.Record(entry)
	}
}

func (s *service) Close() error {
	return s.repo.Close()
}

func (*noopRecorder) Record(_ context.Context, _ *RunEntry) error {
	return nil
}

func (*noopRecorder) Close() error {
	return nil
}
