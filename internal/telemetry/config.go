package telemetry

import "github.com/shigechika/speedtestz/internal/errors"

const (
	defaultDirPerm = 0o755
)

type Config struct {
	Enabled bool
	DBPath  string
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Enabled && c.DBPath == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "telemetry database path is empty")
	}

	return nil
}
