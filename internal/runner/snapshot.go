package runner

import (
	"os"
	"path/filepath"

	"github.com/shigechika/speedtestz/internal/browser"
	"github.com/shigechika/speedtestz/internal/logger"
)

const (
	snapshotDirPerm  = 0o755
	snapshotFilePerm = 0o644
)

// Snapshots writes best-effort full-page captures. A nil *Snapshots is
// a valid no-op store; capture failures are logged, never escalated.
type Snapshots struct {
	dir string
}

// NewSnapshots creates the snapshot store, ensuring the directory
// exists. Returns nil (disabled) when enable is false.
func NewSnapshots(enable bool, dir string) (*Snapshots, error) {
	if !enable {
		return nil, nil
	}

	if err := os.MkdirAll(dir, snapshotDirPerm); err != nil {
		return nil, err
	}

	return &Snapshots{dir: dir}, nil
}

// Capture saves a screenshot named after the site and phase.
func (s *Snapshots) Capture(drv browser.Driver, name string) {
	if s == nil {
		return
	}

	png, err := drv.Screenshot()
	if err != nil {
		logger.Warn().Str("name", name).Err(err).Msg("snapshot failed")
		return
	}

	path := filepath.Join(s.dir, name+".png")
	if err := os.WriteFile(path, png, snapshotFilePerm); err != nil {
		logger.Warn().Str("path", path).Err(err).Msg("snapshot write failed")
		return
	}

	logger.Debug().Str("path", path).Msg("snapshot saved")
}
