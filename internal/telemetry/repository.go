package telemetry

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/shigechika/speedtestz/internal/errors"
	"github.com/shigechika/speedtestz/internal/logger"
)

type Repository interface {
	Record(entry *RunEntry) error
	Close() error
}

type sqliteRepository struct {
	db *sql.DB
	mu sync.Mutex
}

func NewRepository(cfg Config) (Repository, error) {
	errFactory := errors.New()

	logger.Debug().Msgf("Initializing telemetry repository at: %s", cfg.DBPath)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(errors.ErrInitTelemetry, err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitTelemetry, err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteRepository{db: db}, nil
}

func initSchema(db *sql.DB) error {
	errFactory := errors.New()

	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS runs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            timestamp INTEGER NOT NULL,
            site TEXT NOT NULL,
            status TEXT NOT NULL,
            detail TEXT,
            samples INTEGER NOT NULL DEFAULT 0
        )
    `)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitTelemetry, err)
	}

	return nil
}

func (r *sqliteRepository) Record(entry *RunEntry) error {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
        INSERT INTO runs (timestamp, site, status, detail, samples)
        VALUES (?, ?, ?, ?, ?)
    `,
		entry.Timestamp.Unix(),
		entry.Site,
		entry.Status,
		entry.Detail,
		entry.Samples,
	)
	if err != nil {
		return errFactory.Wrap(errors.ErrInitTelemetry, err)
	}

	return nil
}

func (r *sqliteRepository) Close() error {
	errFactory := errors.New()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.db.Close(); err != nil {
		return errFactory.Wrap(errors.ErrShutdownFailed, err)
	}

	return nil
}
