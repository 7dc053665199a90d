// Package sqlitestorage implements the storage.Backend interface using an in-memory
// SQLite database with periodic disk dumps via VACUUM INTO.
// It wraps the GORM backend of the postgres package; the only SQLite-specific
// concerns are creating the in-memory DB and dumping it to disk.
package sqlitestorage

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/piracysim/piracysim/internal/database"
	"github.com/piracysim/piracysim/internal/logging"
	"github.com/piracysim/piracysim/internal/storage/postgres"
	"github.com/piracysim/piracysim/internal/util"
	"github.com/piracysim/piracysim/pkg/core"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	DumpInterval time.Duration
	DumpDir      string

	// DSN overrides the shared in-memory database, mostly for tests.
	DSN string
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*postgres.Backend
	db       *gorm.DB
	cfg      Config
	log      *logging.SlogManager
	stopChan chan struct{}
	done     chan struct{}

	mu       sync.Mutex
	dumpPath string
}

// New opens the in-memory database and wraps a GORM backend around it.
func New(cfg Config, deps postgres.Dependencies) (*Backend, error) {
	db, err := database.GetSqliteDB(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	deps.DB = db
	return &Backend{
		Backend: postgres.New(deps),
		db:      db,
		cfg:     cfg,
		log:     deps.LogManager,
	}, nil
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.dumpLoop()
	return nil
}

// StartRun records the run and names its dump file after it.
func (b *Backend) StartRun(run *core.Run) error {
	if err := b.Backend.StartRun(run); err != nil {
		return err
	}
	if b.cfg.DumpDir != "" {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.dumpPath = filepath.Join(b.cfg.DumpDir, fmt.Sprintf("%s_%s.db",
			util.SafeFileName(run.Name), run.StartTime.Format("20060102_150405")))
	}
	return nil
}

// EndRun flushes the run and writes a final dump.
func (b *Backend) EndRun(end *core.RunEnd) error {
	if err := b.Backend.EndRun(end); err != nil {
		return err
	}
	return b.Dump()
}

// Close stops the dump goroutine and closes the embedded GORM backend.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		<-b.done
		b.stopChan = nil
	}
	return b.Backend.Close()
}

// Dump writes the database to the run's dump file. Without a run or a dump
// directory it does nothing.
func (b *Backend) Dump() error {
	path := b.GetExportedFilePath()
	if path == "" {
		return nil
	}
	return database.DumpMemoryDBToDisk(b.db, path)
}

// GetExportedFilePath returns the dump file of the current run.
func (b *Backend) GetExportedFilePath() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dumpPath
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer close(b.done)
	if b.cfg.DumpInterval <= 0 {
		<-b.stopChan
		return
	}

	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.Dump(); err != nil {
				b.log.WriteLog("sqlite:dumpLoop", fmt.Sprintf("Error dumping to disk: %v", err), "ERROR")
			} else {
				b.log.WriteLog("sqlite:dumpLoop", fmt.Sprintf("Dumped to disk in %s", time.Since(start)), "DEBUG")
			}
		}
	}
}
