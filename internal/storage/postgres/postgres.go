// Package postgres implements the storage.Backend interface using GORM/PostgreSQL
// with internal queues and a background DB writer goroutine.
package postgres

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"github.com/piracysim/piracysim/internal/database"
	"github.com/piracysim/piracysim/internal/geo"
	"github.com/piracysim/piracysim/internal/logging"
	"github.com/piracysim/piracysim/internal/model"
	"github.com/piracysim/piracysim/internal/model/convert"
	"github.com/piracysim/piracysim/internal/queue"
	"github.com/piracysim/piracysim/pkg/core"
	"github.com/piracysim/piracysim/pkg/sim"
)

// DefaultFlushInterval is how often the writer drains the queues.
const DefaultFlushInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB         *gorm.DB
	LogManager *logging.SlogManager

	// Grid places ship rows on the map. Positions stay empty when nil.
	Grid *geo.Grid

	FlushInterval time.Duration
}

// queues holds the rows waiting for the next batch insert.
type queues struct {
	Frames *queue.Queue[model.FrameState]
	Ships  *queue.Queue[model.ShipState]
}

func newQueues() *queues {
	return &queues{
		Frames: queue.New[model.FrameState](),
		Ships:  queue.New[model.ShipState](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	queues *queues
	runID  atomic.Uint64

	// writeMu serializes flushes between the writer goroutine and EndRun.
	writeMu       sync.Mutex
	lastWriteTook atomic.Int64

	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(),
	}
}

// Init runs schema migration and starts the DB writer goroutine.
// If no DB was injected via Dependencies, it creates its own postgres connection.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		db, err := database.GetPostgresDB()
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			return fmt.Errorf("failed to validate connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		b.deps.DB = db
	}

	b.deps.LogManager.WriteLog("setupDB", "Migrating schema", "INFO")
	if err := database.Setup(b.deps.DB); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	b.deps.LogManager.WriteLog("setupDB", "Database setup complete", "INFO")

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writerLoop()
	return nil
}

// Close stops the writer and flushes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	close(b.stopChan)
	<-b.done
	b.stopChan = nil
	return b.flush()
}

// DB returns the connection in use, which Init may have opened.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// RunID returns the id of the run being recorded, 0 before StartRun.
func (b *Backend) RunID() uint {
	return uint(b.runID.Load())
}

// StartRun inserts the run row and assigns its id to run.ID.
func (b *Backend) StartRun(run *core.Run) error {
	if b.deps.DB == nil {
		return nil
	}

	row := convert.CoreToRun(*run)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert new run: %w", err)
	}
	run.ID = row.ID
	b.runID.Store(uint64(row.ID))
	return nil
}

// RecordFrame converts f and its ships to rows and queues them.
func (b *Backend) RecordFrame(number int, f *sim.Frame) error {
	runID := b.RunID()
	b.queues.Frames.Push(convert.FrameToModel(runID, number, f))
	b.queues.Ships.Push(convert.ShipsToModel(runID, number, f, b.deps.Grid)...)
	return nil
}

// EndRun writes everything queued so far and stores the end of run data on
// the run row.
func (b *Backend) EndRun(end *core.RunEnd) error {
	if b.deps.DB == nil {
		return nil
	}
	if err := b.flush(); err != nil {
		return err
	}

	var row model.Run
	if err := b.deps.DB.First(&row, b.RunID()).Error; err != nil {
		return fmt.Errorf("failed to load run %d: %w", b.RunID(), err)
	}
	convert.ApplyRunEnd(&row, *end)
	if err := b.deps.DB.Save(&row).Error; err != nil {
		return fmt.Errorf("failed to update run %d: %w", row.ID, err)
	}
	return nil
}

// QueueLengths reports the rows waiting to be written.
func (b *Backend) QueueLengths() model.WriteQueueLengths {
	return model.WriteQueueLengths{
		Frames: uint32(b.queues.Frames.Len()),
		Ships:  uint32(b.queues.Ships.Len()),
	}
}

// LastWriteDuration is how long the last flush took.
func (b *Backend) LastWriteDuration() time.Duration {
	return time.Duration(b.lastWriteTook.Load())
}

// writeQueue inserts everything in q in one transaction. On failure the
// rows go back to the front of the queue for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log func(string, string, string)) error {
	if q.Empty() {
		return nil
	}

	items := q.Drain()
	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log(":DB:WRITER:", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
		tx.Rollback()
		q.Requeue(items...)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tx.Commit().Error; err != nil {
		log(":DB:WRITER:", fmt.Sprintf("Error committing %s: %v", name, err), "ERROR")
		tx.Rollback()
		q.Requeue(items...)
		return fmt.Errorf("failed to commit %s: %w", name, err)
	}
	return nil
}

// flush drains both queues. Frames go first so that a reader never sees
// ships of a frame that has no row yet.
func (b *Backend) flush() error {
	if b.deps.DB == nil {
		return nil
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	start := time.Now()
	log := b.deps.LogManager.WriteLog
	errFrames := writeQueue(b.deps.DB, b.queues.Frames, "frame states", log)
	errShips := writeQueue(b.deps.DB, b.queues.Ships, "ship states", log)
	b.lastWriteTook.Store(int64(time.Since(start)))
	return errors.Join(errFrames, errShips)
}

func (b *Backend) writerLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			// errors are logged by writeQueue and retried next cycle
			_ = b.flush()
		}
	}
}
