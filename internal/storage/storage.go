// internal/storage/storage.go
package storage

import (
	"slices"

	"github.com/piracysim/piracysim/pkg/core"
	"github.com/piracysim/piracysim/pkg/sim"
)

// Backend types accepted by storage.type.
const (
	TypeMemory    = "memory"
	TypeSQLite    = "sqlite"
	TypePostgres  = "postgres"
	TypeWebSocket = "websocket"
)

// Types lists every known backend type.
var Types = []string{TypeMemory, TypeSQLite, TypePostgres, TypeWebSocket}

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Run management. StartRun may assign run.ID.
	StartRun(run *core.Run) error
	EndRun(end *core.RunEnd) error

	// RecordFrame stores the frame with the given number. Frames arrive in
	// order and are never modified afterwards.
	RecordFrame(number int, f *sim.Frame) error
}

// Exporter is an optional interface for backends that write a file at the
// end of a run.
type Exporter interface {
	GetExportedFilePath() string
}

// ValidType reports whether t names a known backend.
func ValidType(t string) bool {
	return slices.Contains(Types, t)
}
