package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piracysim/piracysim/internal/model"
)

func TestPostgresDSN(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("db.host", "db.local")
	viper.Set("db.port", "6543")
	viper.Set("db.username", "sim")
	viper.Set("db.password", "secret")
	viper.Set("db.database", "runs")

	assert.Equal(t, "host=db.local port=6543 user=sim password=secret dbname=runs sslmode=disable", PostgresDSN())
}

func TestGetSqliteDB_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.db")
	db, err := GetSqliteDB(path)
	require.NoError(t, err)

	require.NoError(t, Setup(db))
	for _, m := range model.DatabaseModels {
		assert.True(t, db.Migrator().HasTable(m))
	}

	var version int
	require.NoError(t, db.Raw("PRAGMA user_version").Scan(&version).Error)
	assert.Equal(t, 1, version)
}

func TestDumpMemoryDBToDisk(t *testing.T) {
	db, err := GetSqliteDB(filepath.Join(t.TempDir(), "src.db"))
	require.NoError(t, err)
	require.NoError(t, Setup(db))
	require.NoError(t, db.Create(&model.Run{Name: "dumped", StartTime: time.Now()}).Error)

	dumpPath := filepath.Join(t.TempDir(), "dumps", "run.db")
	require.NoError(t, DumpMemoryDBToDisk(db, dumpPath))
	// a second dump replaces the first
	require.NoError(t, DumpMemoryDBToDisk(db, dumpPath))

	dumped, err := GetSqliteDB(dumpPath)
	require.NoError(t, err)
	var run model.Run
	require.NoError(t, dumped.First(&run).Error)
	assert.Equal(t, "dumped", run.Name)
}

func TestDumpMemoryDBToDisk_NoPath(t *testing.T) {
	assert.ErrorIs(t, DumpMemoryDBToDisk(nil, ""), ErrNoDumpPath)
}

func TestManager_DumpWithoutPath(t *testing.T) {
	m := NewManager(zerolog.Nop())
	assert.ErrorIs(t, m.DumpMemoryToDisk(), ErrNoDumpPath)
}

func TestBackupDBPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.db", "b.db", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "c.db"), 0o755))

	paths, err := BackupDBPaths(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.db"), filepath.Join(dir, "b.db")}, paths)
}

func TestManager_Setup(t *testing.T) {
	db, err := GetSqliteDB(filepath.Join(t.TempDir(), "managed.db"))
	require.NoError(t, err)

	m := NewManager(zerolog.Nop())
	m.DB = db
	m.IsValid = true
	require.NoError(t, m.Setup())
	assert.True(t, m.IsValid)
	assert.True(t, db.Migrator().HasTable(&model.ShipState{}))
}
