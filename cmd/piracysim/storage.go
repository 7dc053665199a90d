package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/piracysim/piracysim/internal/config"
	"github.com/piracysim/piracysim/internal/geo"
	"github.com/piracysim/piracysim/internal/storage"
	"github.com/piracysim/piracysim/internal/storage/memory"
	pgstorage "github.com/piracysim/piracysim/internal/storage/postgres"
	sqlitestorage "github.com/piracysim/piracysim/internal/storage/sqlite"
	wsstorage "github.com/piracysim/piracysim/internal/storage/websocket"
	"github.com/piracysim/piracysim/pkg/core"
	"github.com/piracysim/piracysim/pkg/sim"
)

func createStorageBackend(storageCfg config.StorageConfig) (storage.Backend, error) {
	switch storageCfg.Type {
	case storage.TypePostgres:
		Logger.Info("Postgres storage backend initialized")
		return pgstorage.New(pgstorage.Dependencies{
			LogManager: SlogManager,
			Grid:       newGrid(),
		}), nil

	case storage.TypeSQLite:
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpDir:      storageCfg.SQLite.DumpDir,
		}, pgstorage.Dependencies{
			LogManager: SlogManager,
			Grid:       newGrid(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		Logger.Info("SQLite storage backend initialized", "dumpDir", storageCfg.SQLite.DumpDir)
		return backend, nil

	case storage.TypeWebSocket:
		wsURL := httpToWS(storageCfg.WebSocket.URL)
		Logger.Info("WebSocket storage backend initialized", "url", wsURL)
		return wsstorage.New(wsstorage.Config{
			URL:    wsURL,
			Secret: storageCfg.WebSocket.Secret,
		}, Logger), nil

	case storage.TypeMemory, "":
		Logger.Info("Memory storage backend initialized", "outputDir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q, want one of %s",
			storageCfg.Type, strings.Join(storage.Types, ", "))
	}
}

// httpToWS converts an HTTP(S) URL to a WebSocket URL.
func httpToWS(httpURL string) string {
	s := strings.TrimRight(httpURL, "/")
	s = strings.Replace(s, "https://", "wss://", 1)
	s = strings.Replace(s, "http://", "ws://", 1)
	return s
}

// newGrid anchors the simulation grid on the map. Ship rows are stored
// without positions when the anchoring is invalid.
func newGrid() *geo.Grid {
	cfg := config.GetGeoConfig()
	grid, err := geo.NewGrid(cfg.OriginLongitude, cfg.OriginLatitude, cfg.CellSizeMeters)
	if err != nil {
		Logger.Warn("Invalid map anchoring, positions disabled", "error", err)
		return nil
	}
	return grid
}

// newSimulation builds a configuring simulation and its run description from
// cfg. A zero seed picks one from the clock.
func newSimulation(cfg config.SimConfig) (*sim.Simulation, *core.Run, error) {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s, err := sim.New(cfg.Conditions, sim.Dependencies{
		Random: sim.NewRandom(seed),
		Logger: Logger,
	})
	if err != nil {
		return nil, nil, err
	}

	for _, o := range cfg.CellOverrides {
		k, err := core.ParseShipKind(o.Kind)
		if err != nil {
			return nil, nil, fmt.Errorf("cell override: %w", err)
		}
		if _, err := s.SetCellProbability(k, !o.Night, o.Index, o.Probability); err != nil {
			return nil, nil, fmt.Errorf("cell override %s[%d]: %w", k, o.Index, err)
		}
	}

	run := &core.Run{
		Name:             cfg.RunName,
		Tag:              cfg.Tag,
		Seed:             seed,
		ExtensionVersion: CurrentVersion,
	}
	return s, run, nil
}
