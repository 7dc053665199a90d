package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(body), 0644))
	return dir
}

func TestLoad_WithValidConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := writeConfig(t, `{
		"logLevel": "debug",
		"defaultTag": "night-ops",
		"db": { "host": "10.0.0.1", "port": "5433" }
	}`)

	err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", viper.GetString("logLevel"))
	assert.Equal(t, "night-ops", viper.GetString("defaultTag"))
	assert.Equal(t, "10.0.0.1", viper.GetString("db.host"))
	assert.Equal(t, "5433", viper.GetString("db.port"))
}

func TestLoad_DefaultValues(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, "info", viper.GetString("logLevel"))
	assert.Equal(t, "./logs", viper.GetString("logsDir"))
	assert.Equal(t, "localhost", viper.GetString("db.host"))
	assert.Equal(t, "piracysim", viper.GetString("db.database"))
	assert.Equal(t, false, viper.GetBool("graylog.enabled"))
	assert.Equal(t, "localhost:12201", viper.GetString("graylog.address"))
	assert.Equal(t, false, viper.GetBool("influx.enabled"))
	assert.Equal(t, "memory", viper.GetString("storage.type"))
	assert.Equal(t, 1440, viper.GetInt("sim.runTime"))
	assert.Equal(t, 400, viper.GetInt("sim.cols"))
}

func TestLoad_MissingFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	err := Load("/nonexistent/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
	assert.Equal(t, "memory", viper.GetString("storage.type"), "defaults are set even without a file")
}

func TestGetters(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("testKey", "testValue")
	viper.Set("testInt", 42)
	viper.Set("testBool", true)
	assert.Equal(t, "testValue", GetString("testKey"))
	assert.Equal(t, 42, GetInt("testInt"))
	assert.Equal(t, true, GetBool("testBool"))
}

func TestGetSimConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg, err := GetSimConfig()
	require.NoError(t, err)
	d := cfg.Conditions
	assert.Equal(t, 1440, d.SimRunTime)
	assert.Equal(t, 5, d.SimTimeStep)
	assert.Equal(t, [2]int{100, 400}, d.SimDimensions)
	assert.Len(t, d.DayPirateProbs, 400)
	assert.Equal(t, 0.5, d.DayCargoSpawn)
	assert.Equal(t, 0.25, d.NightPatrolSpawn)
	assert.Equal(t, int64(0), cfg.Seed)
	assert.Empty(t, cfg.CellOverrides)
}

func TestGetSimConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"sim": {
			"seed": 99,
			"runTime": 720,
			"rows": 10,
			"cols": 20,
			"considerDayNight": true,
			"night": { "pirateSpawn": 0.9 },
			"cellOverrides": [
				{ "kind": "cargo", "index": 3, "probability": 0.5 },
				{ "kind": "pirate", "night": true, "index": 0, "probability": 0.2 }
			]
		}
	}`)))

	cfg, err := GetSimConfig()
	require.NoError(t, err)
	assert.Equal(t, int64(99), cfg.Seed)
	assert.Equal(t, 720, cfg.Conditions.SimRunTime)
	assert.True(t, cfg.Conditions.ConsiderDayNight)
	assert.Len(t, cfg.Conditions.DayCargoProbs, 10)
	assert.Len(t, cfg.Conditions.NightPirateProbs, 20)
	assert.Equal(t, 0.9, cfg.Conditions.NightPirateSpawn)
	assert.Equal(t, 0.4, cfg.Conditions.DayPirateSpawn)
	require.Len(t, cfg.CellOverrides, 2)
	assert.Equal(t, CellOverride{Kind: "pirate", Night: true, Index: 0, Probability: 0.2}, cfg.CellOverrides[1])
}

func TestGetSimConfig_InvalidDimensions(t *testing.T) {
	for _, body := range []string{
		`{"sim":{"rows":-5}}`,
		`{"sim":{"cols":0}}`,
		`{"sim":{"rows":10,"cols":-1}}`,
	} {
		t.Run(body, func(t *testing.T) {
			t.Cleanup(viper.Reset)
			require.NoError(t, Load(writeConfig(t, body)))

			var err error
			assert.NotPanics(t, func() { _, err = GetSimConfig() })
			assert.ErrorContains(t, err, "must be positive")
		})
	}
}

func TestGetStorageConfig_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	cfg := GetStorageConfig()
	assert.Equal(t, "memory", cfg.Type)
	assert.Equal(t, "./recordings", cfg.Memory.OutputDir)
	assert.Equal(t, true, cfg.Memory.CompressOutput)
	assert.Equal(t, 3*time.Minute, cfg.SQLite.DumpInterval)
	assert.Equal(t, "ws://localhost:5000/api", cfg.WebSocket.URL)
}

func TestGetStorageConfig_Override(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"storage": {
			"type": "sqlite",
			"memory": { "outputDir": "/tmp/out", "compressOutput": false },
			"sqlite": { "dumpInterval": "10m" }
		}
	}`)))

	sc := GetStorageConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/out", sc.Memory.OutputDir)
	assert.Equal(t, false, sc.Memory.CompressOutput)
	assert.Equal(t, 10*time.Minute, sc.SQLite.DumpInterval)
}

func TestGetOTelConfig(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{
		"otel": { "enabled": true, "serviceName": "my-service", "batchTimeout": "30s", "insecure": false }
	}`)))

	oc := GetOTelConfig()
	assert.Equal(t, true, oc.Enabled)
	assert.Equal(t, "my-service", oc.ServiceName)
	assert.Equal(t, 30*time.Second, oc.BatchTimeout)
	assert.Equal(t, "", oc.Endpoint)
	assert.Equal(t, false, oc.Insecure)
}

func TestOtherSections_Defaults(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{}`)))

	assert.Equal(t, ManagerConfig{BaseFrametime: time.Second, Speed: 1}, GetManagerConfig())
	assert.Equal(t, MonitorConfig{Interval: 10 * time.Second}, GetMonitorConfig())
	assert.Equal(t, GeoConfig{OriginLongitude: 43, OriginLatitude: 15, CellSizeMeters: 1852}, GetGeoConfig())

	ic := GetInfluxConfig()
	assert.False(t, ic.Enabled)
	assert.Equal(t, "8086", ic.Port)
	assert.Equal(t, "piracysim", ic.Org)

	assert.Equal(t, APIConfig{}, GetAPIConfig())
}

func TestBindFlags(t *testing.T) {
	t.Cleanup(viper.Reset)
	require.NoError(t, Load(writeConfig(t, `{ "sim": { "seed": 5 }, "storage": { "type": "postgres" } }`)))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(fs))
	require.NoError(t, fs.Parse([]string{"--seed", "42", "--output", "/tmp/runs"}))

	assert.Equal(t, int64(42), viper.GetInt64("sim.seed"))
	assert.Equal(t, "/tmp/runs", GetStorageConfig().Memory.OutputDir)
	assert.Equal(t, "postgres", GetStorageConfig().Type, "unset flags leave the file value")
}
