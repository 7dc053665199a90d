package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/piracysim/piracysim/pkg/core"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "piracysim.cfg.json"

// MemoryConfig holds in-memory/JSON storage backend settings
type MemoryConfig struct {
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	DumpDir      string        `json:"dumpDir" mapstructure:"dumpDir"`
}

// WebSocketConfig holds the frame streaming target
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects and configures the storage backend
type StorageConfig struct {
	Type      string          `json:"type" mapstructure:"type"`
	Memory    MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite    SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	WebSocket WebSocketConfig `json:"websocket" mapstructure:"websocket"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// InfluxConfig holds InfluxDB connection settings
type InfluxConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Host      string `json:"host" mapstructure:"host"`
	Port      string `json:"port" mapstructure:"port"`
	Protocol  string `json:"protocol" mapstructure:"protocol"`
	Token     string `json:"token" mapstructure:"token"`
	Org       string `json:"org" mapstructure:"org"`
	BackupDir string `json:"backupDir" mapstructure:"backupDir"`
}

// GeoConfig anchors the grid on the map. Cell (0, 0) is the north-west corner.
type GeoConfig struct {
	OriginLongitude float64 `json:"originLongitude" mapstructure:"originLongitude"`
	OriginLatitude  float64 `json:"originLatitude" mapstructure:"originLatitude"`
	CellSizeMeters  float64 `json:"cellSizeMeters" mapstructure:"cellSizeMeters"`
}

// ManagerConfig controls tick pacing
type ManagerConfig struct {
	BaseFrametime time.Duration `json:"baseFrametime" mapstructure:"baseFrametime"`
	Speed         int           `json:"speed" mapstructure:"speed"`
}

// MonitorConfig controls the status monitor and the Prometheus endpoint
type MonitorConfig struct {
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
	ListenAddr string        `json:"listenAddr" mapstructure:"listenAddr"`
}

// APIConfig points at the replay viewer receiving uploaded exports.
type APIConfig struct {
	ServerURL   string `json:"serverUrl" mapstructure:"serverUrl"`
	APIKey      string `json:"apiKey" mapstructure:"apiKey"`
	UploadOnEnd bool   `json:"uploadOnEnd" mapstructure:"uploadOnEnd"`
}

// CellOverride fixes one boundary cell probability at startup.
type CellOverride struct {
	Kind        string  `json:"kind" mapstructure:"kind"`
	Night       bool    `json:"night" mapstructure:"night"`
	Index       int     `json:"index" mapstructure:"index"`
	Probability float64 `json:"probability" mapstructure:"probability"`
}

// SimConfig is the initial state of a run as configured.
type SimConfig struct {
	Conditions    core.InitSimData
	Seed          int64
	RunName       string
	Tag           string
	CellOverrides []CellOverride
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("defaultTag", "baseline")

	viper.SetDefault("sim.runName", "piracy")
	viper.SetDefault("sim.seed", 0)
	viper.SetDefault("sim.runTime", core.DefaultRunTime)
	viper.SetDefault("sim.timeStep", core.DefaultTimeStep)
	viper.SetDefault("sim.rows", core.DefaultRows)
	viper.SetDefault("sim.cols", core.DefaultCols)
	viper.SetDefault("sim.considerDayNight", false)
	for _, phase := range []string{"day", "night"} {
		viper.SetDefault("sim."+phase+".cargoSpawn", core.DefaultCargoSpawn)
		viper.SetDefault("sim."+phase+".patrolSpawn", core.DefaultPatrolSpawn)
		viper.SetDefault("sim."+phase+".pirateSpawn", core.DefaultPirateSpawn)
	}

	viper.SetDefault("manager.baseFrametime", "1s")
	viper.SetDefault("manager.speed", 1)

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.memory.outputDir", "./recordings")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpDir", "./recordings")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/api")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "piracysim")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "piracysim")
	viper.SetDefault("influx.backupDir", "./logs")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "piracysim")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("geo.originLongitude", 43.0)
	viper.SetDefault("geo.originLatitude", 15.0)
	viper.SetDefault("geo.cellSizeMeters", 1852.0)

	viper.SetDefault("api.serverUrl", "")
	viper.SetDefault("api.apiKey", "")
	viper.SetDefault("api.uploadOnEnd", false)

	viper.SetDefault("monitor.interval", "10s")
	viper.SetDefault("monitor.listenAddr", "")
}

// BindFlags registers the command line overrides on fs and binds them to
// their configuration keys. Flags win over the file when set.
func BindFlags(fs *pflag.FlagSet) error {
	fs.Int64("seed", 0, "random seed (0 picks one from the clock)")
	fs.String("log-level", "", "log level: debug, info, warn, error")
	fs.String("storage", "", "storage backend: memory, sqlite, postgres, websocket")
	fs.String("output", "", "directory for exported runs")
	fs.String("name", "", "run name used for exported files and stored rows")

	bindings := map[string]string{
		"seed":      "sim.seed",
		"log-level": "logLevel",
		"storage":   "storage.type",
		"output":    "storage.memory.outputDir",
		"name":      "sim.runName",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}
	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetSimConfig assembles the initial conditions from the sim.* keys.
func GetSimConfig() (SimConfig, error) {
	d := core.DefaultInitSimData()
	d.SimRunTime = viper.GetInt("sim.runTime")
	d.SimTimeStep = viper.GetInt("sim.timeStep")
	d.ConsiderDayNight = viper.GetBool("sim.considerDayNight")
	rows, cols := viper.GetInt("sim.rows"), viper.GetInt("sim.cols")
	if rows <= 0 || cols <= 0 {
		return SimConfig{}, fmt.Errorf("invalid grid %dx%d: sim.rows and sim.cols must be positive", rows, cols)
	}
	d.ResetCells(rows, cols)
	d.DayCargoSpawn = viper.GetFloat64("sim.day.cargoSpawn")
	d.DayPatrolSpawn = viper.GetFloat64("sim.day.patrolSpawn")
	d.DayPirateSpawn = viper.GetFloat64("sim.day.pirateSpawn")
	d.NightCargoSpawn = viper.GetFloat64("sim.night.cargoSpawn")
	d.NightPatrolSpawn = viper.GetFloat64("sim.night.patrolSpawn")
	d.NightPirateSpawn = viper.GetFloat64("sim.night.pirateSpawn")

	cfg := SimConfig{
		Conditions: d,
		Seed:       viper.GetInt64("sim.seed"),
		RunName:    viper.GetString("sim.runName"),
		Tag:        viper.GetString("defaultTag"),
	}
	if err := viper.UnmarshalKey("sim.cellOverrides", &cfg.CellOverrides); err != nil {
		return cfg, fmt.Errorf("error reading sim.cellOverrides: %w", err)
	}
	return cfg, nil
}

// GetManagerConfig returns tick pacing settings.
func GetManagerConfig() ManagerConfig {
	return ManagerConfig{
		BaseFrametime: viper.GetDuration("manager.baseFrametime"),
		Speed:         viper.GetInt("manager.speed"),
	}
}

// GetStorageConfig returns storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		Memory: MemoryConfig{
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpDir:      viper.GetString("storage.sqlite.dumpDir"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

// GetOTelConfig returns OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetInfluxConfig returns InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:   viper.GetBool("influx.enabled"),
		Host:      viper.GetString("influx.host"),
		Port:      viper.GetString("influx.port"),
		Protocol:  viper.GetString("influx.protocol"),
		Token:     viper.GetString("influx.token"),
		Org:       viper.GetString("influx.org"),
		BackupDir: viper.GetString("influx.backupDir"),
	}
}

// GetGeoConfig returns the map anchoring of the grid.
func GetGeoConfig() GeoConfig {
	return GeoConfig{
		OriginLongitude: viper.GetFloat64("geo.originLongitude"),
		OriginLatitude:  viper.GetFloat64("geo.originLatitude"),
		CellSizeMeters:  viper.GetFloat64("geo.cellSizeMeters"),
	}
}

// GetMonitorConfig returns status monitor settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:   viper.GetDuration("monitor.interval"),
		ListenAddr: viper.GetString("monitor.listenAddr"),
	}
}

// GetAPIConfig returns the viewer upload settings.
func GetAPIConfig() APIConfig {
	return APIConfig{
		ServerURL:   viper.GetString("api.serverUrl"),
		APIKey:      viper.GetString("api.apiKey"),
		UploadOnEnd: viper.GetBool("api.uploadOnEnd"),
	}
}
