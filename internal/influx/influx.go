package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/piracysim/piracysim/internal/config"
	"github.com/piracysim/piracysim/pkg/core"
	"github.com/piracysim/piracysim/pkg/sim"
)

// Buckets written by the simulator.
const (
	BucketStats       = "sim_stats"
	BucketPerformance = "sim_performance"
)

// MeasurementFrame is the per-frame statistics measurement.
const MeasurementFrame = "frame_stats"

// DefaultBucketNames are the buckets created on connect.
var DefaultBucketNames = []string{BucketStats, BucketPerformance}

// ErrDisabled is returned by Connect when influx.enabled is false.
var ErrDisabled = errors.New("influx is disabled")

// Manager handles InfluxDB connections and writes. When the server is
// unreachable points go to a gzip'd line protocol backup file instead.
type Manager struct {
	Client       influxdb2.Client
	Writers      map[string]influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	BucketNames  []string
	Logger       zerolog.Logger

	cfg        config.InfluxConfig
	backupFile *os.File
	mu         sync.Mutex
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, cfg config.InfluxConfig) *Manager {
	return &Manager{
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		BucketNames: DefaultBucketNames,
		Logger:      log,
		cfg:         cfg,
	}
}

// URL returns the server address built from the config.
func (m *Manager) URL() string {
	return fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port)
}

// BackupPath returns the backup file used while the server is unreachable.
func (m *Manager) BackupPath() string {
	return filepath.Join(m.cfg.BackupDir, "influx_backup.lp.gz")
}

// Connect establishes a connection to InfluxDB, falling back to the
// backup file when the server does not answer.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.Client = influxdb2.NewClientWithOptions(
		m.URL(),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	running, err := m.Client.Ping(pingCtx)
	cancel()

	if err != nil || !running {
		m.IsValid = false
		if err := m.openBackup(); err != nil {
			return err
		}
		m.Logger.Warn().Str("url", m.URL()).Str("backupPath", m.BackupPath()).
			Msg("InfluxDB unreachable, writing to backup file")
		return nil
	}

	m.IsValid = true
	if err := m.setupOrganizationAndBuckets(ctx); err != nil {
		return err
	}
	m.CreateWriters()
	m.Logger.Info().Str("url", m.URL()).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	if m.BackupWriter != nil {
		return nil
	}
	if err := os.MkdirAll(m.cfg.BackupDir, 0755); err != nil {
		return fmt.Errorf("error creating backup dir: %w", err)
	}
	file, err := os.OpenFile(m.BackupPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBuckets(ctx context.Context) error {
	orgName := m.cfg.Org

	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		influxOrg, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	// 90 day retention
	for _, bucket := range m.BucketNames {
		if _, err = m.Client.BucketsAPI().FindBucketByName(ctx, bucket); err == nil {
			continue
		}
		m.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 90,
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", bucket).Msg("Error creating bucket")
			return err
		}
	}

	return nil
}

// CreateWriters creates write APIs for all configured buckets.
func (m *Manager) CreateWriters() {
	for _, bucket := range m.BucketNames {
		m.Writers[bucket] = m.Client.WriteAPI(m.cfg.Org, bucket)

		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				m.Logger.Error().Err(writeErr).Str("bucket", bucketName).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, m.Writers[bucket].Errors())
	}

	m.Logger.Debug().Int("buckets", len(m.BucketNames)).Msg("InfluxDB writers initialized")
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(bucket string, point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsValid {
		w, ok := m.Writers[bucket]
		if !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		w.WritePoint(point)
		return nil
	}

	if m.BackupWriter == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}
	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// WriteFrame writes the statistics point of one frame to BucketStats.
func (m *Manager) WriteFrame(run *core.Run, number int, f *sim.Frame) error {
	return m.WritePoint(BucketStats, FramePoint(run, number, f))
}

// Close flushes pending writes and releases the client and backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.Writers {
		w.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}

	var errs []error
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Close())
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	return errors.Join(errs...)
}

// FramePoint builds the statistics point of a frame. The point time is the
// run start shifted by the frame's simulated minutes, so a run's points
// line up on a time axis.
func FramePoint(run *core.Run, number int, f *sim.Frame) *influxdb2_write.Point {
	s := f.Stats
	daylight := "night"
	if f.IsDaylight {
		daylight = "day"
	}

	p := influxdb2_write.NewPointWithMeasurement(MeasurementFrame).
		AddTag("run", run.Name).
		AddTag("runId", strconv.FormatUint(uint64(run.ID), 10)).
		AddTag("tag", run.Tag).
		AddTag("phase", daylight).
		AddField("frame", number).
		AddField("simTime", f.Time).
		AddField("cargos", f.Count(core.KindCargo)).
		AddField("patrols", f.Count(core.KindPatrol)).
		AddField("pirates", f.Count(core.KindPirate)).
		AddField("captures", f.Count(core.KindCapture)).
		AddField("cargosEntered", s.CargosEntered).
		AddField("cargosExited", s.CargosExited).
		AddField("patrolsEntered", s.PatrolsEntered).
		AddField("patrolsExited", s.PatrolsExited).
		AddField("piratesEntered", s.PiratesEntered).
		AddField("piratesExited", s.PiratesExited).
		AddField("capturesExited", s.CapturesExited).
		AddField("cargosCaptured", s.CargosCaptured).
		AddField("capturesRescued", s.CapturesRescued).
		AddField("piratesDefeated", s.PiratesDefeated).
		AddField("evadesCaptured", s.EvadesCaptured).
		AddField("evadesNotCaptured", s.EvadesNotCaptured)

	return p.SetTime(run.StartTime.Add(time.Duration(f.Time) * time.Minute))
}

// ParsePoint builds a point from annotation arguments:
// bucket, measurement, then any number of tag::name::value and
// field::type::name::value entries where type is string, int or float.
func ParsePoint(args []string) (bucket string, point *influxdb2_write.Point, err error) {
	if len(args) < 2 {
		return "", nil, errors.New("want bucket and measurement")
	}

	bucket = args[0]
	point = influxdb2_write.NewPointWithMeasurement(args[1]).SetTime(time.Now())

	for _, arg := range args[2:] {
		parts := strings.Split(arg, "::")
		switch {
		case parts[0] == "tag" && len(parts) >= 3:
			point.AddTag(parts[1], parts[2])
		case parts[0] == "field" && len(parts) >= 4:
			name, value := parts[2], parts[3]
			switch parts[1] {
			case "string":
				point.AddField(name, value)
			case "int":
				v, err := strconv.Atoi(value)
				if err != nil {
					return "", nil, fmt.Errorf("error converting field value '%s' to int: %w", value, err)
				}
				point.AddField(name, v)
			case "float":
				v, err := strconv.ParseFloat(value, 64)
				if err != nil {
					return "", nil, fmt.Errorf("error converting field value '%s' to float: %w", value, err)
				}
				point.AddField(name, v)
			default:
				return "", nil, fmt.Errorf("unknown field type %q", parts[1])
			}
		default:
			return "", nil, fmt.Errorf("malformed point argument %q", arg)
		}
	}

	return bucket, point, nil
}
