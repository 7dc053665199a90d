package monitor

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/piracysim/piracysim/internal/model"
	"github.com/piracysim/piracysim/pkg/core"
	"github.com/piracysim/piracysim/pkg/sim"
)

// Collector holds the Prometheus gauges the monitor refreshes on each pass.
type Collector struct {
	gatherer prometheus.Gatherer

	FrameNumber       prometheus.Gauge
	SimTime           prometheus.Gauge
	Ships             *prometheus.GaugeVec
	Stats             *prometheus.GaugeVec
	WriteQueue        *prometheus.GaugeVec
	LastWriteDuration prometheus.Gauge
}

// NewCollector registers the gauges against reg, defaulting to the global
// registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.FrameNumber, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "piracysim_frame_number",
		Help: "Frame number under the simulation cursor.",
	})); err != nil {
		return nil, err
	}
	if c.SimTime, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "piracysim_sim_time_minutes",
		Help: "Simulated minutes elapsed in the current run.",
	})); err != nil {
		return nil, err
	}
	if c.Ships, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "piracysim_ships",
		Help: "Ships in the current frame, labeled by kind.",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if c.Stats, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "piracysim_run_statistics",
		Help: "Cumulative statistics of the current frame, labeled by counter.",
	}, []string{"stat"})); err != nil {
		return nil, err
	}
	if c.WriteQueue, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "piracysim_write_queue_length",
		Help: "Rows waiting for the database writer, labeled by queue.",
	}, []string{"queue"})); err != nil {
		return nil, err
	}
	if c.LastWriteDuration, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "piracysim_last_write_duration_seconds",
		Help: "Duration of the last database write cycle.",
	})); err != nil {
		return nil, err
	}

	return c, nil
}

// register reuses an already registered collector of the same type.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		var zero T
		return zero, err
	}
	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// ObserveFrame updates the frame gauges.
func (c *Collector) ObserveFrame(number int, f *sim.Frame) {
	if c == nil || f == nil {
		return
	}
	c.FrameNumber.Set(float64(number))
	c.SimTime.Set(float64(f.Time))
	for k := range core.KindCount {
		c.Ships.WithLabelValues(k.String()).Set(float64(f.Count(k)))
	}

	s := f.Stats
	for name, v := range map[string]int{
		"cargosEntered":     s.CargosEntered,
		"cargosExited":      s.CargosExited,
		"patrolsEntered":    s.PatrolsEntered,
		"patrolsExited":     s.PatrolsExited,
		"piratesEntered":    s.PiratesEntered,
		"piratesExited":     s.PiratesExited,
		"capturesExited":    s.CapturesExited,
		"piratesDefeated":   s.PiratesDefeated,
		"cargosCaptured":    s.CargosCaptured,
		"capturesRescued":   s.CapturesRescued,
		"evadesNotCaptured": s.EvadesNotCaptured,
		"evadesCaptured":    s.EvadesCaptured,
	} {
		c.Stats.WithLabelValues(name).Set(float64(v))
	}
}

// ObserveWriter updates the database writer gauges.
func (c *Collector) ObserveWriter(q model.WriteQueueLengths, lastWriteSeconds float64) {
	if c == nil {
		return
	}
	c.WriteQueue.WithLabelValues("frames").Set(float64(q.Frames))
	c.WriteQueue.WithLabelValues("ships").Set(float64(q.Ships))
	c.LastWriteDuration.Set(lastWriteSeconds)
}
