package manager

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/piracysim/piracysim/internal/manager"

type metrics struct {
	ticks        metric.Int64Counter
	tickDuration metric.Float64Histogram
	liveShips    metric.Int64ObservableGauge
}

// newMetrics uses the global meter provider, a no-op unless OTel is set up.
func newMetrics(m *Manager) (*metrics, error) {
	meter := otel.Meter(instrumentationName)
	out := &metrics{}

	var err error
	out.ticks, err = meter.Int64Counter(
		"sim.ticks",
		metric.WithDescription("Live simulation ticks"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick counter: %w", err)
	}

	out.tickDuration, err = meter.Float64Histogram(
		"sim.tick.duration",
		metric.WithDescription("Time spent computing one tick"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick histogram: %w", err)
	}

	out.liveShips, err = meter.Int64ObservableGauge(
		"sim.ships.live",
		metric.WithDescription("Ships in the current frame"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating live ship gauge: %w", err)
	}

	_, err = meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			if f := m.CurrentFrame(); f != nil {
				o.ObserveInt64(out.liveShips, int64(f.Total()))
			}
			return nil
		},
		out.liveShips,
	)
	if err != nil {
		return nil, fmt.Errorf("registering live ship callback: %w", err)
	}

	return out, nil
}

func (x *metrics) recordTick(d time.Duration) {
	ctx := context.Background()
	x.ticks.Add(ctx, 1)
	x.tickDuration.Record(ctx, float64(d.Microseconds())/1000)
}
