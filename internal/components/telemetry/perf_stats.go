package telemetry

import (
	"context"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const perfStatsInterval = 30 * time.Second

type perfGauges struct {
	cpu        metric.Float64Gauge
	allocated  metric.Int64Gauge
	goroutines metric.Int64Gauge
}

func (g perfGauges) record(ctx context.Context, tel API) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	g.allocated.Record(ctx, int64(mem.Alloc/1_000_000))
	g.goroutines.Record(ctx, int64(runtime.NumGoroutine()))

	usage, err := cpu.PercentWithContext(ctx, 5*time.Second, false)
	if err != nil {
		tel.ReportWarning("perf-stats.cpu", err)
		return
	}
	if len(usage) > 0 {
		g.cpu.Record(ctx, usage[0])
	}
}

// InstrumentPerfStats samples process gauges in the background until ctx
// is done. Large backups keep one browser session open for a long time,
// the gauges make leaks visible.
func InstrumentPerfStats(ctx context.Context, tel API) {
	meter := otel.Meter("stgpx.perf_stats")
	var g perfGauges
	g.cpu, _ = meter.Float64Gauge("cpu_usage", metric.WithUnit("%"))
	g.allocated, _ = meter.Int64Gauge("allocated_mb", metric.WithUnit("MBy"))
	g.goroutines, _ = meter.Int64Gauge("goroutine_count")

	go func() {
		ticker := time.NewTicker(perfStatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				g.record(ctx, tel)
			case <-ctx.Done():
				return
			}
		}
	}()
}
