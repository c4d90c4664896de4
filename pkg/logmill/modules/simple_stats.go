package modules

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	goprocess "github.com/shirou/gopsutil/v4/process"

	"github.com/randalmurphal/logmill/pkg/logmill/config"
	"github.com/randalmurphal/logmill/pkg/logmill/module"
	"github.com/randalmurphal/logmill/pkg/logmill/timer"
)

// UnitStats is one unit's throughput over a reporting interval.
type UnitStats struct {
	Unit   string
	Events int64
	Errors int64
	Rate   float64
}

// SimpleStats periodically logs per-unit throughput and the process's
// memory and cpu usage.
//
//	- SimpleStats:
//	    interval: 10s
type SimpleStats struct {
	module.Base

	interval time.Duration
	handle   *timer.Handle

	mu   sync.Mutex
	last map[string]int64
	proc *goprocess.Process
}

// Type implements module.Module.
func (*SimpleStats) Type() module.Type { return module.TypeStandAlone }

// CanRunForked reports false: counters are process wide.
func (*SimpleStats) CanRunForked() bool { return false }

// Schema implements module.SchemaProvider.
func (*SimpleStats) Schema() config.Schema {
	return config.Schema{
		"interval": {Kind: config.KindDuration},
	}
}

// Configure implements module.Module.
func (s *SimpleStats) Configure(env module.Env, cfg config.Config) error {
	if err := s.Base.Configure(env, cfg); err != nil {
		return err
	}
	s.interval = cfg.Duration("interval", 10*time.Second)
	s.last = make(map[string]int64)
	return nil
}

// InitAfterFork starts the reporting timer.
func (s *SimpleStats) InitAfterFork(ctx context.Context, env module.Env) error {
	if p, err := goprocess.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil {
		s.proc = p
	} else {
		s.Logger.Debug("process stats unavailable", slog.String("error", err.Error()))
	}
	s.handle = env.Proc.Timers.Every(env.UnitID+".report", s.interval, func() {
		s.report(context.Background())
	})
	return nil
}

// Collect returns the throughput of every unit since the previous call.
func (s *SimpleStats) Collect(elapsed time.Duration) []UnitStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.Env.Proc.Counters.Snapshot()
	var out []UnitStats
	for _, name := range s.Env.Proc.Counters.Names() {
		if strings.HasSuffix(name, ".errors") {
			continue
		}
		st := UnitStats{
			Unit:   name,
			Events: snap[name] - s.last[name],
			Errors: snap[name+".errors"] - s.last[name+".errors"],
		}
		if elapsed > 0 {
			st.Rate = float64(st.Events) / elapsed.Seconds()
		}
		out = append(out, st)
	}
	s.last = snap
	return out
}

func (s *SimpleStats) report(ctx context.Context) {
	for _, st := range s.Collect(s.interval) {
		s.Logger.Info("unit stats",
			slog.String("unit_id", st.Unit),
			slog.Int64("events", st.Events),
			slog.Int64("errors", st.Errors),
			slog.Float64("events_per_sec", st.Rate),
		)
	}

	if s.proc == nil {
		return
	}
	attrs := []any{slog.Int("pid", int(s.proc.Pid))}
	if mem, err := s.proc.MemoryInfoWithContext(ctx); err == nil {
		attrs = append(attrs, slog.Uint64("rss_bytes", mem.RSS))
	}
	if cpu, err := s.proc.PercentWithContext(ctx, 0); err == nil {
		attrs = append(attrs, slog.Float64("cpu_percent", cpu))
	}
	s.Logger.Info("process stats", attrs...)
}

// ShutDown stops reporting.
func (s *SimpleStats) ShutDown(context.Context) error {
	if s.handle != nil {
		s.handle.Stop()
	}
	return nil
}
