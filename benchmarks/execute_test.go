package benchmarks

import (
	"context"
	"strconv"
	"testing"

	"github.com/randalmurphal/logmill/pkg/logmill/event"
	"github.com/randalmurphal/logmill/pkg/logmill/expr"
	"github.com/randalmurphal/logmill/pkg/logmill/module"
	"github.com/randalmurphal/logmill/pkg/logmill/modules"
	"github.com/randalmurphal/logmill/pkg/logmill/process"
)

func benchmarkRun(b *testing.B, n int) {
	doc := mustParse(b, linearDocument(n, b.N))
	p := mustBuild(b, doc)
	b.ResetTimer()
	if err := p.Run(context.Background()); err != nil {
		b.Fatal(err)
	}
	b.ReportMetric(float64(p.Process().Counters.Get("DropEvent"))/float64(b.N), "delivered/op")
}

// BenchmarkRun_Linear_5 pushes events through 5 direct-call units.
func BenchmarkRun_Linear_5(b *testing.B) { benchmarkRun(b, 5) }

// BenchmarkRun_Linear_50 pushes events through 50 direct-call units.
func BenchmarkRun_Linear_50(b *testing.B) { benchmarkRun(b, 50) }

// BenchmarkRun_Pooled pushes events through a pooled unit, so every event
// crosses a buffered channel.
func BenchmarkRun_Pooled(b *testing.B) {
	doc := mustParse(b, `
- Global:
    queue_buffer_size: 100
    queue_flush_interval: 5ms
    drain:
      step: 1ms
      rounds: 50
- Spam:
    event: bench
    events_count: `+strconv.Itoa(b.N)+`
- Noop:
    pool_size: 4
- DropEvent
`)
	p := mustBuild(b, doc)
	b.ResetTimer()
	if err := p.Run(context.Background()); err != nil {
		b.Fatal(err)
	}
}

// BenchmarkNode_Fanout dispatches one event to three filtered receivers.
func BenchmarkNode_Fanout(b *testing.B) {
	proc := process.New(process.WithLogger(quiet))
	defer proc.Close()

	sink := module.NewNode(&modules.DropEvent{}, module.NodeConfig{ID: "sink", Proc: proc})
	n := module.NewNode(&modules.Noop{}, module.NodeConfig{ID: "fan", Proc: proc})
	n.AddReceiver(sink, nil)
	n.AddReceiver(sink, expr.MustCompile("status == 404"))
	n.AddReceiver(sink, expr.MustCompile("$(path) == '/health'"))

	ctx := context.Background()
	for b.Loop() {
		evt := event.New(map[string]any{"status": 404, "path": "/health"})
		if err := n.Receive(ctx, evt); err != nil {
			b.Fatal(err)
		}
	}
}
