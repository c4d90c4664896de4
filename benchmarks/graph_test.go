package benchmarks

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/randalmurphal/logmill/pkg/logmill"
	"github.com/randalmurphal/logmill/pkg/logmill/config"
	"github.com/randalmurphal/logmill/pkg/logmill/modules"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// linearDocument declares a Spam input, n Noop modifiers and a DropEvent
// sink. count bounds the number of events Spam sends.
func linearDocument(n, count int) string {
	var sb strings.Builder
	sb.WriteString("- Global:\n    drain:\n      step: 1ms\n")
	fmt.Fprintf(&sb, "- Spam:\n    event: bench\n    events_count: %d\n", count)
	for range n {
		sb.WriteString("- Noop\n")
	}
	sb.WriteString("- DropEvent\n")
	return sb.String()
}

func mustParse(b *testing.B, doc string) *config.Document {
	b.Helper()
	d, err := config.ParseDocument([]byte(doc))
	if err != nil {
		b.Fatal(err)
	}
	return d
}

func mustBuild(b *testing.B, doc *config.Document) *logmill.Pipeline {
	b.Helper()
	p, err := logmill.Build(doc, modules.Builtin(), logmill.WithLogger(quiet))
	if err != nil {
		b.Fatal(err)
	}
	return p
}

// BenchmarkParseDocument_10 parses a 10-unit document.
func BenchmarkParseDocument_10(b *testing.B) {
	data := []byte(linearDocument(10, 1))
	for b.Loop() {
		if _, err := config.ParseDocument(data); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkBuild(b *testing.B, n int) {
	doc := mustParse(b, linearDocument(n, 1))
	catalog := modules.Builtin()
	for b.Loop() {
		p, err := logmill.Build(doc, catalog, logmill.WithLogger(quiet))
		if err != nil {
			b.Fatal(err)
		}
		_ = p.Shutdown(b.Context())
	}
}

// BenchmarkBuild_Linear_5 builds a chain of 5 units.
func BenchmarkBuild_Linear_5(b *testing.B) { benchmarkBuild(b, 5) }

// BenchmarkBuild_Linear_50 builds a chain of 50 units.
func BenchmarkBuild_Linear_50(b *testing.B) { benchmarkBuild(b, 50) }

// BenchmarkBuild_Workers builds a forked chain on 8 workers.
func BenchmarkBuild_Workers(b *testing.B) {
	doc := mustParse(b, "- Global:\n    workers: 8\n"+linearDocument(10, 1))
	catalog := modules.Builtin()
	for b.Loop() {
		p, err := logmill.Build(doc, catalog, logmill.WithLogger(quiet))
		if err != nil {
			b.Fatal(err)
		}
		_ = p.Shutdown(b.Context())
	}
}
