package logmill

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/logmill/pkg/logmill/config"
	"github.com/randalmurphal/logmill/pkg/logmill/module"
	"github.com/randalmurphal/logmill/pkg/logmill/modules"
)

// singleCollector is a Collector restricted to worker 0.
type singleCollector struct {
	modules.Collector
}

func (*singleCollector) CanRunForked() bool { return false }

// failingUnit rejects its configuration.
type failingUnit struct {
	module.Base
}

func (*failingUnit) Type() module.Type { return module.TypeModifier }

func (*failingUnit) Configure(module.Env, config.Config) error {
	return io.ErrUnexpectedEOF
}

// testCatalog returns the built-in units plus test-only ones.
func testCatalog(t *testing.T) *modules.Catalog {
	t.Helper()
	c := modules.Builtin()
	require.NoError(t, c.Register("SingleCollector", func() module.Module { return &singleCollector{} }))
	require.NoError(t, c.Register("Failing", func() module.Module { return &failingUnit{} }))
	return c
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parse(t *testing.T, doc string) *config.Document {
	t.Helper()
	d, err := config.ParseDocument([]byte(doc))
	require.NoError(t, err)
	return d
}

func build(t *testing.T, doc string, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	p, err := Build(parse(t, doc), testCatalog(t), opts...)
	require.NoError(t, err)
	return p
}

func buildErr(t *testing.T, doc string) error {
	t.Helper()
	_, err := Build(parse(t, doc), testCatalog(t), WithLogger(quietLogger()))
	require.Error(t, err)
	return err
}

// run runs p to completion, failing the test if it takes too long.
func run(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, p.Run(ctx))
}

// collected gathers the events of every instance of a collector unit.
func collected(t *testing.T, p *Pipeline, id string) []*modules.Collector {
	t.Helper()
	var out []*modules.Collector
	for _, m := range p.Instances(id) {
		switch c := m.(type) {
		case *modules.Collector:
			out = append(out, c)
		case *singleCollector:
			out = append(out, &c.Collector)
		default:
			t.Fatalf("%s is %T, not a collector", id, m)
		}
	}
	return out
}

func collectedLen(t *testing.T, p *Pipeline, id string) int {
	t.Helper()
	n := 0
	for _, c := range collected(t, p, id) {
		n += c.Len()
	}
	return n
}
