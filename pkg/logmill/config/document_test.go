package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/logmill/pkg/logmill/config"
)

const pipelineYAML = `
- Global:
    workers: 3
    queue_flush_interval: 250ms
    logging:
      level: debug
- Spam:
    event: "ni"
    events_count: 3
- Noop
- Collector:
    id: sink
    receivers:
      - other
      - third:
          filter: "status == 404"
`

func TestParseDocument(t *testing.T) {
	doc, err := config.ParseDocument([]byte(pipelineYAML))
	require.NoError(t, err)

	require.Len(t, doc.Declarations, 3)
	assert.Equal(t, "Spam", doc.Declarations[0].Type)
	assert.Equal(t, 0, doc.Declarations[0].Index)
	assert.Equal(t, "ni", doc.Declarations[0].Fields.String("event", ""))
	assert.Equal(t, 3, doc.Declarations[0].Fields.Int("events_count", 0))

	assert.Equal(t, "Noop", doc.Declarations[1].Type)
	assert.Empty(t, doc.Declarations[1].Fields.Keys())
	assert.Equal(t, 10, doc.Declarations[1].Line)

	sink := doc.Declarations[2]
	assert.Equal(t, 2, sink.Index)
	assert.Equal(t, "sink", sink.Fields.String("id", ""))
	recv := sink.Fields.Slice("receivers")
	require.Len(t, recv, 2)
	assert.Equal(t, "other", recv[0])
	assert.Equal(t, map[string]any{"third": map[string]any{"filter": "status == 404"}}, recv[1])

	// Global merges over defaults.
	assert.Equal(t, 3, doc.Global.Workers)
	assert.Equal(t, 250*time.Millisecond, doc.Global.QueueFlushInterval)
	assert.Equal(t, "debug", doc.Global.Logging.Level)
	assert.Equal(t, "text", doc.Global.Logging.Format)
	assert.Equal(t, 20, doc.Global.QueueSize)
	assert.Equal(t, 5, doc.Global.Drain.Rounds)
}

func TestParseDocument_JSON(t *testing.T) {
	doc, err := config.ParseDocument([]byte(`["Spam", {"StdOut": {"pretty_print": true}}]`))
	require.NoError(t, err)
	require.Len(t, doc.Declarations, 2)
	assert.True(t, doc.Declarations[1].Fields.Bool("pretty_print", false))
	assert.Equal(t, config.DefaultGlobal(), doc.Global)
}

func TestParseDocument_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
		line    int
	}{
		{name: "empty", input: "", wantErr: config.ErrEmptyDocument},
		{name: "only global", input: "- Global:\n    workers: 2\n", wantErr: config.ErrEmptyDocument},
		{name: "not a sequence", input: "Spam: {}\n", line: 1},
		{name: "two keys", input: "- Spam: {}\n  Noop: {}\n", line: 1},
		{name: "fields not a mapping", input: "- Spam:\n  - a\n", line: 2},
		{name: "nested entry", input: "- [Spam]\n", line: 1},
		{name: "unknown global key", input: "- Global:\n    wrokers: 2\n- Noop\n", wantErr: config.ErrUnknownField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.ParseDocument([]byte(tt.input))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.line > 0 {
				var de *config.DocumentError
				require.ErrorAs(t, err, &de)
				assert.Equal(t, tt.line, de.Line)
			}
		})
	}
}

func TestParseDocument_NullFields(t *testing.T) {
	doc, err := config.ParseDocument([]byte("- Noop:\n- Global:\n"))
	require.NoError(t, err)
	require.Len(t, doc.Declarations, 1)
	assert.Empty(t, doc.Declarations[0].Fields.Keys())
}

func TestLoadDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(pipelineYAML), 0o600))

	doc, err := config.LoadDocument(path)
	require.NoError(t, err)
	assert.Equal(t, path, doc.Path)
	assert.Len(t, doc.Declarations, 3)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("- Spam: {}\n  Noop: {}\n"), 0o600))
	_, err = config.LoadDocument(bad)
	var de *config.DocumentError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, bad, de.Path)
	assert.Contains(t, err.Error(), bad+":1")

	_, err = config.LoadDocument(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestGlobal_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(g *config.Global)
		ok     bool
	}{
		{"defaults", func(*config.Global) {}, true},
		{"zero workers", func(g *config.Global) { g.Workers = 0 }, false},
		{"zero queue size", func(g *config.Global) { g.QueueSize = 0 }, false},
		{"s2 compression", func(g *config.Global) { g.QueueCompression = "s2" }, true},
		{"unknown compression", func(g *config.Global) { g.QueueCompression = "zstd" }, false},
		{"json logging", func(g *config.Global) { g.Logging.Format = "json" }, true},
		{"sqlite without path", func(g *config.Global) { g.EventBuffer.Backend = "sqlite" }, false},
		{"sqlite with path", func(g *config.Global) {
			g.EventBuffer.Backend = "sqlite"
			g.EventBuffer.Path = "acks.db"
		}, true},
		{"unknown backend", func(g *config.Global) { g.EventBuffer.Backend = "redis" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := config.DefaultGlobal()
			tt.modify(&g)
			err := g.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, config.ErrInvalidGlobal)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("LOGMILL_WORKERS", "4")
	t.Setenv("LOGMILL_LOG_LEVEL", "warn")
	t.Setenv("LOGMILL_DRAIN_STEP", "2s")

	g := config.DefaultGlobal()
	g.Logging.Format = "json"
	require.NoError(t, config.ApplyEnv(config.EnvPrefix, &g))

	assert.Equal(t, 4, g.Workers)
	assert.Equal(t, "warn", g.Logging.Level)
	assert.Equal(t, 2*time.Second, g.Drain.Step)
	assert.Equal(t, "json", g.Logging.Format, "unset variables keep the current value")
	assert.Equal(t, 20, g.QueueSize)
}

func TestApplyEnv_Invalid(t *testing.T) {
	t.Setenv("LOGMILL_WORKERS", "many")
	g := config.DefaultGlobal()
	assert.Error(t, config.ApplyEnv(config.EnvPrefix, &g))
}
