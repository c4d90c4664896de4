package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/randalmurphal/logmill/pkg/logmill/config"
)

func TestNew(t *testing.T) {
	cfg := config.New(nil)
	assert.NotNil(t, cfg.Raw())
	assert.Empty(t, cfg.Keys())
}

func TestString(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want string
	}{
		{"key exists", map[string]any{"name": "alice"}, "alice"},
		{"key missing", map[string]any{"other": "value"}, "default"},
		{"empty string", map[string]any{"name": ""}, ""},
		{"wrong type", map[string]any{"name": 123}, "default"},
		{"nil map", nil, "default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, config.New(tt.data).String("name", "default"))
		})
	}
}

func TestDuration(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  time.Duration
	}{
		{"string", "30s", 30 * time.Second},
		{"millis", "500ms", 500 * time.Millisecond},
		{"int seconds", 5, 5 * time.Second},
		{"int64 seconds", int64(2), 2 * time.Second},
		{"float seconds", 1.5, 1500 * time.Millisecond},
		{"duration", 3 * time.Minute, 3 * time.Minute},
		{"invalid string", "soon", time.Hour},
		{"wrong type", true, time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(map[string]any{"d": tt.value})
			assert.Equal(t, tt.want, cfg.Duration("d", time.Hour))
		})
	}
}

func TestInt(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int
	}{
		{"int", 42, 42},
		{"int64", int64(7), 7},
		{"uint64", uint64(9), 9},
		{"whole float", 3.0, 3},
		{"fractional float", 3.5, -1},
		{"string", "3", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(map[string]any{"n": tt.value})
			assert.Equal(t, tt.want, cfg.Int("n", -1))
		})
	}
}

func TestFloatAndBool(t *testing.T) {
	cfg := config.New(map[string]any{"f": 2, "g": 0.25, "b": true, "s": "true"})

	assert.Equal(t, 2.0, cfg.Float("f", 0))
	assert.Equal(t, 0.25, cfg.Float("g", 0))
	assert.Equal(t, 9.0, cfg.Float("missing", 9))
	assert.True(t, cfg.Bool("b", false))
	assert.False(t, cfg.Bool("s", false))
}

func TestStringSlice(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  []string
	}{
		{"single string", "a", []string{"a"}},
		{"string slice", []string{"a", "b"}, []string{"a", "b"}},
		{"any slice", []any{"a", "b"}, []string{"a", "b"}},
		{"mixed slice", []any{"a", 1}, []string{"default"}},
		{"wrong type", 12, []string{"default"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(map[string]any{"v": tt.value})
			assert.Equal(t, tt.want, cfg.StringSlice("v", []string{"default"}))
		})
	}
}

func TestNestedAccess(t *testing.T) {
	cfg := config.New(map[string]any{
		"receivers": []any{"a", map[string]any{"b": map[string]any{"filter": "x == 1"}}},
		"add_fields": map[string]any{"k": "v"},
		"id":         "unit",
	})

	assert.Equal(t, "v", cfg.Map("add_fields").String("k", ""))
	assert.Empty(t, cfg.Map("id").Keys())
	assert.Len(t, cfg.Slice("receivers"), 2)
	assert.Nil(t, cfg.Slice("id"))
	assert.Equal(t, []string{"add_fields", "id", "receivers"}, cfg.Keys())
	assert.True(t, cfg.Has("id"))
	assert.False(t, cfg.Has("filter"))
	assert.Equal(t, "fallback", cfg.Any("filter", "fallback"))

	rest := cfg.Without("id", "receivers")
	assert.Equal(t, []string{"add_fields"}, rest.Keys())
	assert.True(t, cfg.Has("id"), "Without must not modify the receiver")
}
