package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/logmill/pkg/logmill/event"
)

func TestNew_DefaultMetadata(t *testing.T) {
	evt := event.FromData("ni", event.WithSource("Spam"))

	meta := evt.Meta()
	assert.NotEmpty(t, evt.ID())
	assert.Equal(t, event.DefaultType, evt.Type())
	assert.Equal(t, "Spam", evt.Source())
	assert.Equal(t, false, meta[event.KeyReceivedFrom])
	assert.NotEmpty(t, meta[event.KeyReceivedBy])
	assert.Contains(t, meta, event.KeyPID)

	data, ok := evt.Get("data")
	require.True(t, ok)
	assert.Equal(t, "ni", data)
}

func TestNew_CopiesInput(t *testing.T) {
	in := map[string]any{"nested": map[string]any{"a": 1}}
	evt := event.New(in)

	require.NoError(t, evt.Set("nested.a", 2))
	assert.Equal(t, 1, in["nested"].(map[string]any)["a"])
}

func TestEvent_SetGetDeepPaths(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		value any
	}{
		{"top level", "status", 404},
		{"nested map", "http.request.method", "GET"},
		{"sequence index", "tags.1", "second"},
		{"map inside sequence", "hops.0.host", "edge-1"},
		{"replace existing", "http.request.path", "/other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt := event.New(map[string]any{
				"http": map[string]any{"request": map[string]any{"path": "/"}},
				"tags": []any{"first", "x"},
				"hops": []any{map[string]any{"host": "origin"}},
			})

			require.NoError(t, evt.Set(tt.path, tt.value))
			got, ok := evt.Get(tt.path)
			require.True(t, ok)
			assert.Equal(t, tt.value, got)
			assert.True(t, evt.Contains(tt.path))
		})
	}
}

func TestEvent_SetMissingIntermediate(t *testing.T) {
	evt := event.New(map[string]any{"a": map[string]any{}})

	err := evt.Set("a.b.c", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, event.ErrNotFound)

	var pathErr *event.PathError
	require.ErrorAs(t, err, &pathErr)
	assert.Equal(t, "set", pathErr.Op)
	assert.Equal(t, "a.b.c", pathErr.Path)

	_, ok := evt.Get("a.b")
	assert.False(t, ok, "set must not create intermediates")
}

func TestEvent_SetSequenceOutOfRange(t *testing.T) {
	evt := event.New(map[string]any{"list": []any{1}})
	assert.ErrorIs(t, evt.Set("list.3", 9), event.ErrNotFound)
	assert.ErrorIs(t, evt.Set("list.x", 9), event.ErrNotFound)
}

func TestEvent_SetIntoScalar(t *testing.T) {
	evt := event.New(map[string]any{"a": "scalar"})
	assert.ErrorIs(t, evt.Set("a.b", 1), event.ErrNotContainer)
}

func TestEvent_Delete(t *testing.T) {
	evt := event.New(map[string]any{
		"a":    map[string]any{"b": 1, "c": 2},
		"list": []any{"x", "y", "z"},
	})

	require.NoError(t, evt.Delete("a.b"))
	assert.False(t, evt.Contains("a.b"))
	assert.True(t, evt.Contains("a.c"))

	require.NoError(t, evt.Delete("list.1"))
	got, _ := evt.Get("list")
	assert.Equal(t, []any{"x", "z"}, got)

	assert.ErrorIs(t, evt.Delete("missing.key"), event.ErrNotFound)
	assert.ErrorIs(t, evt.Delete("a.missing"), event.ErrNotFound)
}

func TestEvent_CloneIsIndependent(t *testing.T) {
	evt := event.New(map[string]any{
		"user": map[string]any{"name": "alice"},
		"tags": []any{"a"},
	})

	clone := evt.Clone()
	assert.NotEqual(t, evt.ID(), clone.ID())

	require.NoError(t, clone.Set("user.name", "bob"))
	require.NoError(t, clone.Set("tags.0", "b"))
	clone.SetType("changed")

	name, _ := evt.GetString("user.name")
	assert.Equal(t, "alice", name)
	tag, _ := evt.Get("tags.0")
	assert.Equal(t, "a", tag)
	assert.Equal(t, event.DefaultType, evt.Type())
}

func TestWrap_KeepsExistingID(t *testing.T) {
	evt := event.Wrap(map[string]any{
		event.MetaKey: map[string]any{event.KeyEventID: "fixed"},
	})
	assert.Equal(t, "fixed", evt.ID())
	assert.Equal(t, event.DefaultType, evt.Type())

	minted := event.Wrap(nil)
	assert.NotEmpty(t, minted.ID())
}
