package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/logmill/pkg/logmill/event"
)

func TestBatchCodec_PreservesEvents(t *testing.T) {
	a := event.New(map[string]any{"status": 404, "ratio": 0.5, "tags": []any{"x"}})
	b := event.FromData("ni", event.WithType("spam"))

	payload, err := event.EncodeBatch([]*event.Event{a, b}, nil)
	require.NoError(t, err)

	got, err := event.DecodeBatch(payload)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, a.ID(), got[0].ID())
	status, _ := got[0].Get("status")
	assert.Equal(t, int64(404), status)
	ratio, _ := got[0].Get("ratio")
	assert.Equal(t, 0.5, ratio)
	tag, _ := got[0].Get("tags.0")
	assert.Equal(t, "x", tag)

	assert.Equal(t, b.ID(), got[1].ID())
	assert.Equal(t, "spam", got[1].Type())
}

func TestEncodeBatch_DropsUnencodableItem(t *testing.T) {
	good := event.FromData("ok")
	bad := event.FromData("bad")
	require.NoError(t, bad.Set("callback", make(chan int)))

	var dropped []string
	payload, err := event.EncodeBatch([]*event.Event{good, bad}, func(e *event.Event, err error) {
		dropped = append(dropped, e.ID())
	})
	require.NoError(t, err)
	assert.Equal(t, []string{bad.ID()}, dropped)

	got, err := event.DecodeBatch(payload)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, good.ID(), got[0].ID())
}

func TestUnmarshal_SingleEvent(t *testing.T) {
	evt := event.FromData("hello")
	b, err := event.Marshal(evt)
	require.NoError(t, err)

	got, err := event.Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, evt.ID(), got.ID())

	_, err = event.Unmarshal([]byte{0xc1})
	assert.Error(t, err)
}
