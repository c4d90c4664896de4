package timer_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/logmill/pkg/logmill/timer"
)

func TestRegistry_Every(t *testing.T) {
	reg := timer.NewRegistry(nil)
	var calls atomic.Int32

	h := reg.Every("tick", 5*time.Millisecond, func() { calls.Add(1) })
	assert.Equal(t, "tick", h.Name())
	assert.Equal(t, 1, reg.Len())

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)

	h.Stop()
	<-h.Done()
	assert.Equal(t, 0, reg.Len())

	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, calls.Load())
}

func TestHandle_StopFromInside(t *testing.T) {
	reg := timer.NewRegistry(nil)
	var calls atomic.Int32

	var h *timer.Handle
	ready := make(chan struct{})
	h = reg.Every("self", time.Millisecond, func() {
		<-ready
		calls.Add(1)
		h.Stop()
	})
	close(ready)

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("timer did not stop itself")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestRegistry_StopAll(t *testing.T) {
	reg := timer.NewRegistry(nil)
	a := reg.Every("a", time.Millisecond, func() {})
	b := reg.Every("b", time.Millisecond, func() {})

	reg.StopAll()
	assert.Equal(t, 0, reg.Len())

	for _, h := range []*timer.Handle{a, b} {
		select {
		case <-h.Done():
		default:
			t.Fatalf("timer %s still running after StopAll", h.Name())
		}
	}

	late := reg.Every("late", time.Millisecond, func() { t.Error("late timer ran") })
	<-late.Done()
	late.Stop()
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_RecoversPanics(t *testing.T) {
	reg := timer.NewRegistry(nil)
	var calls atomic.Int32
	h := reg.Every("panicky", time.Millisecond, func() {
		calls.Add(1)
		panic("boom")
	})
	defer h.Stop()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
}
