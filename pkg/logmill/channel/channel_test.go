package channel_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/logmill/pkg/logmill/buffer"
	"github.com/randalmurphal/logmill/pkg/logmill/channel"
	lmerrors "github.com/randalmurphal/logmill/pkg/logmill/errors"
	"github.com/randalmurphal/logmill/pkg/logmill/event"
)

func events(n int) []*event.Event {
	out := make([]*event.Event, n)
	for i := range out {
		out[i] = event.New(map[string]any{"n": i})
	}
	return out
}

func TestMemoryQueue_PutGet(t *testing.T) {
	q := channel.NewMemoryQueue(2)
	ctx := context.Background()
	batch := events(3)

	require.NoError(t, q.Put(ctx, batch))
	assert.Equal(t, 3, q.Len())

	got, err := q.Get(ctx)
	require.NoError(t, err)
	assert.Same(t, batch[0], got[0], "memory queue passes events by reference")
	assert.Equal(t, 0, q.Len())

	require.NoError(t, q.Close())
	_, err = q.Get(ctx)
	assert.ErrorIs(t, err, channel.ErrClosed)
	assert.ErrorIs(t, q.Put(ctx, batch), channel.ErrClosed)
	assert.True(t, lmerrors.IsShutdown(channel.ErrClosed))
}

func TestMemoryQueue_PutBlocksWhenFull(t *testing.T) {
	q := channel.NewMemoryQueue(1)
	require.NoError(t, q.Put(context.Background(), events(1)))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Put(ctx, events(1)), context.DeadlineExceeded)
	assert.Equal(t, 1, q.Len())
}

func TestSerialQueue_RoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := "plain"
		if compress {
			name = "s2"
		}
		t.Run(name, func(t *testing.T) {
			var seen int
			q, err := channel.NewPipeQueue(
				channel.WithCompression(compress),
				channel.WithFrameObserver(func(n int, age time.Duration) {
					seen += n
					assert.GreaterOrEqual(t, age, time.Duration(0))
				}),
			)
			require.NoError(t, err)
			defer q.Close()
			ctx := context.Background()

			batch := events(3)
			require.NoError(t, q.Put(ctx, batch))
			assert.Equal(t, 3, q.Len())

			got, err := q.Get(ctx)
			require.NoError(t, err)
			require.Len(t, got, 3)
			assert.Equal(t, 0, q.Len())
			assert.Equal(t, 3, seen)

			for i := range batch {
				assert.NotSame(t, batch[i], got[i])
				assert.Equal(t, batch[i].ID(), got[i].ID())
				n, _ := got[i].Get("n")
				assert.Equal(t, int64(i), n)
			}
		})
	}
}

func TestSerialQueue_DropsUnserializableEvent(t *testing.T) {
	q, err := channel.NewPipeQueue()
	require.NoError(t, err)
	defer q.Close()

	batch := events(2)
	require.NoError(t, batch[1].Set("fn", func() {}))

	require.NoError(t, q.Put(context.Background(), batch))
	assert.Equal(t, 1, q.Len())

	got, err := q.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, batch[0].ID(), got[0].ID())
}

// corruptingWriter garbles the payload of the first frame it writes.
type corruptingWriter struct {
	*io.PipeWriter
	done bool
}

func (w *corruptingWriter) Write(p []byte) (int, error) {
	if !w.done && len(p) > 16 {
		w.done = true
		garbled := append([]byte(nil), p...)
		for i := 16; i < len(garbled); i++ {
			garbled[i] = 0xc1
		}
		return w.PipeWriter.Write(garbled)
	}
	return w.PipeWriter.Write(p)
}

func TestSerialQueue_UndecodableFrameReleasesPending(t *testing.T) {
	r, pw := io.Pipe()
	q := channel.NewSerialQueue(r, &corruptingWriter{PipeWriter: pw})
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Put(ctx, events(3)))
	require.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, time.Millisecond,
		"events of a dropped frame are no longer pending")

	good := events(2)
	require.NoError(t, q.Put(ctx, good))
	got, err := q.Get(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, good[0].ID(), got[0].ID())
	assert.Equal(t, 0, q.Len())
}

func TestSerialQueue_Close(t *testing.T) {
	q, err := channel.NewPipeQueue()
	require.NoError(t, err)

	getErr := make(chan error, 1)
	go func() {
		_, err := q.Get(context.Background())
		getErr <- err
	}()

	require.NoError(t, q.Close())
	select {
	case err := <-getErr:
		assert.ErrorIs(t, err, channel.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Get did not return after Close")
	}
	assert.ErrorIs(t, q.Put(context.Background(), events(1)), channel.ErrClosed)
	assert.NoError(t, q.Close(), "close is idempotent")
}

func TestSerialQueue_GetHonorsContext(t *testing.T) {
	r, w := io.Pipe()
	q := channel.NewSerialQueue(r, w)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := q.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannel_BuffersThenQueues(t *testing.T) {
	ch := channel.New("Noop", channel.NewMemoryQueue(4), nil,
		buffer.WithFlushSize(2), buffer.WithInterval(0))
	ctx := context.Background()
	assert.Equal(t, "Noop", ch.ID())

	batch := events(3)
	for _, e := range batch {
		require.NoError(t, ch.Receive(ctx, e))
	}
	assert.Equal(t, 3, ch.Len(), "two queued plus one buffered")

	got, err := ch.Get(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, ch.Len())

	require.NoError(t, ch.Flush(ctx))
	got, err = ch.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, []*event.Event{batch[2]}, got)
	assert.Equal(t, 0, ch.Len())
}

func TestChannel_ShutdownErrorsAreSwallowed(t *testing.T) {
	q := channel.NewMemoryQueue(1)
	ch := channel.New("sink", q, nil, buffer.WithFlushSize(10), buffer.WithInterval(0))
	ctx := context.Background()

	require.NoError(t, ch.Receive(ctx, event.FromData("x")))
	require.NoError(t, q.Close())

	assert.NoError(t, ch.Flush(ctx))
	assert.Equal(t, 0, ch.Len())

	require.NoError(t, ch.Close())
	assert.ErrorIs(t, ch.Receive(ctx, event.FromData("y")), channel.ErrClosed)
}

func TestChannel_OverSerialQueue(t *testing.T) {
	q, err := channel.NewPipeQueue()
	require.NoError(t, err)
	ch := channel.New("remote", q, nil, buffer.WithFlushSize(1), buffer.WithInterval(0))
	defer ch.Close()

	evt := event.FromData("ni")
	require.NoError(t, ch.Receive(context.Background(), evt))

	got, err := ch.Get(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	data, _ := got[0].Get("data")
	assert.Equal(t, "ni", data)
}
