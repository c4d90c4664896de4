package channel

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/s2"

	lmerrors "github.com/randalmurphal/logmill/pkg/logmill/errors"
	"github.com/randalmurphal/logmill/pkg/logmill/event"
)

// frameHeaderSize is a uint32 payload length, a uint32 event count and
// an int64 creation timestamp in unix nanoseconds, all little-endian.
const frameHeaderSize = 16

// maxFrameSize bounds a single frame so a corrupt header cannot trigger a
// huge allocation.
const maxFrameSize = 256 << 20

type frame struct {
	events  []*event.Event
	created time.Time
}

// SerialQueue carries batches across worker boundaries as length-prefixed
// msgpack frames over a byte stream. Events are copied on the way through,
// so producer and consumer never share memory.
type SerialQueue struct {
	r        io.ReadCloser
	w        io.WriteCloser
	compress bool
	logger   *slog.Logger
	observer func(events int, age time.Duration)

	wmu     sync.Mutex
	pending atomic.Int64
	frames  chan frame
	closed  chan struct{}
	done    chan struct{}
	once    sync.Once
}

// SerialOption configures a SerialQueue.
type SerialOption func(*SerialQueue)

// WithCompression enables s2 compression of frame payloads.
func WithCompression(enabled bool) SerialOption {
	return func(q *SerialQueue) { q.compress = enabled }
}

// WithSerialLogger sets the logger for dropped events and corrupt frames.
func WithSerialLogger(logger *slog.Logger) SerialOption {
	return func(q *SerialQueue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithFrameObserver is called for every decoded frame with its event
// count and the time it spent in transit.
func WithFrameObserver(fn func(events int, age time.Duration)) SerialOption {
	return func(q *SerialQueue) { q.observer = fn }
}

// NewPipeQueue creates a SerialQueue backed by an OS pipe.
func NewPipeQueue(opts ...SerialOption) (*SerialQueue, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create pipe: %w", err)
	}
	return NewSerialQueue(r, w, opts...), nil
}

// NewSerialQueue creates a queue reading frames from r and writing them to
// w. A background goroutine decodes frames until r fails or is closed.
func NewSerialQueue(r io.ReadCloser, w io.WriteCloser, opts ...SerialOption) *SerialQueue {
	q := &SerialQueue{
		r:      r,
		w:      w,
		logger: slog.Default(),
		frames: make(chan frame),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	go q.readLoop()
	return q
}

// Put serializes batch and writes it as one frame. An event that cannot be
// serialized is logged and dropped; the rest of the batch is kept. Put
// blocks while the stream is full and returns ErrClosed once the queue is
// closed.
func (q *SerialQueue) Put(ctx context.Context, batch []*event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-q.closed:
		return ErrClosed
	default:
	}

	dropped := 0
	payload, err := event.EncodeBatch(batch, func(e *event.Event, err error) {
		dropped++
		q.logger.Error("dropping event that cannot be serialized",
			"event_id", e.ID(),
			"error", err,
		)
	})
	if err != nil {
		return err
	}
	count := len(batch) - dropped
	if count == 0 {
		return nil
	}
	if q.compress {
		payload = s2.Encode(nil, payload)
	}

	var header [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[4:8], uint32(count))
	binary.LittleEndian.PutUint64(header[8:16], uint64(time.Now().UnixNano()))

	q.pending.Add(int64(count))
	q.wmu.Lock()
	_, err = q.w.Write(append(header[:], payload...))
	q.wmu.Unlock()
	if err != nil {
		q.pending.Add(-int64(count))
		if lmerrors.IsShutdown(err) {
			return ErrClosed
		}
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Get returns the next decoded batch.
func (q *SerialQueue) Get(ctx context.Context) ([]*event.Event, error) {
	select {
	case f, ok := <-q.frames:
		if !ok {
			return nil, ErrClosed
		}
		q.pending.Add(-int64(len(f.events)))
		if q.observer != nil {
			q.observer(len(f.events), time.Since(f.created))
		}
		return f.events, nil
	case <-q.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len implements Queue.
func (q *SerialQueue) Len() int {
	return int(q.pending.Load())
}

// Close closes both ends of the stream and stops the reader.
func (q *SerialQueue) Close() error {
	var err error
	q.once.Do(func() {
		close(q.closed)
		err = errors.Join(q.w.Close(), q.r.Close())
		<-q.done
	})
	return err
}

func (q *SerialQueue) readLoop() {
	defer close(q.done)
	defer close(q.frames)

	var header [frameHeaderSize]byte
	for {
		if _, err := io.ReadFull(q.r, header[:]); err != nil {
			q.readFailed(err)
			return
		}
		size := binary.LittleEndian.Uint32(header[0:4])
		count := int(binary.LittleEndian.Uint32(header[4:8]))
		created := time.Unix(0, int64(binary.LittleEndian.Uint64(header[8:16])))
		if size > maxFrameSize {
			q.logger.Error("corrupt frame header, stopping reader", "size", size)
			return
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(q.r, payload); err != nil {
			q.readFailed(err)
			return
		}

		events, err := q.decode(payload)
		if err != nil {
			q.logger.Error("dropping undecodable frame", "error", err, "events", count-len(events))
		}
		if lost := count - len(events); lost > 0 {
			q.pending.Add(-int64(lost))
		}
		if len(events) == 0 {
			continue
		}

		select {
		case q.frames <- frame{events: events, created: created}:
		case <-q.closed:
			return
		}
	}
}

func (q *SerialQueue) decode(payload []byte) ([]*event.Event, error) {
	if q.compress {
		raw, err := s2.Decode(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("decompress frame: %w", err)
		}
		payload = raw
	}
	return event.DecodeBatch(payload)
}

func (q *SerialQueue) readFailed(err error) {
	select {
	case <-q.closed:
		return
	default:
	}
	if errors.Is(err, io.EOF) || lmerrors.IsShutdown(err) {
		return
	}
	q.logger.Error("serial queue read failed", "error", err)
}
