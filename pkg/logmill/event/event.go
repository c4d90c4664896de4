package event

import (
	"os"
	"sync"

	"github.com/google/uuid"
)

// Reserved metadata keys.
const (
	MetaKey         = "logmill"
	KeyPID          = "pid"
	KeyEventID      = "event_id"
	KeyEventType    = "event_type"
	KeySourceModule = "source_module"
	KeyReceivedFrom = "received_from"
	KeyReceivedBy   = "received_by"
	KeyWorker       = "worker"
)

// DefaultType is the event_type assigned to events nobody has classified.
const DefaultType = "Unknown"

var hostname = sync.OnceValue(func() string {
	name, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return name
})

// Event is a mutable nested record with reserved metadata.
//
// An Event is owned by exactly one unit at a time. It is not safe for
// concurrent mutation; fan-out hands independent clones to each receiver.
type Event struct {
	fields map[string]any
}

// Option configures metadata on a newly created event.
type Option func(meta map[string]any)

// WithSource sets source_module.
func WithSource(unitID string) Option {
	return func(meta map[string]any) { meta[KeySourceModule] = unitID }
}

// WithType sets event_type.
func WithType(eventType string) Option {
	return func(meta map[string]any) { meta[KeyEventType] = eventType }
}

// WithReceivedFrom sets the peer address the event arrived from.
func WithReceivedFrom(addr string) Option {
	return func(meta map[string]any) { meta[KeyReceivedFrom] = addr }
}

// WithWorker records the worker index that created the event.
func WithWorker(worker int) Option {
	return func(meta map[string]any) { meta[KeyWorker] = worker }
}

// New creates an event from a deep copy of fields and fills in default
// metadata. Metadata present in fields is kept except for event_id, which
// is always freshly minted.
func New(fields map[string]any, opts ...Option) *Event {
	m, _ := deepCopy(fields).(map[string]any)
	if m == nil {
		m = make(map[string]any)
	}
	meta := ensureMeta(m)
	meta[KeyEventID] = uuid.NewString()
	for _, opt := range opts {
		opt(meta)
	}
	return &Event{fields: m}
}

// FromData creates an event whose "data" field holds data.
func FromData(data any, opts ...Option) *Event {
	return New(map[string]any{"data": data}, opts...)
}

// Wrap adopts fields without copying. It is used when decoding events that
// already carry their metadata; a missing event_id is minted.
func Wrap(fields map[string]any) *Event {
	if fields == nil {
		fields = make(map[string]any)
	}
	meta := ensureMeta(fields)
	if id, _ := meta[KeyEventID].(string); id == "" {
		meta[KeyEventID] = uuid.NewString()
	}
	return &Event{fields: fields}
}

func ensureMeta(fields map[string]any) map[string]any {
	meta, ok := fields[MetaKey].(map[string]any)
	if !ok {
		meta = make(map[string]any)
		fields[MetaKey] = meta
	}
	setDefault(meta, KeyPID, os.Getpid())
	setDefault(meta, KeyEventType, DefaultType)
	setDefault(meta, KeySourceModule, "")
	setDefault(meta, KeyReceivedFrom, false)
	setDefault(meta, KeyReceivedBy, hostname())
	return meta
}

func setDefault(m map[string]any, key string, value any) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

// Fields returns the underlying map. Callers owning the event may mutate it.
func (e *Event) Fields() map[string]any {
	return e.fields
}

// Meta returns the reserved metadata map.
func (e *Event) Meta() map[string]any {
	return ensureMeta(e.fields)
}

// ID returns the event id.
func (e *Event) ID() string {
	id, _ := e.Meta()[KeyEventID].(string)
	return id
}

// Type returns the event type.
func (e *Event) Type() string {
	t, _ := e.Meta()[KeyEventType].(string)
	return t
}

// SetType sets the event type.
func (e *Event) SetType(eventType string) {
	e.Meta()[KeyEventType] = eventType
}

// Source returns the id of the unit that created the event.
func (e *Event) Source() string {
	s, _ := e.Meta()[KeySourceModule].(string)
	return s
}

// Clone returns a deep copy of the event with a new event_id.
func (e *Event) Clone() *Event {
	m, _ := deepCopy(e.fields).(map[string]any)
	c := &Event{fields: m}
	c.Meta()[KeyEventID] = uuid.NewString()
	return c
}

// Get returns the value at path.
func (e *Event) Get(path string) (any, bool) {
	return lookup(e.fields, splitPath(path))
}

// GetString returns the value at path if it is a string.
func (e *Event) GetString(path string) (string, bool) {
	v, ok := e.Get(path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Contains reports whether path resolves to a value.
func (e *Event) Contains(path string) bool {
	_, ok := e.Get(path)
	return ok
}

// Set stores value at path. Every intermediate segment must already exist.
func (e *Event) Set(path string, value any) error {
	if err := set(e.fields, splitPath(path), value); err != nil {
		return &PathError{Op: "set", Path: path, Err: err}
	}
	return nil
}

// Delete removes the value at path.
func (e *Event) Delete(path string) error {
	if _, err := remove(e.fields, splitPath(path)); err != nil {
		return &PathError{Op: "delete", Path: path, Err: err}
	}
	return nil
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = deepCopy(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = deepCopy(val)
		}
		return s
	case map[string]string:
		m := make(map[string]string, len(t))
		for k, val := range t {
			m[k] = val
		}
		return m
	case []string:
		return append([]string(nil), t...)
	case []map[string]any:
		s := make([]map[string]any, len(t))
		for i, val := range t {
			s[i], _ = deepCopy(val).(map[string]any)
		}
		return s
	case []byte:
		return append([]byte(nil), t...)
	default:
		return v
	}
}
