package event

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Marshal encodes a single event as a msgpack map.
func Marshal(e *Event) ([]byte, error) {
	return msgpack.Marshal(e.fields)
}

// Unmarshal decodes a msgpack map produced by Marshal.
func Unmarshal(data []byte) (*Event, error) {
	dec := newDecoder(data)
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return Wrap(m), nil
}

// EncodeBatch encodes events as a msgpack array of maps.
//
// Events are encoded one at a time. An event that fails to encode is
// reported to onDrop and left out of the batch; the rest are kept.
func EncodeBatch(events []*Event, onDrop func(*Event, error)) ([]byte, error) {
	encoded := make([][]byte, 0, len(events))
	for _, e := range events {
		b, err := Marshal(e)
		if err != nil {
			if onDrop != nil {
				onDrop(e, err)
			}
			continue
		}
		encoded = append(encoded, b)
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	if err := enc.EncodeArrayLen(len(encoded)); err != nil {
		return nil, fmt.Errorf("encode batch header: %w", err)
	}
	for _, b := range encoded {
		buf.Write(b)
	}
	return buf.Bytes(), nil
}

// DecodeBatch decodes a payload produced by EncodeBatch and re-wraps every
// element as an Event. Integers decode as int64 and floats as float64.
func DecodeBatch(data []byte) ([]*Event, error) {
	dec := newDecoder(data)
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, fmt.Errorf("decode batch header: %w", err)
	}
	if n < 0 {
		return nil, nil
	}
	events := make([]*Event, 0, n)
	for i := 0; i < n; i++ {
		var m map[string]any
		if err := dec.Decode(&m); err != nil {
			return events, fmt.Errorf("decode batch item %d: %w", i, err)
		}
		events = append(events, Wrap(m))
	}
	return events, nil
}

func newDecoder(data []byte) *msgpack.Decoder {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.UseLooseInterfaceDecoding(true)
	return dec
}
