// Package event provides the record type that flows through a logmill pipeline.
//
// # Overview
//
// An Event is a nested map of string keys to values (strings, numbers,
// booleans, nested maps and sequences). Every event carries a reserved
// metadata sub-map under the "logmill" key:
//
//   - pid: process id of the worker that created the event
//   - event_id: a UUID, regenerated on Clone
//   - event_type: "Unknown" unless a unit sets it
//   - source_module: id of the input unit that produced the event
//   - received_from: peer address, false when unknown
//   - received_by: hostname of the receiving machine
//
// # Path Addressing
//
// Fields are addressed with dot paths. Each segment descends into a map by
// key or into a sequence by integer index:
//
//	evt.Get("http.headers.0.name")
//	evt.Set("http.status", 404)
//
// Set and Delete never create intermediate structure. A missing
// intermediate yields a *PathError wrapping ErrNotFound.
//
// # Wire Format
//
// Events crossing worker boundaries are encoded with msgpack. See
// EncodeBatch and DecodeBatch.
package event
