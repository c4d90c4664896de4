package logmill

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for pipeline building.
var (
	// ErrUnknownModule indicates a declaration names a type missing from
	// the catalog.
	ErrUnknownModule = errors.New("unknown module type")

	// ErrDuplicateID indicates two units share an explicit id, or an id
	// uses a reserved name.
	ErrDuplicateID = errors.New("duplicate unit id")

	// ErrUnknownReceiver indicates a receivers entry names no unit.
	ErrUnknownReceiver = errors.New("unknown receiver")

	// ErrInvalidReceiver indicates a receivers entry names an input or
	// stand-alone unit.
	ErrInvalidReceiver = errors.New("invalid receiver")

	// ErrCycle indicates the receiver graph contains a cycle.
	ErrCycle = errors.New("receiver cycle")
)

// Sentinel errors for running a pipeline.
var (
	// ErrNilDocument indicates Build was called without a document.
	ErrNilDocument = errors.New("document cannot be nil")

	// ErrAlreadyStarted indicates Run was called on a pipeline that is
	// not in the configuring state.
	ErrAlreadyStarted = errors.New("pipeline already started")
)

// ConfigError reports a unit whose configuration was rejected.
type ConfigError struct {
	// Unit is the unit id, or the declared type if no id was assigned yet.
	Unit string
	// Field is the offending field, if known.
	Field string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("unit %s: %v", e.Unit, e.Err)
	}
	return fmt.Sprintf("unit %s: %s: %v", e.Unit, e.Field, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// CycleError names the units forming a receiver cycle. The first and last
// entries of Path are the same unit.
type CycleError struct {
	Path []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("receiver cycle: %s", strings.Join(e.Path, " -> "))
}

// Unwrap returns ErrCycle for errors.Is support.
func (e *CycleError) Unwrap() error {
	return ErrCycle
}
