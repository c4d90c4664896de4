/*
Package logmill provides a configurable stream-processing pipeline engine.

# Overview

logmill reads a declarative list of processing units, wires them into a
graph and pushes events through it. Units are inputs, parsers, modifiers,
outputs or stand-alone helpers. Events flow from unit to unit by direct
call, through buffered in-process channels, or through serialized
channels when an edge crosses worker boundaries.

The engine provides:
  - Default wiring in declaration order, explicit receivers with filters
  - Fan-out with copy-on-send, so receivers never share an event
  - Per-unit input filters and common field actions
  - Goroutine workers for units that can run more than once
  - Graceful shutdown that drains channels before stopping
  - Optional at-least-once delivery through an ack store

# Basic Usage

A pipeline document lists units in order:

	- Global:
	    workers: 2
	- Spam:
	    event:
	      status: 404
	    events_count: 10
	- ModifyFields:
	    action: insert
	    target_field: seen
	    value: yes
	- StdOut:
	    pretty_print: false

Build it against a catalog of unit types and run it:

	doc, err := config.LoadDocument("pipeline.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	p, err := logmill.Build(doc, modules.Builtin())
	if err != nil {
	    log.Fatal(err)
	}
	if err := p.Run(ctx); err != nil {
	    log.Fatal(err)
	}

Run returns once every input has finished, ctx is cancelled, or
Shutdown is called.

# Routing

Without receivers each unit sends to the next declared unit, which must
accept events. Outputs and stand-alone units send nowhere by default.
Receivers can carry a filter:

	- Noop:
	    receivers:
	      - NotFound:
	          filter: status == 404
	      - StdOut

Every matching receiver gets the event; all but the first get a clone.
Filters may use the matches operator for regular expressions:

	filter: path matches '^/api/'

# Errors

Configuration problems are returned by Build, joined:

	p, err := logmill.Build(doc, catalog)
	var cfgErr *logmill.ConfigError
	if errors.As(err, &cfgErr) {
	    log.Printf("unit %s: %v", cfgErr.Unit, cfgErr.Err)
	}
	if errors.Is(err, logmill.ErrCycle) {
	    // receivers loop back on themselves
	}

Errors while handling an event never stop the pipeline: they are logged,
counted, and the event is forwarded unchanged.

# Subpackages

  - config: document parsing, Global settings, typed field access
  - module: the unit contract and the router node
  - modules: built-in units
  - event, template, expr: events, value templates, filters
  - buffer, channel: batching and transport between units
  - ack, store: delivery tracking and key-value persistence
  - observability: logging, metrics, and tracing helpers
*/
package logmill
