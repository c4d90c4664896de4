/*
Package config loads pipeline documents and provides type-safe access to
unit field dictionaries.

# Documents

A pipeline document is an ordered YAML (or JSON) sequence. Each entry is a
bare unit type name or a single-key mapping from type name to fields:

	- Global:
	    workers: 2
	    queue_flush_interval: 500ms
	- Spam:
	    event: "ni"
	    events_count: 3
	- Noop
	- StdOut:
	    pretty_print: true

Global entries are merged over DefaultGlobal and never declare a unit.
Environment variables prefixed with LOGMILL_ override Global after loading:

	doc, err := config.LoadDocument("pipeline.yaml")
	if err != nil {
	    return err
	}
	if err := config.ApplyEnv(config.EnvPrefix, &doc.Global); err != nil {
	    return err
	}

# Field Access

Config wraps a field dictionary and returns defaults for missing keys or
values of the wrong type:

	interval := cfg.Duration("interval", 10*time.Second)
	fields := cfg.StringSlice("fields", nil)

Duration accepts duration strings ("30s") or numbers of seconds.

# Validation

Units describe their fields with a Schema. Validate reports every unknown
key, missing required key and mistyped value at once:

	schema := config.Schema{
	    "key":       {Kind: config.KindString, Required: true},
	    "timeframe": {Kind: config.KindDuration},
	}
	err := schema.Validate(cfg, "id", "receivers")

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation.
*/
package config
