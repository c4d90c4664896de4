// Package template compiles dynamic values that reference event fields.
//
// # Syntax
//
// A template references event fields with $(path), optionally followed by
// a printf-style conversion:
//
//	$(host)            value of host
//	$(status)d         integer rendering
//	$(latency).2f      float with two decimals
//	$(name)-10s        left-aligned, padded to ten characters
//
// When calendar expansion is enabled, strftime directives in the literal
// parts are expanded against UTC now before fields are substituted:
//
//	logs-%Y.%m.%d      logs-2024.01.31
//
// # Missing Fields
//
// If any referenced path is absent, the raw template is returned verbatim
// (MissingKeep). WithMissingAction selects empty substitution or an error
// instead.
//
// # Typed Values
//
// A template consisting of exactly one $(path) without a conversion yields
// the field value itself, so $(count) copies an integer as an integer.
//
// # Usage
//
//	tmpl, err := template.Parse("$(a)-$(b)")
//	s, _ := tmpl.String(evt) // "1-2"
//
//	v, err := template.CompileValue(map[string]any{"$(kind)_seen": true})
//	out, _ := v.Render(evt)
package template
