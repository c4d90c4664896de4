package template

import "time"

// MissingAction specifies how a template handles paths absent from the event.
type MissingAction int

const (
	// MissingKeep returns the raw template verbatim when any referenced
	// path is absent. This is the default behavior.
	MissingKeep MissingAction = iota

	// MissingEmpty renders absent paths as empty strings.
	MissingEmpty

	// MissingError returns the raw template together with an
	// *UndefinedPathError naming the absent paths.
	MissingError
)

type options struct {
	missingAction MissingAction
	calendar      bool
	now           func() time.Time
}

func defaultOptions() options {
	return options{
		missingAction: MissingKeep,
		now:           time.Now,
	}
}

// Option configures template compilation.
type Option func(*options)

// WithMissingAction sets how absent paths are handled.
//
// Default: MissingKeep
func WithMissingAction(action MissingAction) Option {
	return func(o *options) {
		o.missingAction = action
	}
}

// WithCalendar enables strftime expansion (for example %Y.%m.%d) of the
// literal parts of a template against the current UTC time. Expansion
// happens before field substitution.
//
// Default: disabled
//
// Example:
//
//	tmpl := template.MustParse("logs-%Y.%m.%d-$(host)", template.WithCalendar(true))
func WithCalendar(enabled bool) Option {
	return func(o *options) {
		o.calendar = enabled
	}
}

// WithClock replaces the time source used for calendar expansion.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
