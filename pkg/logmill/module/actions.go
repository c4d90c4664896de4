package module

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/randalmurphal/logmill/pkg/logmill/config"
	"github.com/randalmurphal/logmill/pkg/logmill/event"
	"github.com/randalmurphal/logmill/pkg/logmill/observability"
	"github.com/randalmurphal/logmill/pkg/logmill/template"
)

// Actions are the common field edits applied to every event a unit sends:
// add_fields, then delete_fields, then event_type.
type Actions struct {
	addFields    *template.Value
	addRaw       map[string]any
	deleteFields []string
	eventType    *template.Template
}

// ActionError reports a common action field that could not be compiled.
type ActionError struct {
	Field string
	Err   error
}

// Error implements the error interface.
func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

// Unwrap returns the underlying error.
func (e *ActionError) Unwrap() error { return e.Err }

// CompileActions extracts the common actions from cfg. It returns nil
// when cfg configures none, and an *ActionError for a malformed template.
func CompileActions(cfg config.Config) (*Actions, error) {
	a := &Actions{
		deleteFields: cfg.StringSlice("delete_fields", nil),
	}
	if m := cfg.Map("add_fields").Raw(); len(m) > 0 {
		v, err := template.CompileValue(m)
		if err != nil {
			return nil, &ActionError{Field: "add_fields", Err: err}
		}
		a.addRaw = m
		a.addFields = v
	}
	if et := cfg.String("event_type", ""); et != "" {
		t, err := template.Parse(et)
		if err != nil {
			return nil, &ActionError{Field: "event_type", Err: err}
		}
		a.eventType = t
	}
	if a.addFields == nil && len(a.deleteFields) == 0 && a.eventType == nil {
		return nil, nil
	}
	return a, nil
}

// Apply edits evt in place. Failures are logged and the remaining actions
// still run.
func (a *Actions) Apply(evt *event.Event, unitID string, logger *slog.Logger) {
	if a == nil {
		return
	}

	if a.addFields != nil {
		rendered, err := a.addFields.Render(evt)
		if err != nil {
			observability.LogTemplateError(logger, unitID, fmt.Sprint(a.addRaw), err)
		} else {
			fields, _ := rendered.(map[string]any)
			keys := make([]string, 0, len(fields))
			for k := range fields {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				if err := evt.Set(k, fields[k]); err != nil && logger != nil {
					logger.Warn("could not add field",
						slog.String("unit_id", unitID),
						slog.String("field", k),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}

	for _, path := range a.deleteFields {
		_ = evt.Delete(path)
	}

	if a.eventType != nil {
		et, err := a.eventType.String(evt)
		if err != nil {
			observability.LogTemplateError(logger, unitID, a.eventType.Raw(), err)
			et = a.eventType.Raw()
		}
		evt.SetType(et)
	}
}
