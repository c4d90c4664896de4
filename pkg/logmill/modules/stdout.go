package modules

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/randalmurphal/logmill/pkg/logmill/config"
	"github.com/randalmurphal/logmill/pkg/logmill/event"
	"github.com/randalmurphal/logmill/pkg/logmill/module"
	"github.com/randalmurphal/logmill/pkg/logmill/template"
)

// StdOut prints events, one per line.
//
// With format set, the rendered template is printed. Otherwise the event
// (or the listed fields) is printed as JSON. use_strftime expands %Y-style
// directives in the literal parts of format against the current UTC time.
type StdOut struct {
	module.Base

	// Out is where events are written. Nil means os.Stdout.
	Out io.Writer
	// Clock is the time source for use_strftime. Nil means time.Now.
	Clock func() time.Time

	mu     sync.Mutex
	pretty bool
	fields []string
	format *template.Template
}

// Type implements module.Module.
func (*StdOut) Type() module.Type { return module.TypeOutput }

// Schema implements module.SchemaProvider.
func (*StdOut) Schema() config.Schema {
	return config.Schema{
		"pretty_print": {Kind: config.KindBool},
		"fields":       {Kind: config.KindStringOrList},
		"format":       {Kind: config.KindString},
		"use_strftime": {Kind: config.KindBool},
	}
}

// Configure implements module.Module.
func (s *StdOut) Configure(env module.Env, cfg config.Config) error {
	if err := s.Base.Configure(env, cfg); err != nil {
		return err
	}
	if s.Out == nil {
		s.Out = os.Stdout
	}
	s.pretty = cfg.Bool("pretty_print", true)
	s.fields = cfg.StringSlice("fields", nil)
	if f := cfg.String("format", ""); f != "" {
		tmpl, err := template.Parse(f,
			template.WithCalendar(cfg.Bool("use_strftime", false)),
			template.WithClock(s.Clock),
		)
		if err != nil {
			return fmt.Errorf("format: %w", err)
		}
		s.format = tmpl
	}
	return nil
}

// HandleEvent writes evt and passes it on.
func (s *StdOut) HandleEvent(_ context.Context, evt *event.Event) ([]*event.Event, error) {
	line, err := s.render(evt)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintln(s.Out, line); err != nil {
		return nil, fmt.Errorf("write event: %w", err)
	}
	return []*event.Event{evt}, nil
}

func (s *StdOut) render(evt *event.Event) (string, error) {
	if s.format != nil {
		return s.format.String(evt)
	}

	var data any = evt.Fields()
	if len(s.fields) > 0 {
		subset := make(map[string]any, len(s.fields))
		for _, f := range s.fields {
			if v, ok := evt.Get(f); ok {
				subset[f] = v
			}
		}
		data = subset
	}

	var (
		b   []byte
		err error
	)
	if s.pretty {
		b, err = json.MarshalIndent(data, "", "  ")
	} else {
		b, err = json.Marshal(data)
	}
	if err != nil {
		return "", fmt.Errorf("encode event: %w", err)
	}
	return string(b), nil
}
