package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// GlobalKey is the reserved entry name holding process-wide settings.
const GlobalKey = "Global"

// EnvPrefix is the prefix of environment overrides for Global settings.
const EnvPrefix = "LOGMILL"

// Errors returned by document parsing.
var (
	// ErrEmptyDocument is returned when the document has no entries.
	ErrEmptyDocument = errors.New("empty configuration document")

	// ErrInvalidGlobal is wrapped by Global validation errors.
	ErrInvalidGlobal = errors.New("invalid Global section")
)

// Document is a parsed pipeline configuration.
type Document struct {
	// Path is the file the document was loaded from, if any.
	Path string

	// Global holds process-wide settings merged over DefaultGlobal.
	Global Global

	// Declarations are the unit entries in declaration order.
	Declarations []Declaration
}

// Declaration is one unit entry of a Document.
type Declaration struct {
	// Index is the position among unit entries, starting at 0.
	Index int

	// Type is the declared unit type name.
	Type string

	// Fields is the unit's field dictionary.
	Fields Config

	// Line is the 1-based source line of the entry.
	Line int
}

// Global holds process-wide settings.
type Global struct {
	Workers            int           `yaml:"workers" envconfig:"workers"`
	QueueSize          int           `yaml:"queue_size" envconfig:"queue_size"`
	QueueBufferSize    int           `yaml:"queue_buffer_size" envconfig:"queue_buffer_size"`
	QueueFlushInterval time.Duration `yaml:"queue_flush_interval" envconfig:"queue_flush_interval"`
	QueueCompression   string        `yaml:"queue_compression" envconfig:"queue_compression"`
	Logging            Logging       `yaml:"logging" envconfig:"log"`
	Drain              Drain         `yaml:"drain" envconfig:"drain"`
	EventBuffer        EventBuffer   `yaml:"event_buffer" envconfig:"event_buffer"`
	Metrics            bool          `yaml:"metrics" envconfig:"metrics"`
	Tracing            bool          `yaml:"tracing" envconfig:"tracing"`
}

// Logging configures the process logger.
type Logging struct {
	Level    string `yaml:"level" envconfig:"level"`
	Format   string `yaml:"format" envconfig:"format"`
	Filename string `yaml:"filename" envconfig:"filename"`
}

// Drain configures how long shutdown waits for channels to empty.
// Round n sleeps Step*n before checking again.
type Drain struct {
	Rounds int           `yaml:"rounds" envconfig:"rounds"`
	Step   time.Duration `yaml:"step" envconfig:"step"`
}

// EventBuffer enables at-least-once delivery. An empty Backend disables it.
type EventBuffer struct {
	Backend   string `yaml:"backend" envconfig:"backend"`
	Path      string `yaml:"path" envconfig:"path"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"key_prefix"`
}

// DefaultGlobal returns the settings used for keys a document omits.
func DefaultGlobal() Global {
	return Global{
		Workers:            1,
		QueueSize:          20,
		QueueBufferSize:    50,
		QueueFlushInterval: time.Second,
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
		Drain: Drain{
			Rounds: 5,
			Step:   500 * time.Millisecond,
		},
		EventBuffer: EventBuffer{
			KeyPrefix: "logmill:",
		},
	}
}

// Validate checks value ranges and enumerations.
func (g Global) Validate() error {
	var errs []error
	if g.Workers < 1 {
		errs = append(errs, fmt.Errorf("%w: workers must be >= 1, got %d", ErrInvalidGlobal, g.Workers))
	}
	if g.QueueSize < 1 {
		errs = append(errs, fmt.Errorf("%w: queue_size must be >= 1, got %d", ErrInvalidGlobal, g.QueueSize))
	}
	if g.QueueBufferSize < 1 {
		errs = append(errs, fmt.Errorf("%w: queue_buffer_size must be >= 1, got %d", ErrInvalidGlobal, g.QueueBufferSize))
	}
	if g.QueueFlushInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: queue_flush_interval must be positive", ErrInvalidGlobal))
	}
	if !slices.Contains([]string{"", "none", "s2"}, g.QueueCompression) {
		errs = append(errs, fmt.Errorf("%w: unknown queue_compression %q", ErrInvalidGlobal, g.QueueCompression))
	}
	if !slices.Contains([]string{"", "text", "json"}, g.Logging.Format) {
		errs = append(errs, fmt.Errorf("%w: unknown logging.format %q", ErrInvalidGlobal, g.Logging.Format))
	}
	if g.Drain.Rounds < 0 {
		errs = append(errs, fmt.Errorf("%w: drain.rounds must be >= 0", ErrInvalidGlobal))
	}
	switch g.EventBuffer.Backend {
	case "", "memory":
	case "sqlite":
		if g.EventBuffer.Path == "" {
			errs = append(errs, fmt.Errorf("%w: event_buffer.path is required for sqlite", ErrInvalidGlobal))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown event_buffer.backend %q", ErrInvalidGlobal, g.EventBuffer.Backend))
	}
	return errors.Join(errs...)
}

// DocumentError reports a malformed document entry.
type DocumentError struct {
	Path string
	Line int
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *DocumentError) Error() string {
	loc := fmt.Sprintf("line %d", e.Line)
	if e.Path != "" {
		loc = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", loc, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", loc, e.Msg)
}

// Unwrap returns the underlying error.
func (e *DocumentError) Unwrap() error {
	return e.Err
}

// LoadDocument reads and parses the document at path.
// JSON documents are accepted since JSON is valid YAML.
func LoadDocument(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		var de *DocumentError
		if errors.As(err, &de) {
			de.Path = path
		}
		return nil, err
	}
	doc.Path = path
	return doc, nil
}

// ParseDocument parses an ordered pipeline document.
//
// The document is a sequence. Each entry is either a bare type name or a
// single-key mapping from type name to a field dictionary. Entries named
// Global are merged into Document.Global instead of declaring a unit.
func ParseDocument(data []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, ErrEmptyDocument
	}
	seq := root.Content[0]
	if seq.Kind != yaml.SequenceNode {
		return nil, &DocumentError{Line: seq.Line, Msg: "document must be a sequence of unit entries"}
	}

	doc := &Document{Global: DefaultGlobal()}
	for _, item := range seq.Content {
		typeName, body, err := splitEntry(item)
		if err != nil {
			return nil, err
		}

		if typeName == GlobalKey {
			if err := decodeGlobal(body, &doc.Global); err != nil {
				return nil, &DocumentError{Line: item.Line, Msg: "decode Global", Err: err}
			}
			continue
		}

		fields := make(map[string]any)
		if body != nil && !isNull(body) {
			if body.Kind != yaml.MappingNode {
				return nil, &DocumentError{Line: body.Line, Msg: fmt.Sprintf("fields of %s must be a mapping", typeName)}
			}
			if err := body.Decode(&fields); err != nil {
				return nil, &DocumentError{Line: body.Line, Msg: fmt.Sprintf("decode fields of %s", typeName), Err: err}
			}
		}

		doc.Declarations = append(doc.Declarations, Declaration{
			Index:  len(doc.Declarations),
			Type:   typeName,
			Fields: New(fields),
			Line:   item.Line,
		})
	}

	if len(doc.Declarations) == 0 {
		return nil, ErrEmptyDocument
	}
	return doc, nil
}

func splitEntry(item *yaml.Node) (string, *yaml.Node, error) {
	switch item.Kind {
	case yaml.ScalarNode:
		if item.Value == "" {
			return "", nil, &DocumentError{Line: item.Line, Msg: "empty unit type"}
		}
		return item.Value, nil, nil
	case yaml.MappingNode:
		if len(item.Content) != 2 {
			return "", nil, &DocumentError{
				Line: item.Line,
				Msg:  fmt.Sprintf("entry must have exactly one unit type key, got %d", len(item.Content)/2),
			}
		}
		key := item.Content[0]
		if key.Kind != yaml.ScalarNode || key.Value == "" {
			return "", nil, &DocumentError{Line: key.Line, Msg: "unit type must be a string"}
		}
		return key.Value, item.Content[1], nil
	default:
		return "", nil, &DocumentError{Line: item.Line, Msg: "entry must be a type name or a mapping"}
	}
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}

var globalKeys = []string{
	"workers", "queue_size", "queue_buffer_size", "queue_flush_interval",
	"queue_compression", "logging", "drain", "event_buffer", "metrics", "tracing",
}

func decodeGlobal(body *yaml.Node, g *Global) error {
	if body == nil || isNull(body) {
		return nil
	}
	if body.Kind != yaml.MappingNode {
		return errors.New("must be a mapping")
	}
	for i := 0; i < len(body.Content); i += 2 {
		if k := body.Content[i].Value; !slices.Contains(globalKeys, k) {
			return fmt.Errorf("%w %q", ErrUnknownField, k)
		}
	}
	return body.Decode(g)
}

// ApplyEnv overrides Global settings from environment variables named
// PREFIX_KEY, for example LOGMILL_WORKERS or LOGMILL_LOG_LEVEL.
// Variables that are not set leave the current value untouched.
func ApplyEnv(prefix string, g *Global) error {
	if err := envconfig.Process(prefix, g); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}
	return nil
}
