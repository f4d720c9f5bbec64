package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Environment names written to the "env" attribute.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Config holds env-driven logger settings.
type Config struct {
	Service string `env:"APP_NAME" envDefault:"tenantkit"`
	Env     string `env:"APP_ENV" envDefault:"development"`
	Level   string `env:"LOG_LEVEL"`
}

// Format is the output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

type preset struct {
	env    string
	level  slog.Level
	format Format
}

// presets maps APP_ENV values, short forms included, to their defaults.
// Anything unknown is treated as development.
var presets = map[string]preset{
	EnvProduction: {EnvProduction, slog.LevelInfo, FormatJSON},
	"prod":        {EnvProduction, slog.LevelInfo, FormatJSON},
	EnvStaging:    {EnvStaging, slog.LevelInfo, FormatJSON},
	"stage":       {EnvStaging, slog.LevelInfo, FormatJSON},
}

var development = preset{EnvDevelopment, slog.LevelDebug, FormatText}

// Option configures logger creation.
type Option func(*config)

func WithLevel(l slog.Level) Option {
	return func(c *config) { c.level = l }
}

// WithFormat sets the output format. It panics on unknown formats so a
// misconfigured service fails at startup.
func WithFormat(f Format) Option {
	return func(c *config) {
		switch f {
		case FormatJSON, FormatText:
			c.format = f
		default:
			panic(fmt.Errorf("invalid log format %q: must be %q or %q", f, FormatJSON, FormatText))
		}
	}
}

// WithOutput sets the destination. Nil is ignored.
func WithOutput(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.output = w
		}
	}
}

// WithAttr adds static attributes to every record.
func WithAttr(attrs ...slog.Attr) Option {
	return func(c *config) {
		c.attrs = append(c.attrs, attrs...)
	}
}

// WithContextExtractors registers extractors run on every record logged
// with a context. Nil extractors are skipped.
func WithContextExtractors(extractors ...ContextExtractor) Option {
	return func(c *config) {
		for _, ex := range extractors {
			if ex != nil {
				c.extractors = append(c.extractors, ex)
			}
		}
	}
}

// WithConfig applies the defaults of cfg.Env, tags records with the
// service and environment, and honours an explicit level. An unparsable
// level is ignored.
func WithConfig(cfg Config) Option {
	return func(c *config) {
		p, ok := presets[cfg.Env]
		if !ok {
			p = development
		}
		c.level = p.level
		c.format = p.format
		if cfg.Service != "" {
			c.attrs = append(c.attrs, slog.String("service", cfg.Service), slog.String("env", p.env))
		}

		if cfg.Level == "" {
			return
		}
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(cfg.Level)); err == nil {
			c.level = lvl
		}
	}
}

func SetAsDefault(l *slog.Logger) {
	slog.SetDefault(l)
}

type config struct {
	level      slog.Level
	format     Format
	output     io.Writer
	attrs      []slog.Attr
	extractors []ContextExtractor
}

// New builds a logger. Without options it writes JSON at info level to stdout.
func New(opts ...Option) *slog.Logger {
	cfg := &config{
		level:  slog.LevelInfo,
		format: FormatJSON,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	handlerOpts := &slog.HandlerOptions{Level: cfg.level}

	var handler slog.Handler
	if cfg.format == FormatText {
		handler = slog.NewTextHandler(cfg.output, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(cfg.output, handlerOpts)
	}
	if len(cfg.attrs) > 0 {
		handler = handler.WithAttrs(cfg.attrs)
	}
	return slog.New(contextHandler{Handler: handler, extractors: cfg.extractors})
}
