package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var consoleOutput bool

// Setup applies the configured minimum level and output format to every
// logger created afterwards. Unknown level names fall back to info.
func Setup(level string, console bool) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	consoleOutput = console
}

// zerologAdapter bridges zerolog to the Logger interface used across the
// server. Each instance carries a component field so log lines can be
// filtered per subsystem.
type zerologAdapter struct {
	z zerolog.Logger
}

// NewZerologLogger returns a Logger tagged with the given component. Output
// is JSON on stdout unless console mode was selected through Setup or the
// APP_ENV=dev environment variable.
func NewZerologLogger(component string) Logger {
	var out io.Writer = os.Stdout
	if consoleOutput || strings.EqualFold(os.Getenv("APP_ENV"), "dev") {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	z := zerolog.New(out).With().Timestamp().Str("component", component).Logger()
	return &zerologAdapter{z: z}
}

func (l *zerologAdapter) Debugf(format string, args ...any) { l.z.Debug().Msgf(format, args...) }

func (l *zerologAdapter) Debugw(msg string, fields map[string]any) {
	l.z.Debug().Fields(fields).Msg(msg)
}

func (l *zerologAdapter) Infof(format string, args ...any) { l.z.Info().Msgf(format, args...) }

func (l *zerologAdapter) Warnf(format string, args ...any) { l.z.Warn().Msgf(format, args...) }

func (l *zerologAdapter) Errorf(format string, args ...any) { l.z.Error().Msgf(format, args...) }
