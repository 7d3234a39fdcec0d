package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger builds the process logger. format "json" writes raw JSON lines,
// anything else writes human readable console output.
func InitLogger(level, format string) zerolog.Logger {
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if format == "json" {
		out = os.Stderr
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	return log.Output(out).Level(lvl).With().Str("service", "merchant-admin").Logger()
}
