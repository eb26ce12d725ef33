package logx

import (
	"os"

	"github.com/rs/zerolog"
)

// New returns the process logger. Unknown levels fall back to info.
func New(service, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Str("service", service).Logger()
}
