package logx

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

func New(service string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl := zerolog.InfoLevel
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if parsed, err := zerolog.ParseLevel(v); err == nil {
			lvl = parsed
		}
	}
	return zerolog.New(os.Stdout).Level(lvl).With().
		Timestamp().
		Str("service", service).
		Logger()
}
