// FILE: log.go
// Package main – process-wide structured logging.
//
// Uses zerolog's leveled, fielded logger instead of ad hoc
// log.Printf("TRACE ...")/[DEBUG]/[WARN] prefixes. Components tag themselves
// with logger.With().Str("component", "risk").Logger().
package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the process-wide logger from LoggingConfig.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Component returns a child logger tagged with a component name, the same
// idiom used throughout this codebase for per-subsystem breadcrumbs.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
