// Package logger configures the process-wide zerolog instance.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"jobmatch-go/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global logger from config: level, json or pretty
// console output, and an optional log file alongside the console. The
// returned logger also replaces the zerolog/log global.
func Init(cfg config.LoggerConfig) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.TimeFormat == "" {
		zerolog.TimeFieldFormat = time.RFC3339
	} else {
		zerolog.TimeFieldFormat = cfg.TimeFormat
	}

	var writers []io.Writer
	if cfg.Format == "pretty" {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: cfg.TimeFormat,
		})
	} else {
		writers = append(writers, os.Stdout)
	}
	if cfg.FilePath != "" {
		file, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return log.Logger, fmt.Errorf("open log file %s: %w", cfg.FilePath, err)
		}
		writers = append(writers, file)
	}

	logCtx := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp()
	if cfg.ReportCaller {
		logCtx = logCtx.Caller()
	}

	log.Logger = logCtx.Logger()
	return log.Logger, nil
}
