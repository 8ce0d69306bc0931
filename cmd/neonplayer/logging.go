package main

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// setupLogging configures the global zerolog logger: a console writer on
// stderr plus, when file is set, a rotating JSON log. The returned func
// flushes and closes the file.
func setupLogging(debug bool, file string) func() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	if file == "" {
		log.Logger = log.Output(console)
		return func() {}
	}

	rotator := newRotator(file)
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, rotator)).With().Timestamp().Logger()
	log.Info().Str("file", file).Msg("Logging to file")
	return func() { rotator.Close() }
}

func newRotator(file string) io.WriteCloser {
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		log.Warn().Err(err).Str("file", file).Msg("Failed to create log directory")
	}
	return &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}
}
