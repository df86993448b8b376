// Package logging provides the logger factory for the engine.
// All packages obtain their named logger through the dragonboat logger
// registry (logger.GetLogger("engine"), logger.GetLogger("slice"), ...);
// this package installs a factory rendering logfmt-style lines
//
//	2026-08-06T10:15:04.312Z level=INFO sys=engine msg="started 8 shards"
//
// through one serialized sink, so lines from different shard threads never
// interleave, and configures the levels of all known subsystem loggers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lni/dragonboat/v4/logger"
)

// --------------------------------------------------------------------------
// Shared sink
// --------------------------------------------------------------------------

// sink is the single output all subsystem loggers write through. Shards log
// from their own threads; the mutex keeps lines whole.
var sink = struct {
	sync.Mutex
	w io.Writer
}{w: os.Stdout}

// SetOutput redirects the sink; tests use it to capture lines.
func SetOutput(w io.Writer) {
	sink.Lock()
	defer sink.Unlock()
	sink.w = w
}

// --------------------------------------------------------------------------
// Custom Logger (implements logger.ILogger)
// --------------------------------------------------------------------------

var levelTags = map[logger.LogLevel]string{
	logger.CRITICAL: "CRIT",
	logger.ERROR:    "ERROR",
	logger.WARNING:  "WARN",
	logger.INFO:     "INFO",
	logger.DEBUG:    "DEBUG",
}

// sysLogger renders one subsystem's messages. A message is emitted when its
// level is at or below the configured threshold.
type sysLogger struct {
	sys string
	min logger.LogLevel
}

func (l *sysLogger) SetLevel(level logger.LogLevel) {
	l.min = level
}

// emit formats and writes one line through the shared sink.
func (l *sysLogger) emit(lvl logger.LogLevel, format string, args ...interface{}) {
	if lvl > l.min {
		return
	}
	msg := fmt.Sprintf(format, args...)

	sink.Lock()
	defer sink.Unlock()
	fmt.Fprintf(sink.w, "%s level=%s sys=%s msg=%q\n",
		time.Now().UTC().Format("2006-01-02T15:04:05.000Z"), levelTags[lvl], l.sys, msg)
}

func (l *sysLogger) Debugf(format string, args ...interface{}) {
	l.emit(logger.DEBUG, format, args...)
}

func (l *sysLogger) Infof(format string, args ...interface{}) {
	l.emit(logger.INFO, format, args...)
}

func (l *sysLogger) Warningf(format string, args ...interface{}) {
	l.emit(logger.WARNING, format, args...)
}

func (l *sysLogger) Errorf(format string, args ...interface{}) {
	l.emit(logger.ERROR, format, args...)
}

// Panicf logs at the critical level and always panics: the engine reserves
// it for structural invariant violations, which must never be suppressed.
func (l *sysLogger) Panicf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.emit(logger.CRITICAL, "%s", msg)
	panic(msg)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// CreateLogger implements the logger Factory interface
func CreateLogger(pkgName string) logger.ILogger {
	return &sysLogger{
		sys: pkgName,
		min: logger.INFO,
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

var levelNames = map[string]logger.LogLevel{
	"debug":   logger.DEBUG,
	"info":    logger.INFO,
	"warning": logger.WARNING,
	"warn":    logger.WARNING,
	"error":   logger.ERROR,
}

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) logger.LogLevel {
	lvl, ok := levelNames[strings.ToLower(level)]
	if !ok {
		panic(fmt.Sprintf("invalid log level: %s. must be one of debug, info, warn, error", level))
	}
	return lvl
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// subsystems is the set of named loggers the engine uses
var subsystems = []string{
	"engine", "slice", "table", "blocking", "tiered", "cmd",
}

// InitLoggers installs the custom factory and configures all subsystem loggers
func InitLoggers(level string) {
	logger.SetLoggerFactory(CreateLogger)

	for _, name := range subsystems {
		logger.GetLogger(name).SetLevel(ParseLogLevel(level))
	}
}
