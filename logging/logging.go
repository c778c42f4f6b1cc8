// Package logging provides the ambient logger for every package in this
// module. It reuses dragonboat's logger.ILogger interface and registry so
// every component gets consistent, independently-leveled loggers without
// pulling in a second logging dependency.
package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
)

// clientLogger implements logger.ILogger with a compact, greppable format.
type clientLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *clientLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *clientLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *clientLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *clientLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *clientLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *clientLogger) Panicf(format string, args ...interface{}) {
	if l.level >= logger.CRITICAL {
		panic(fmt.Sprintf(format, args...))
	}
}

func (l *clientLogger) log(levelStr, format string, args ...interface{}) {
	l.logger.Printf("%-5s | %-12s | %s", levelStr, l.name, fmt.Sprintf(format, args...))
}

func factory(pkgName string) logger.ILogger {
	return &clientLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: log.New(os.Stdout, "", log.Ldate|log.Ltime),
	}
}

var initOnce sync.Once

// Get returns the named logger, e.g. logging.Get("conn"). Names are shared
// with dragonboat's logger registry so a single SetLevel call configures
// every caller of the same name. Every package constructor (registry.New,
// client.New, conn.New, ...) calls Get, often from concurrently running
// goroutines, so the one-time factory registration is guarded by sync.Once
// rather than a bare bool.
func Get(name string) logger.ILogger {
	initOnce.Do(func() { logger.SetLoggerFactory(factory) })
	return logger.GetLogger(name)
}

// SetLevel parses a string level ("debug", "info", "warn", "error") and
// applies it to every logger this module names.
func SetLevel(level string) {
	parsed := parseLevel(level)
	for _, name := range []string{"conn", "pool", "client", "registry", "auth", "ordered", "timer"} {
		Get(name).SetLevel(parsed)
	}
}

func parseLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG
	case "info":
		return logger.INFO
	case "warning", "warn":
		return logger.WARNING
	case "error":
		return logger.ERROR
	default:
		return logger.INFO
	}
}
