// Package log provides the process-wide zap logger used by the barograph core.
package log

import (
	"fmt"

	"go.uber.org/zap"
)

var log *zap.SugaredLogger
var baseLogger *zap.Logger

// Init initializes the package-level logger
func Init(debug bool) error {
	var zapLogger *zap.Logger
	var err error

	if debug {
		zapLogger, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	} else {
		zapLogger, err = zap.NewProduction(zap.AddCallerSkip(1))
	}
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %v", err)
	}

	baseLogger = zapLogger
	log = zapLogger.Sugar()
	return nil
}

// GetSugaredLogger returns the sugared logger instance. Components take a
// child of this logger in their constructors rather than calling the
// package-level helpers, so the caller-skip of the helpers does not apply.
func GetSugaredLogger() *zap.SugaredLogger {
	ensure()
	return baseLogger.WithOptions(zap.AddCallerSkip(-1)).Sugar()
}

// Named returns a component logger, e.g. Named("scheduler").
func Named(component string) *zap.SugaredLogger {
	return GetSugaredLogger().Named(component)
}

func ensure() {
	if log == nil {
		// Fallback logger if not initialized
		baseLogger, _ = zap.NewProduction(zap.AddCallerSkip(1))
		log = baseLogger.Sugar()
	}
}

// Sync flushes any buffered log entries
func Sync() {
	if log != nil {
		_ = log.Sync()
	}
}

func Debugf(template string, args ...interface{}) {
	ensure()
	log.Debugf(template, args...)
}

func Info(args ...interface{}) {
	ensure()
	log.Info(args...)
}

func Infof(template string, args ...interface{}) {
	ensure()
	log.Infof(template, args...)
}

func Warnf(template string, args ...interface{}) {
	ensure()
	log.Warnf(template, args...)
}

func Errorf(template string, args ...interface{}) {
	ensure()
	log.Errorf(template, args...)
}
