// Package logging builds the zap logger used across the module.
package logging

import (
	"fmt"
	"reflect"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger for the level names used in the configuration
// (ERROR, WARN, INFO, DEBUG; case-insensitive). Unknown levels fall back to INFO.
func New(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	config.EncoderConfig = zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// ParseLevel maps a configuration level name to a zap level.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "ERROR":
		return zapcore.ErrorLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "DEBUG":
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}

// OrNop returns logger, or a no-op logger when logger is nil.
func OrNop(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

var secretFields = []string{"password", "secret", "key"}

// LogConfigParams prints the top-level fields of a configuration struct at
// debug level. Fields whose name looks like a secret are masked.
func LogConfigParams(logger *zap.Logger, config interface{}) {
	v := reflect.Indirect(reflect.ValueOf(config))
	if v.Kind() != reflect.Struct {
		return
	}
	typeOfS := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := typeOfS.Field(i)
		if !field.IsExported() {
			continue
		}
		value := v.Field(i)
		if isSecret(field.Name) {
			logger.Debug("config", zap.String("field", field.Name), zap.String("value", "******"))
			continue
		}
		if value.Kind() == reflect.Ptr && !value.IsNil() && value.Elem().Kind() == reflect.Struct {
			LogConfigParams(logger.With(zap.String("section", field.Name)), value.Interface())
			continue
		}
		logger.Debug("config", zap.String("field", field.Name), zap.Any("value", value.Interface()))
	}
}

func isSecret(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range secretFields {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
