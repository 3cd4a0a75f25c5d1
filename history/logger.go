// Copyright 2026 Strata ML Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package history

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"
)

// Logger adapts zerolog to gorm's logging interface.
type Logger struct {
	zerolog.Logger
}

var _ gormlogger.Interface = Logger{}

// NewLogger wraps parent for use as a gorm logger.
func NewLogger(parent zerolog.Logger) Logger {
	return Logger{Logger: parent}
}

// LogMode returns a copy of the logger restricted to the zerolog
// level matching the given gorm level. Levels above Info enable
// trace logging.
func (l Logger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	var zeroLevel zerolog.Level
	switch level {
	case gormlogger.Error:
		zeroLevel = zerolog.ErrorLevel
	case gormlogger.Warn:
		zeroLevel = zerolog.WarnLevel
	case gormlogger.Info:
		zeroLevel = zerolog.InfoLevel
	default:
		if level > gormlogger.Info {
			zeroLevel = zerolog.TraceLevel
		} else {
			zeroLevel = zerolog.Disabled
		}
	}
	return Logger{Logger: l.Logger.Level(zeroLevel)}
}

func (l Logger) Info(_ context.Context, msg string, data ...interface{}) {
	l.Logger.Info().Msgf(msg, data...)
}

func (l Logger) Warn(_ context.Context, msg string, data ...interface{}) {
	l.Logger.Warn().Msgf(msg, data...)
}

func (l Logger) Error(_ context.Context, msg string, data ...interface{}) {
	l.Logger.Error().Msgf(msg, data...)
}

func (l Logger) Trace(_ context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	switch {
	case err != nil && l.GetLevel() <= zerolog.ErrorLevel:
		elapsed := time.Since(begin)
		sql, rows := fc()
		l.Err(err).Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).Msg("query error")
	case l.GetLevel() <= zerolog.DebugLevel:
		elapsed := time.Since(begin)
		sql, rows := fc()
		l.Debug().Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).Msg("query")
	}
}
