package logger

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLoggerConfig configures the zap-backed gorm logger.
type GormLoggerConfig struct {
	Level         gormlogger.LogLevel
	SlowThreshold time.Duration
}

// DefaultGormLoggerConfig logs failures and slow statements, and every
// statement at debug level when debug is set.
func DefaultGormLoggerConfig(debug bool) GormLoggerConfig {
	cfg := GormLoggerConfig{
		Level:         gormlogger.Warn,
		SlowThreshold: 200 * time.Millisecond,
	}
	if debug {
		cfg.Level = gormlogger.Info
	}
	return cfg
}

// GormLogger writes gorm statements as structured zap entries. Bound
// parameters are never logged since trait values carry caller data.
type GormLogger struct {
	base *zap.Logger
	cfg  GormLoggerConfig
}

func NewGormLogger(base *zap.Logger, cfg GormLoggerConfig) *GormLogger {
	if base == nil {
		base = zap.L()
	}
	return &GormLogger{base: base.Named("gorm"), cfg: cfg}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) message(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.cfg.Level < min {
		return
	}
	var fields []zap.Field
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	if ce := WithContext(ctx, l.base).Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	level, ok := l.statementLevel(elapsed, err)
	if !ok {
		return
	}

	sql, rows := fc()
	fields := []zap.Field{
		zap.String("sql", strings.TrimSpace(sql)),
		zap.String("operation", operationFromSQL(sql)),
		zap.Duration("duration", elapsed),
	}
	if table := tableFromSQL(sql); table != "" {
		fields = append(fields, zap.String("table", table))
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if elapsed > l.cfg.SlowThreshold && l.cfg.SlowThreshold > 0 {
		fields = append(fields, zap.Bool("slow", true))
	}

	if ce := WithContext(ctx, l.base).Check(level, "gorm.query"); ce != nil {
		ce.Write(fields...)
	}
}

// statementLevel picks the level for one statement. Missing rows and
// duplicate keys are normal outcomes of name lookups and insert races.
func (l *GormLogger) statementLevel(elapsed time.Duration, err error) (zapcore.Level, bool) {
	switch {
	case err != nil && (errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, gorm.ErrDuplicatedKey)):
		return zapcore.DebugLevel, l.cfg.Level >= gormlogger.Info
	case err != nil:
		return zapcore.ErrorLevel, l.cfg.Level >= gormlogger.Error
	case l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold:
		return zapcore.WarnLevel, l.cfg.Level >= gormlogger.Warn
	default:
		return zapcore.DebugLevel, l.cfg.Level >= gormlogger.Info
	}
}

func (l *GormLogger) ParamsFilter(ctx context.Context, sql string, params ...interface{}) (string, []interface{}) {
	return sql, nil
}

func operationFromSQL(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		token = strings.Trim(token, "();")
		switch token {
		case "SELECT", "INSERT", "UPDATE", "DELETE", "SAVEPOINT", "RELEASE", "ROLLBACK":
			return token
		}
	}
	return "UNKNOWN"
}

var tablePattern = regexp.MustCompile("(?i)\\b(?:FROM|INTO|UPDATE)\\s+[`\"]?([a-z_]+)")

func tableFromSQL(sql string) string {
	m := tablePattern.FindStringSubmatch(sql)
	if len(m) < 2 {
		return ""
	}
	return strings.ToLower(m[1])
}

var _ gormlogger.Interface = (*GormLogger)(nil)
