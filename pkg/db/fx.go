package db

import (
	"context"
	"fmt"
	"time"

	obslogger "github.com/smallbiznis/telemetry/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

// Module provides the shared *gorm.DB and the resolved backend.
var Module = fx.Module("db",
	fx.Provide(Open),
)

// Conn bundles the handle with the backend it talks to.
type Conn struct {
	fx.Out

	DB      *gorm.DB
	Backend Backend
}

// Open connects to the configured store and registers a close hook.
func Open(lc fx.Lifecycle, cfg Config, log *zap.Logger) (Conn, error) {
	dialector, backend, err := Dialect(cfg.URL)
	if err != nil {
		return Conn{}, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 obslogger.NewGormLogger(log, obslogger.DefaultGormLoggerConfig(false)),
		TranslateError:         true,
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return Conn{}, Classify(fmt.Errorf("open %s: %w", backend, err))
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return Conn{}, err
	}
	if cfg.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	if cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if backend == BackendSQLite {
		// one writer; shared-cache memory databases lock per connection
		sqlDB.SetMaxOpenConns(1)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if cfg.Tracing {
		if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(string(backend)))); err != nil {
			return Conn{}, fmt.Errorf("register otelgorm: %w", err)
		}
	}
	if cfg.Metrics {
		if err := conn.Use(gormprometheus.New(gormprometheus.Config{
			DBName:          string(backend),
			RefreshInterval: 15,
		})); err != nil {
			return Conn{}, fmt.Errorf("register db metrics: %w", err)
		}
	}

	if lc != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := sqlDB.PingContext(ctx); err != nil {
					return Classify(err)
				}
				return nil
			},
			OnStop: func(ctx context.Context) error {
				log.Info("closing database connections")
				return sqlDB.Close()
			},
		})
	}

	log.Info("database configured", zap.String("backend", string(backend)))
	return Conn{DB: conn, Backend: backend}, nil
}
