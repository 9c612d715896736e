package migration

import (
	"github.com/smallbiznis/telemetry/internal/config"
	pkgdb "github.com/smallbiznis/telemetry/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, backend pkgdb.Backend, storage config.StorageConfig, log *zap.Logger) error {
		if err := AutoMigrate(conn, backend, storage.Backends); err != nil {
			return err
		}
		log.Info("schema ready",
			zap.String("backend", string(backend)),
			zap.String("table_options", pkgdb.TableOptions(backend, storage.Backends)),
		)
		return nil
	}),
)
