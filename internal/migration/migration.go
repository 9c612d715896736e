package migration

import (
	"context"
	"errors"
	"fmt"

	eventdomain "github.com/smallbiznis/telemetry/internal/event/domain"
	meteringdomain "github.com/smallbiznis/telemetry/internal/metering/domain"
	uniquenamedomain "github.com/smallbiznis/telemetry/internal/uniquename/domain"
	pkgdb "github.com/smallbiznis/telemetry/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Models lists every table in dependency order: referenced tables first.
func Models() []any {
	return []any{
		&uniquenamedomain.UniqueName{},
		&eventdomain.Event{},
		&eventdomain.Trait{},
		&meteringdomain.Source{},
		&meteringdomain.User{},
		&meteringdomain.Project{},
		&meteringdomain.Resource{},
		&meteringdomain.Meter{},
		&meteringdomain.SourceAssoc{},
	}
}

// AutoMigrate creates missing tables, columns and indexes, appending the
// backend's table options to every CREATE TABLE.
func AutoMigrate(conn *gorm.DB, backend pkgdb.Backend, backends map[pkgdb.Backend]pkgdb.BackendOptions) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	session := pkgdb.WithTableOptions(conn, backend, backends)
	if err := session.AutoMigrate(Models()...); err != nil {
		return pkgdb.Classify(fmt.Errorf("auto migrate: %w", err))
	}
	return nil
}

// Clear deletes every row, dependents before the rows they reference.
func Clear(ctx context.Context, conn *gorm.DB) error {
	models := Models()
	return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := len(models) - 1; i >= 0; i-- {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).
				Omit(clause.Associations).
				Delete(models[i]).Error; err != nil {
				return pkgdb.Classify(fmt.Errorf("clear %T: %w", models[i], err))
			}
		}
		return nil
	})
}
