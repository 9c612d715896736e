package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// InsertIgnore inserts name unless the key already exists. It reports
	// whether a row was written.
	InsertIgnore(ctx context.Context, db *gorm.DB, name *UniqueName) (bool, error)
	FindByKey(ctx context.Context, db *gorm.DB, key string) (*UniqueName, error)
	// FindCommitted re-reads a key after a lost insert race. On engines with
	// snapshot reads inside a transaction it uses a locking read so the
	// winner's row is visible.
	FindCommitted(ctx context.Context, db *gorm.DB, key string) (*UniqueName, error)
}
