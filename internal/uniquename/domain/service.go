package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Registry resolves keys to ids, creating them on first use.
type Registry interface {
	// ResolveOrCreate returns the id stored for key, inserting a row when
	// none exists. Concurrent callers with the same key get the same id.
	// db may be a transaction; the row then shares its fate.
	ResolveOrCreate(ctx context.Context, db *gorm.DB, key string) (snowflake.ID, error)
	// Lookup returns the id for key without creating it.
	Lookup(ctx context.Context, db *gorm.DB, key string) (snowflake.ID, bool, error)
	// Remember caches ids resolved inside a transaction once it committed.
	Remember(ctx context.Context, names map[string]snowflake.ID)
	// Forget drops every cached id. Call it after the names table was
	// emptied so later keys are resolved against storage again.
	Forget(ctx context.Context) error
}

var (
	ErrInvalidKey   = errors.New("invalid_unique_name_key")
	ErrNameConflict = errors.New("unique_name_conflict")
)

// MaxKeyLength bounds keys to what the key column can index on every backend.
const MaxKeyLength = 255
