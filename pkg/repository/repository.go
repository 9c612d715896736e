package repository

import (
	"context"

	"gorm.io/gorm"
)

// BatchSize bounds the rows of one INSERT issued by BatchCreate.
const BatchSize = 500

// Repository is a generic gorm-backed store for one model type.
type Repository[T any] interface {
	Find(ctx context.Context, query *T, opts ...QueryOption) ([]*T, error)
	Create(ctx context.Context, resource *T) error
	// CreateIgnore inserts resource unless its primary key exists and
	// reports whether a row was written.
	CreateIgnore(ctx context.Context, resource *T) (bool, error)
	Count(ctx context.Context, query *T) (int64, error)
	// BatchCreate inserts resources in chunks of BatchSize rows.
	BatchCreate(ctx context.Context, resources []*T) error
}

// QueryOption adjusts a query before it runs.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type queryOptionFunc func(db *gorm.DB) *gorm.DB

func (f queryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// OrderBy sorts by a column expression such as "id ASC".
func OrderBy(expr string) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB { return db.Order(expr) })
}

// Where adds a raw condition next to the struct filter.
func Where(query string, args ...any) QueryOption {
	return queryOptionFunc(func(db *gorm.DB) *gorm.DB { return db.Where(query, args...) })
}
