package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	EnsureSource(ctx context.Context, db *gorm.DB, id string) error
	EnsureUser(ctx context.Context, db *gorm.DB, id string) error
	EnsureProject(ctx context.Context, db *gorm.DB, id string) error
	// UpsertResource creates the resource or overwrites its owners and
	// metadata with the latest values.
	UpsertResource(ctx context.Context, db *gorm.DB, resource *Resource) error
	InsertMeter(ctx context.Context, db *gorm.DB, meter *Meter) error
	// LinkSource records that assoc's entity was reported by its source.
	// Existing links are left alone.
	LinkSource(ctx context.Context, db *gorm.DB, assoc SourceAssoc) error

	ListUserIDs(ctx context.Context, db *gorm.DB, source string) ([]string, error)
	ListProjectIDs(ctx context.Context, db *gorm.DB, source string) ([]string, error)
	ListResources(ctx context.Context, db *gorm.DB, q EntityQuery) ([]Resource, error)
	ListMeters(ctx context.Context, db *gorm.DB, q MeterQuery) ([]MeterRow, error)
	ListCounters(ctx context.Context, db *gorm.DB, resourceIDs []string) ([]CounterRow, error)
}

// EntityQuery filters by owner, id and source.
type EntityQuery struct {
	User     string
	Project  string
	Resource string
	Source   string
}

// MeterQuery filters samples. Start is inclusive, End exclusive.
type MeterQuery struct {
	EntityQuery
	Meter string
	Start *time.Time
	End   *time.Time
	// Newest orders by descending timestamp instead of ascending.
	Newest bool
}

// MeterRow is a sample joined with the source it was reported by.
type MeterRow struct {
	Meter
	Source string `gorm:"column:source"`
}

// CounterRow is one distinct counter reported for a resource.
type CounterRow struct {
	ResourceID  string `gorm:"column:resource_id"`
	CounterName string `gorm:"column:counter_name"`
	CounterType string `gorm:"column:counter_type"`
	CounterUnit string `gorm:"column:counter_unit"`
}
