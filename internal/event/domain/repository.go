package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *Event) error
	InsertTraits(ctx context.Context, db *gorm.DB, traits []Trait) error
	ListEvents(ctx context.Context, db *gorm.DB, query EventQuery) ([]EventRow, error)
	ListTraits(ctx context.Context, db *gorm.DB, eventIDs []snowflake.ID) ([]TraitRow, error)
}

// EventQuery selects events by time range [Start, End) and name.
type EventQuery struct {
	Start  *time.Time
	End    *time.Time
	NameID *snowflake.ID
}

// EventRow is an event joined with its name.
type EventRow struct {
	ID           snowflake.ID `gorm:"column:id"`
	UniqueNameID snowflake.ID `gorm:"column:unique_name_id"`
	GeneratedAt  time.Time    `gorm:"column:generated_at"`
	Name         string       `gorm:"column:name"`
}

// TraitRow is a trait joined with its name.
type TraitRow struct {
	Trait
	TraitName string `gorm:"column:trait_name"`
}
