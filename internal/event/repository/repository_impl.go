package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/smallbiznis/telemetry/internal/event/domain"
	"github.com/smallbiznis/telemetry/pkg/repository"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() eventdomain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, e *eventdomain.Event) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO events (id, unique_name_id, generated_at) VALUES (?, ?, ?)`,
		e.ID,
		e.UniqueNameID,
		e.GeneratedAt,
	).Error
}

func (r *repo) InsertTraits(ctx context.Context, db *gorm.DB, traits []eventdomain.Trait) error {
	rows := make([]*eventdomain.Trait, len(traits))
	for i := range traits {
		rows[i] = &traits[i]
	}
	return repository.ProvideStore[eventdomain.Trait](db).BatchCreate(ctx, rows)
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, q eventdomain.EventQuery) ([]eventdomain.EventRow, error) {
	stmt := db.WithContext(ctx).
		Table("events").
		Select("events.id, events.unique_name_id, events.generated_at, unique_names.key AS name").
		Joins("JOIN unique_names ON unique_names.id = events.unique_name_id")

	if q.Start != nil {
		stmt = stmt.Where("events.generated_at >= ?", q.Start.UTC())
	}
	if q.End != nil {
		stmt = stmt.Where("events.generated_at < ?", q.End.UTC())
	}
	if q.NameID != nil {
		stmt = stmt.Where("events.unique_name_id = ?", *q.NameID)
	}

	var rows []eventdomain.EventRow
	if err := stmt.Order("events.generated_at ASC, events.id ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ListTraits(ctx context.Context, db *gorm.DB, eventIDs []snowflake.ID) ([]eventdomain.TraitRow, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	var rows []eventdomain.TraitRow
	err := db.WithContext(ctx).
		Table("traits").
		Select("traits.*, unique_names.key AS trait_name").
		Joins("JOIN unique_names ON unique_names.id = traits.name_id").
		Where("traits.event_id IN ?", eventIDs).
		Order("traits.event_id ASC, traits.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
