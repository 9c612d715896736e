package repository

import (
	"context"
	"fmt"

	meteringdomain "github.com/smallbiznis/telemetry/internal/metering/domain"
	"github.com/smallbiznis/telemetry/pkg/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() meteringdomain.Repository {
	return &repo{}
}

func (r *repo) EnsureSource(ctx context.Context, db *gorm.DB, id string) error {
	_, err := repository.ProvideStore[meteringdomain.Source](db).CreateIgnore(ctx, &meteringdomain.Source{ID: id})
	return err
}

func (r *repo) EnsureUser(ctx context.Context, db *gorm.DB, id string) error {
	_, err := repository.ProvideStore[meteringdomain.User](db).CreateIgnore(ctx, &meteringdomain.User{ID: id})
	return err
}

func (r *repo) EnsureProject(ctx context.Context, db *gorm.DB, id string) error {
	_, err := repository.ProvideStore[meteringdomain.Project](db).CreateIgnore(ctx, &meteringdomain.Project{ID: id})
	return err
}

func (r *repo) UpsertResource(ctx context.Context, db *gorm.DB, res *meteringdomain.Resource) error {
	return db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "project_id", "resource_metadata"}),
		}).
		Create(res).Error
}

func (r *repo) InsertMeter(ctx context.Context, db *gorm.DB, m *meteringdomain.Meter) error {
	return repository.ProvideStore[meteringdomain.Meter](db).Create(ctx, m)
}

func (r *repo) LinkSource(ctx context.Context, db *gorm.DB, assoc meteringdomain.SourceAssoc) error {
	target, err := linkTarget(assoc)
	if err != nil {
		return err
	}
	links := repository.ProvideStore[meteringdomain.SourceAssoc](db)
	count, err := links.Count(ctx, target)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return links.Create(ctx, &assoc)
}

// linkTarget narrows assoc to its source and the first entity it names.
func linkTarget(assoc meteringdomain.SourceAssoc) (*meteringdomain.SourceAssoc, error) {
	target := &meteringdomain.SourceAssoc{SourceID: assoc.SourceID}
	switch {
	case assoc.MeterID != nil:
		target.MeterID = assoc.MeterID
	case assoc.ResourceID != nil:
		target.ResourceID = assoc.ResourceID
	case assoc.ProjectID != nil:
		target.ProjectID = assoc.ProjectID
	case assoc.UserID != nil:
		target.UserID = assoc.UserID
	default:
		return nil, fmt.Errorf("source link %q has no target", assoc.SourceID)
	}
	return target, nil
}

func (r *repo) ListUserIDs(ctx context.Context, db *gorm.DB, source string) ([]string, error) {
	return r.listIDs(ctx, db, "users", "user_id", source)
}

func (r *repo) ListProjectIDs(ctx context.Context, db *gorm.DB, source string) ([]string, error) {
	return r.listIDs(ctx, db, "projects", "project_id", source)
}

func (r *repo) listIDs(ctx context.Context, db *gorm.DB, table, assocColumn, source string) ([]string, error) {
	stmt := db.WithContext(ctx).Table(table).Select(table + ".id")
	if source != "" {
		stmt = stmt.Where(
			fmt.Sprintf("EXISTS (SELECT 1 FROM sourceassoc sa WHERE sa.%s = %s.id AND sa.source_id = ?)", assocColumn, table),
			source,
		)
	}
	var ids []string
	if err := stmt.Order(table + ".id ASC").Pluck(table+".id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ListResources(ctx context.Context, db *gorm.DB, q meteringdomain.EntityQuery) ([]meteringdomain.Resource, error) {
	filter := &meteringdomain.Resource{
		ID:        q.Resource,
		UserID:    nonEmpty(q.User),
		ProjectID: nonEmpty(q.Project),
	}
	opts := []repository.QueryOption{repository.OrderBy("id ASC")}
	if q.Source != "" {
		opts = append(opts, repository.Where(
			"EXISTS (SELECT 1 FROM sourceassoc sa WHERE sa.resource_id = resources.id AND sa.source_id = ?)",
			q.Source,
		))
	}
	found, err := repository.ProvideStore[meteringdomain.Resource](db).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	resources := make([]meteringdomain.Resource, 0, len(found))
	for _, res := range found {
		resources = append(resources, *res)
	}
	return resources, nil
}

func nonEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func (r *repo) ListMeters(ctx context.Context, db *gorm.DB, q meteringdomain.MeterQuery) ([]meteringdomain.MeterRow, error) {
	stmt := db.WithContext(ctx).
		Table("meters").
		Select("meters.*, sa.source_id AS source").
		Joins("LEFT JOIN sourceassoc sa ON sa.meter_id = meters.id")

	if q.User != "" {
		stmt = stmt.Where("meters.user_id = ?", q.User)
	}
	if q.Project != "" {
		stmt = stmt.Where("meters.project_id = ?", q.Project)
	}
	if q.Resource != "" {
		stmt = stmt.Where("meters.resource_id = ?", q.Resource)
	}
	if q.Source != "" {
		stmt = stmt.Where("sa.source_id = ?", q.Source)
	}
	if q.Meter != "" {
		stmt = stmt.Where("meters.counter_name = ?", q.Meter)
	}
	if q.Start != nil {
		stmt = stmt.Where("meters.timestamp >= ?", q.Start.UTC())
	}
	if q.End != nil {
		stmt = stmt.Where("meters.timestamp < ?", q.End.UTC())
	}

	order := "meters.timestamp ASC, meters.id ASC"
	if q.Newest {
		order = "meters.timestamp DESC, meters.id DESC"
	}

	var rows []meteringdomain.MeterRow
	if err := stmt.Order(order).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ListCounters(ctx context.Context, db *gorm.DB, resourceIDs []string) ([]meteringdomain.CounterRow, error) {
	if len(resourceIDs) == 0 {
		return nil, nil
	}
	var rows []meteringdomain.CounterRow
	err := db.WithContext(ctx).
		Table("meters").
		Distinct("resource_id", "counter_name", "counter_type", "counter_unit").
		Where("resource_id IN ?", resourceIDs).
		Order("resource_id ASC, counter_name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
