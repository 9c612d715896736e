package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/smallbiznis/telemetry/internal/event/domain"
	obslogger "github.com/smallbiznis/telemetry/internal/observability/logger"
	"github.com/smallbiznis/telemetry/internal/observability/metrics"
	uniquenamedomain "github.com/smallbiznis/telemetry/internal/uniquename/domain"
	pkgdb "github.com/smallbiznis/telemetry/pkg/db"
	"github.com/smallbiznis/telemetry/pkg/telemetry"
	"github.com/smallbiznis/telemetry/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     eventdomain.Repository
	Registry uniquenamedomain.Registry
	Metrics  *metrics.Metrics   `optional:"true"`
	Prom     *telemetry.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     eventdomain.Repository
	registry uniquenamedomain.Registry
	metrics  *metrics.Metrics
	prom     *telemetry.Metrics
}

func New(p Params) eventdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("event.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		registry: p.Registry,
		metrics:  p.Metrics,
		prom:     p.Prom,
	}
}

type validatedTrait struct {
	name  string
	value eventdomain.Value
}

type validatedEvent struct {
	name   string
	when   time.Time
	traits []validatedTrait
}

func (s *Service) RecordEvents(ctx context.Context, inputs []eventdomain.EventInput) ([]eventdomain.RecordedEvent, error) {
	if len(inputs) == 0 {
		return []eventdomain.RecordedEvent{}, nil
	}

	started := time.Now()
	log := obslogger.WithBatch(obslogger.WithContext(ctx, s.log), correlation.NewID(), len(inputs))

	validated, batchErr := validateBatch(inputs)
	if batchErr != nil {
		s.fail(ctx, log, "validation", batchErr, len(inputs), started)
		return nil, batchErr
	}

	var (
		recorded []eventdomain.RecordedEvent
		resolved map[string]snowflake.ID
		current  = -1
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		recorded = make([]eventdomain.RecordedEvent, 0, len(validated))
		resolved = make(map[string]snowflake.ID)
		for i, in := range validated {
			current = i
			rec, err := s.recordEvent(ctx, tx, in, resolved)
			if err != nil {
				return err
			}
			recorded = append(recorded, rec)
		}
		// Every entry was written; a later error belongs to the commit.
		current = -1
		return nil
	})
	if err != nil {
		batchErr := &eventdomain.BatchError{Entries: []eventdomain.EntryError{{
			Index: current,
			Err:   pkgdb.Classify(err),
		}}}
		s.fail(ctx, log, "storage", batchErr, len(inputs), started)
		return nil, batchErr
	}

	s.registry.Remember(ctx, resolved)

	traitCount := 0
	for _, rec := range recorded {
		traitCount += len(rec.Traits)
	}
	s.metrics.RecordEvents(ctx, len(recorded), traitCount)
	s.prom.ObserveEventBatch(len(recorded), "ok", time.Since(started))
	log.Info("events recorded",
		zap.Int("events", len(recorded)),
		zap.Int("traits", traitCount),
	)

	return recorded, nil
}

func (s *Service) recordEvent(ctx context.Context, tx *gorm.DB, in validatedEvent, resolved map[string]snowflake.ID) (eventdomain.RecordedEvent, error) {
	nameID, err := s.resolve(ctx, tx, in.name, resolved)
	if err != nil {
		return eventdomain.RecordedEvent{}, err
	}

	ev := eventdomain.Event{
		ID:           s.genID.Generate(),
		UniqueNameID: nameID,
		GeneratedAt:  in.when,
	}
	if err := s.repo.InsertEvent(ctx, tx, &ev); err != nil {
		return eventdomain.RecordedEvent{}, fmt.Errorf("insert event: %w", err)
	}

	traits := make([]eventdomain.Trait, 0, len(in.traits))
	for _, t := range in.traits {
		traitNameID, err := s.resolve(ctx, tx, t.name, resolved)
		if err != nil {
			return eventdomain.RecordedEvent{}, err
		}
		traits = append(traits, eventdomain.NewTraitRecord(s.genID.Generate(), traitNameID, ev.ID, t.value))
	}
	if err := s.repo.InsertTraits(ctx, tx, traits); err != nil {
		return eventdomain.RecordedEvent{}, fmt.Errorf("insert traits: %w", err)
	}

	return eventdomain.RecordedEvent{Event: ev, Traits: traits}, nil
}

func (s *Service) resolve(ctx context.Context, tx *gorm.DB, key string, resolved map[string]snowflake.ID) (snowflake.ID, error) {
	if id, ok := resolved[key]; ok {
		return id, nil
	}
	id, err := s.registry.ResolveOrCreate(ctx, tx, key)
	if err != nil {
		return 0, fmt.Errorf("resolve name %q: %w", key, err)
	}
	resolved[key] = id
	return id, nil
}

func (s *Service) fail(ctx context.Context, log *zap.Logger, reason string, err *eventdomain.BatchError, size int, started time.Time) {
	s.metrics.RecordBatchFailure(ctx, reason)
	s.prom.ObserveEventBatch(size, reason, time.Since(started))

	fields := []zap.Field{
		zap.String("reason", reason),
		zap.Ints("failed_indexes", err.Indexes()),
		zap.Error(err),
	}
	if reason == "validation" {
		log.Warn("event batch rejected", fields...)
		return
	}
	log.Error("event batch rolled back", fields...)
}

func (s *Service) MakeTrait(ctx context.Context, input eventdomain.TraitInput, eventID snowflake.ID) (*eventdomain.Trait, error) {
	t, err := validateTrait(input)
	if err != nil {
		return nil, err
	}
	nameID, err := s.registry.ResolveOrCreate(ctx, s.db, t.name)
	if err != nil {
		return nil, err
	}
	record := eventdomain.NewTraitRecord(s.genID.Generate(), nameID, eventID, t.value)
	return &record, nil
}

func (s *Service) GetEvents(ctx context.Context, filter eventdomain.EventFilter) ([]eventdomain.EventResponse, error) {
	if filter.Start != nil && filter.End != nil && filter.End.Before(*filter.Start) {
		return nil, eventdomain.ErrInvalidRange
	}

	query := eventdomain.EventQuery{Start: filter.Start, End: filter.End}
	if name := strings.TrimSpace(filter.Name); name != "" {
		id, ok, err := s.registry.Lookup(ctx, s.db, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return []eventdomain.EventResponse{}, nil
		}
		query.NameID = &id
	}

	rows, err := s.repo.ListEvents(ctx, s.db, query)
	if err != nil {
		return nil, pkgdb.Classify(err)
	}

	ids := make([]snowflake.ID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	traitRows, err := s.repo.ListTraits(ctx, s.db, ids)
	if err != nil {
		return nil, pkgdb.Classify(err)
	}

	byEvent := make(map[snowflake.ID][]eventdomain.TraitResponse, len(rows))
	for _, tr := range traitRows {
		value, err := tr.Trait.Decode()
		if err != nil {
			return nil, err
		}
		byEvent[tr.EventID] = append(byEvent[tr.EventID], eventdomain.TraitResponse{
			Name:  tr.TraitName,
			Type:  tr.Type,
			Value: value.Any(),
		})
	}

	resp := make([]eventdomain.EventResponse, 0, len(rows))
	for _, row := range rows {
		traits := byEvent[row.ID]
		if traits == nil {
			traits = []eventdomain.TraitResponse{}
		}
		resp = append(resp, eventdomain.EventResponse{
			ID:          row.ID.String(),
			Name:        row.Name,
			GeneratedAt: row.GeneratedAt.UTC(),
			Traits:      traits,
		})
	}
	return resp, nil
}

func validateBatch(inputs []eventdomain.EventInput) ([]validatedEvent, *eventdomain.BatchError) {
	out := make([]validatedEvent, 0, len(inputs))
	var entries []eventdomain.EntryError
	for i, in := range inputs {
		ev, err := validateEvent(in)
		if err != nil {
			entries = append(entries, eventdomain.EntryError{Index: i, Err: err})
			continue
		}
		out = append(out, ev)
	}
	if len(entries) > 0 {
		return nil, &eventdomain.BatchError{Entries: entries}
	}
	return out, nil
}

func validateEvent(in eventdomain.EventInput) (validatedEvent, error) {
	if err := validateName(in.Name, eventdomain.ErrInvalidEventName); err != nil {
		return validatedEvent{}, err
	}
	if in.When.IsZero() {
		return validatedEvent{}, eventdomain.ErrInvalidTimestamp
	}

	traits := make([]validatedTrait, 0, len(in.Traits))
	for j, t := range in.Traits {
		vt, err := validateTrait(t)
		if err != nil {
			return validatedEvent{}, fmt.Errorf("trait %d: %w", j, err)
		}
		traits = append(traits, vt)
	}
	return validatedEvent{name: in.Name, when: in.When.UTC(), traits: traits}, nil
}

func validateTrait(t eventdomain.TraitInput) (validatedTrait, error) {
	if err := validateName(t.Name, eventdomain.ErrInvalidTraitName); err != nil {
		return validatedTrait{}, err
	}
	value, err := eventdomain.ValueFromAny(t.Type, t.Value)
	if err != nil {
		return validatedTrait{}, err
	}
	return validatedTrait{name: t.Name, value: value}, nil
}

func validateName(name string, invalid error) error {
	if strings.TrimSpace(name) == "" {
		return invalid
	}
	if len([]rune(name)) > uniquenamedomain.MaxKeyLength {
		return fmt.Errorf("%w: longer than %d characters", invalid, uniquenamedomain.MaxKeyLength)
	}
	return nil
}

