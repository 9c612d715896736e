package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/telemetry/internal/clock"
	meteringdomain "github.com/smallbiznis/telemetry/internal/metering/domain"
	"github.com/smallbiznis/telemetry/internal/migration"
	obslogger "github.com/smallbiznis/telemetry/internal/observability/logger"
	"github.com/smallbiznis/telemetry/internal/observability/metrics"
	uniquenamedomain "github.com/smallbiznis/telemetry/internal/uniquename/domain"
	pkgdb "github.com/smallbiznis/telemetry/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     meteringdomain.Repository
	Registry uniquenamedomain.Registry
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     meteringdomain.Repository
	registry uniquenamedomain.Registry
	metrics  *metrics.Metrics
}

func New(p Params) meteringdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("metering.service"),
		genID:    p.GenID,
		clock:    c,
		repo:     p.Repo,
		registry: p.Registry,
		metrics:  p.Metrics,
	}
}

func (s *Service) RecordMeteringData(ctx context.Context, sample meteringdomain.Sample) (*meteringdomain.Meter, error) {
	counterName := strings.TrimSpace(sample.CounterName)
	if counterName == "" {
		return nil, meteringdomain.ErrInvalidCounterName
	}
	resourceID := strings.TrimSpace(sample.ResourceID)
	if resourceID == "" {
		return nil, meteringdomain.ErrInvalidResource
	}

	timestamp := sample.Timestamp
	if timestamp.IsZero() {
		timestamp = s.clock.Now()
	}
	messageID := strings.TrimSpace(sample.MessageID)
	if messageID == "" {
		messageID = uuid.NewString()
	}

	source := strings.TrimSpace(sample.Source)
	userID := optional(sample.UserID)
	projectID := optional(sample.ProjectID)

	meter := &meteringdomain.Meter{
		ID:               s.genID.Generate(),
		CounterName:      counterName,
		CounterType:      strings.TrimSpace(sample.CounterType),
		CounterUnit:      strings.TrimSpace(sample.CounterUnit),
		CounterVolume:    sample.CounterVolume,
		UserID:           userID,
		ProjectID:        projectID,
		ResourceID:       resourceID,
		ResourceMetadata: sample.ResourceMetadata,
		Timestamp:        timestamp.UTC(),
		MessageSignature: sample.MessageSignature,
		MessageID:        messageID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if source != "" {
			if err := s.repo.EnsureSource(ctx, tx, source); err != nil {
				return fmt.Errorf("ensure source: %w", err)
			}
		}
		if userID != nil {
			if err := s.repo.EnsureUser(ctx, tx, *userID); err != nil {
				return fmt.Errorf("ensure user: %w", err)
			}
			if err := s.link(ctx, tx, source, meteringdomain.SourceAssoc{UserID: userID}); err != nil {
				return err
			}
		}
		if projectID != nil {
			if err := s.repo.EnsureProject(ctx, tx, *projectID); err != nil {
				return fmt.Errorf("ensure project: %w", err)
			}
			if err := s.link(ctx, tx, source, meteringdomain.SourceAssoc{ProjectID: projectID}); err != nil {
				return err
			}
		}

		resource := &meteringdomain.Resource{
			ID:               resourceID,
			UserID:           userID,
			ProjectID:        projectID,
			ResourceMetadata: sample.ResourceMetadata,
		}
		if err := s.repo.UpsertResource(ctx, tx, resource); err != nil {
			return fmt.Errorf("upsert resource: %w", err)
		}
		if err := s.link(ctx, tx, source, meteringdomain.SourceAssoc{ResourceID: &resourceID}); err != nil {
			return err
		}

		if err := s.repo.InsertMeter(ctx, tx, meter); err != nil {
			return fmt.Errorf("insert meter: %w", err)
		}
		meterID := meter.ID
		return s.link(ctx, tx, source, meteringdomain.SourceAssoc{MeterID: &meterID})
	})
	if err != nil {
		err = pkgdb.Classify(err)
		obslogger.WithContext(ctx, s.log).Error("record metering data failed",
			zap.String("counter_name", counterName),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.RecordSample(ctx, meter.CounterType)
	return meter, nil
}

func (s *Service) link(ctx context.Context, tx *gorm.DB, source string, assoc meteringdomain.SourceAssoc) error {
	if source == "" {
		return nil
	}
	assoc.SourceID = source
	if err := s.repo.LinkSource(ctx, tx, assoc); err != nil {
		return fmt.Errorf("link source: %w", err)
	}
	return nil
}

func (s *Service) GetUsers(ctx context.Context, source string) ([]string, error) {
	ids, err := s.repo.ListUserIDs(ctx, s.db, strings.TrimSpace(source))
	if err != nil {
		return nil, pkgdb.Classify(err)
	}
	return nonNil(ids), nil
}

func (s *Service) GetProjects(ctx context.Context, source string) ([]string, error) {
	ids, err := s.repo.ListProjectIDs(ctx, s.db, strings.TrimSpace(source))
	if err != nil {
		return nil, pkgdb.Classify(err)
	}
	return nonNil(ids), nil
}

// GetResources returns the resources that have samples matching filter,
// each with the metadata of its newest matching sample.
func (s *Service) GetResources(ctx context.Context, filter meteringdomain.ResourceFilter) ([]meteringdomain.ResourceResponse, error) {
	if len(filter.MetaQuery) > 0 {
		return nil, meteringdomain.ErrMetaQueryUnsupported
	}
	if filter.Start != nil && filter.End != nil && filter.End.Before(*filter.Start) {
		return nil, meteringdomain.ErrInvalidRange
	}

	rows, err := s.repo.ListMeters(ctx, s.db, meteringdomain.MeterQuery{
		EntityQuery: meteringdomain.EntityQuery{
			User:     filter.User,
			Project:  filter.Project,
			Resource: filter.Resource,
			Source:   filter.Source,
		},
		Start:  filter.Start,
		End:    filter.End,
		Newest: true,
	})
	if err != nil {
		return nil, pkgdb.Classify(err)
	}

	seen := make(map[string]bool)
	resp := make([]meteringdomain.ResourceResponse, 0)
	for _, row := range rows {
		if seen[row.ResourceID] {
			continue
		}
		seen[row.ResourceID] = true
		resp = append(resp, meteringdomain.ResourceResponse{
			ResourceID: row.ResourceID,
			ProjectID:  deref(row.ProjectID),
			UserID:     deref(row.UserID),
			Metadata:   row.ResourceMetadata,
			Meters:     []meteringdomain.ResourceMeter{},
		})
	}

	ids := make([]string, 0, len(resp))
	for _, r := range resp {
		ids = append(ids, r.ResourceID)
	}
	counters, err := s.repo.ListCounters(ctx, s.db, ids)
	if err != nil {
		return nil, pkgdb.Classify(err)
	}
	index := make(map[string]int, len(resp))
	for i, r := range resp {
		index[r.ResourceID] = i
	}
	for _, c := range counters {
		i := index[c.ResourceID]
		resp[i].Meters = append(resp[i].Meters, meteringdomain.ResourceMeter{
			CounterName: c.CounterName,
			CounterType: c.CounterType,
			CounterUnit: c.CounterUnit,
		})
	}
	return resp, nil
}

// GetMeters lists each distinct counter name once per resource.
func (s *Service) GetMeters(ctx context.Context, filter meteringdomain.MeterFilter) ([]meteringdomain.MeterResponse, error) {
	if len(filter.MetaQuery) > 0 {
		return nil, meteringdomain.ErrMetaQueryUnsupported
	}

	resources, err := s.repo.ListResources(ctx, s.db, meteringdomain.EntityQuery{
		User:     filter.User,
		Project:  filter.Project,
		Resource: filter.Resource,
		Source:   filter.Source,
	})
	if err != nil {
		return nil, pkgdb.Classify(err)
	}

	ids := make([]string, 0, len(resources))
	byID := make(map[string]meteringdomain.Resource, len(resources))
	for _, r := range resources {
		ids = append(ids, r.ID)
		byID[r.ID] = r
	}
	counters, err := s.repo.ListCounters(ctx, s.db, ids)
	if err != nil {
		return nil, pkgdb.Classify(err)
	}

	seen := make(map[[2]string]bool)
	resp := make([]meteringdomain.MeterResponse, 0, len(counters))
	for _, c := range counters {
		key := [2]string{c.ResourceID, c.CounterName}
		if seen[key] {
			continue
		}
		seen[key] = true
		res := byID[c.ResourceID]
		resp = append(resp, meteringdomain.MeterResponse{
			Name:       c.CounterName,
			Type:       c.CounterType,
			Unit:       c.CounterUnit,
			ResourceID: res.ID,
			ProjectID:  deref(res.ProjectID),
			UserID:     deref(res.UserID),
		})
	}
	return resp, nil
}

func (s *Service) GetSamples(ctx context.Context, filter meteringdomain.SampleFilter) ([]meteringdomain.Sample, error) {
	if len(filter.MetaQuery) > 0 {
		return nil, meteringdomain.ErrMetaQueryUnsupported
	}
	if filter.Start != nil && filter.End != nil && filter.End.Before(*filter.Start) {
		return nil, meteringdomain.ErrInvalidRange
	}

	rows, err := s.repo.ListMeters(ctx, s.db, meteringdomain.MeterQuery{
		EntityQuery: meteringdomain.EntityQuery{
			User:     filter.User,
			Project:  filter.Project,
			Resource: filter.Resource,
			Source:   filter.Source,
		},
		Meter: filter.Meter,
		Start: filter.Start,
		End:   filter.End,
	})
	if err != nil {
		return nil, pkgdb.Classify(err)
	}

	samples := make([]meteringdomain.Sample, 0, len(rows))
	for _, row := range rows {
		samples = append(samples, meteringdomain.Sample{
			Source:           row.Source,
			CounterName:      row.CounterName,
			CounterType:      row.CounterType,
			CounterUnit:      row.CounterUnit,
			CounterVolume:    row.CounterVolume,
			UserID:           deref(row.UserID),
			ProjectID:        deref(row.ProjectID),
			ResourceID:       row.ResourceID,
			Timestamp:        row.Timestamp.UTC(),
			ResourceMetadata: row.ResourceMetadata,
			MessageID:        row.MessageID,
			MessageSignature: row.MessageSignature,
		})
	}
	return samples, nil
}

func (s *Service) Clear(ctx context.Context) error {
	if err := migration.Clear(ctx, s.db); err != nil {
		return err
	}
	// Cached ids now point at deleted unique_names rows.
	if s.registry != nil {
		if err := s.registry.Forget(ctx); err != nil {
			return err
		}
	}
	obslogger.WithContext(ctx, s.log).Warn("storage cleared")
	return nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
