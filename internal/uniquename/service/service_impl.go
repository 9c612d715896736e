package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/telemetry/internal/cache"
	"github.com/smallbiznis/telemetry/internal/observability/metrics"
	uniquenamedomain "github.com/smallbiznis/telemetry/internal/uniquename/domain"
	pkgdb "github.com/smallbiznis/telemetry/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    uniquenamedomain.Repository
	Cache   cache.NameCache  `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	genID   *snowflake.Node
	repo    uniquenamedomain.Repository
	cache   cache.NameCache
	metrics *metrics.Metrics
}

func New(p Params) uniquenamedomain.Registry {
	return &Service{
		log:     p.Log.Named("uniquename.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		cache:   p.Cache,
		metrics: p.Metrics,
	}
}

func (s *Service) ResolveOrCreate(ctx context.Context, db *gorm.DB, key string) (snowflake.ID, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}

	// Rows written inside an open transaction may still roll back, so the
	// cache only learns about them through Remember.
	inTx := inTransaction(db)

	if id, ok := s.cached(ctx, key); ok {
		return id, nil
	}

	existing, err := s.repo.FindByKey(ctx, db, key)
	if err != nil {
		return 0, pkgdb.Classify(fmt.Errorf("find unique name: %w", err))
	}
	if existing != nil {
		if !inTx {
			s.remember(ctx, key, existing.ID)
		}
		return existing.ID, nil
	}

	candidate := &uniquenamedomain.UniqueName{ID: s.genID.Generate(), Key: key}

	// A nested transaction is a savepoint when db is already a transaction,
	// so a failed insert does not poison the caller's transaction.
	var inserted bool
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.InsertIgnore(ctx, tx, candidate)
		inserted = ok
		return err
	})
	if err != nil && !pkgdb.IsDuplicateKeyErr(err) {
		return 0, pkgdb.Classify(fmt.Errorf("insert unique name: %w", err))
	}
	if inserted {
		s.metrics.RecordNameCreated(ctx)
		s.log.Debug("unique name created",
			zap.String("key", key),
			zap.String("id", candidate.ID.String()),
		)
		if !inTx {
			s.remember(ctx, key, candidate.ID)
		}
		return candidate.ID, nil
	}

	// Lost the race: another writer committed the key first.
	winner, err := s.repo.FindCommitted(ctx, db, key)
	if err != nil {
		return 0, pkgdb.Classify(fmt.Errorf("reread unique name: %w", err))
	}
	if winner == nil {
		return 0, fmt.Errorf("%w: %q", uniquenamedomain.ErrNameConflict, key)
	}
	if !inTx {
		s.remember(ctx, key, winner.ID)
	}
	return winner.ID, nil
}

func (s *Service) Lookup(ctx context.Context, db *gorm.DB, key string) (snowflake.ID, bool, error) {
	if err := validateKey(key); err != nil {
		return 0, false, err
	}
	if id, ok := s.cached(ctx, key); ok {
		return id, true, nil
	}
	existing, err := s.repo.FindByKey(ctx, db, key)
	if err != nil {
		return 0, false, pkgdb.Classify(fmt.Errorf("find unique name: %w", err))
	}
	if existing == nil {
		return 0, false, nil
	}
	if !inTransaction(db) {
		s.remember(ctx, key, existing.ID)
	}
	return existing.ID, true, nil
}

func (s *Service) Remember(ctx context.Context, names map[string]snowflake.ID) {
	for key, id := range names {
		s.remember(ctx, key, id)
	}
}

func (s *Service) Forget(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Purge(ctx); err != nil {
		return fmt.Errorf("purge unique name cache: %w", err)
	}
	return nil
}

func (s *Service) cached(ctx context.Context, key string) (snowflake.ID, bool) {
	if s.cache == nil {
		return 0, false
	}
	return s.cache.Get(ctx, key)
}

func (s *Service) remember(ctx context.Context, key string, id snowflake.ID) {
	if s.cache == nil || id == 0 {
		return
	}
	s.cache.Set(ctx, key, id)
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return uniquenamedomain.ErrInvalidKey
	}
	if utf8.RuneCountInString(key) > uniquenamedomain.MaxKeyLength {
		return fmt.Errorf("%w: longer than %d characters", uniquenamedomain.ErrInvalidKey, uniquenamedomain.MaxKeyLength)
	}
	return nil
}

func inTransaction(db *gorm.DB) bool {
	if db == nil || db.Statement == nil {
		return false
	}
	committer, ok := db.Statement.ConnPool.(gorm.TxCommitter)
	return ok && committer != nil
}
