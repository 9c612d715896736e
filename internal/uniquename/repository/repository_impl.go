package repository

import (
	"context"
	"errors"

	uniquenamedomain "github.com/smallbiznis/telemetry/internal/uniquename/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() uniquenamedomain.Repository {
	return &repo{}
}

func (r *repo) InsertIgnore(ctx context.Context, db *gorm.DB, name *uniquenamedomain.UniqueName) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).
		Create(name)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByKey(ctx context.Context, db *gorm.DB, key string) (*uniquenamedomain.UniqueName, error) {
	return r.find(db.WithContext(ctx), key)
}

func (r *repo) FindCommitted(ctx context.Context, db *gorm.DB, key string) (*uniquenamedomain.UniqueName, error) {
	stmt := db.WithContext(ctx)
	if db.Dialector != nil && db.Dialector.Name() == "mysql" {
		stmt = stmt.Clauses(clause.Locking{Strength: "SHARE"})
	}
	return r.find(stmt, key)
}

func (r *repo) find(stmt *gorm.DB, key string) (*uniquenamedomain.UniqueName, error) {
	var name uniquenamedomain.UniqueName
	err := stmt.Where(&uniquenamedomain.UniqueName{Key: key}).Take(&name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &name, nil
}
