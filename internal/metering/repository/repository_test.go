package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	meteringdomain "github.com/smallbiznis/telemetry/internal/metering/domain"
	"github.com/smallbiznis/telemetry/internal/migration"
	pkgdb "github.com/smallbiznis/telemetry/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.AutoMigrate(db, pkgdb.BackendSQLite, pkgdb.DefaultBackends("")))
	return db
}

func seedResource(t *testing.T, db *gorm.DB, r meteringdomain.Repository, source, user, id string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, r.EnsureSource(ctx, db, source))
	require.NoError(t, r.EnsureUser(ctx, db, user))
	require.NoError(t, r.UpsertResource(ctx, db, &meteringdomain.Resource{
		ID:               id,
		UserID:           &user,
		ResourceMetadata: meteringdomain.Metadata{"name": id},
	}))
	require.NoError(t, r.LinkSource(ctx, db, meteringdomain.SourceAssoc{SourceID: source, ResourceID: &id}))
	require.NoError(t, r.LinkSource(ctx, db, meteringdomain.SourceAssoc{SourceID: source, UserID: &user}))
}

func TestLinkSourceIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	r := Provide()
	seedResource(t, db, r, "src", "alice", "vm-1")
	seedResource(t, db, r, "src", "alice", "vm-1")

	var n int64
	require.NoError(t, db.Model(&meteringdomain.SourceAssoc{}).Count(&n).Error)
	assert.Equal(t, int64(2), n, "one link for the resource and one for the user")
}

func TestLinkSourceWithoutTarget(t *testing.T) {
	db := setupTestDB(t)
	err := Provide().LinkSource(context.Background(), db, meteringdomain.SourceAssoc{SourceID: "src"})
	assert.Error(t, err)
}

func TestListResourcesFilters(t *testing.T) {
	db := setupTestDB(t)
	r := Provide()
	ctx := context.Background()
	seedResource(t, db, r, "src-b", "bob", "vm-2")
	seedResource(t, db, r, "src-a", "alice", "vm-1")
	seedResource(t, db, r, "src-a", "bob", "vm-3")

	ids := func(q meteringdomain.EntityQuery) []string {
		t.Helper()
		found, err := r.ListResources(ctx, db, q)
		require.NoError(t, err)
		out := make([]string, 0, len(found))
		for _, res := range found {
			out = append(out, res.ID)
		}
		return out
	}

	assert.Equal(t, []string{"vm-1", "vm-2", "vm-3"}, ids(meteringdomain.EntityQuery{}))
	assert.Equal(t, []string{"vm-2", "vm-3"}, ids(meteringdomain.EntityQuery{User: "bob"}))
	assert.Equal(t, []string{"vm-1", "vm-3"}, ids(meteringdomain.EntityQuery{Source: "src-a"}))
	assert.Equal(t, []string{"vm-3"}, ids(meteringdomain.EntityQuery{User: "bob", Source: "src-a"}))
	assert.Equal(t, []string{"vm-2"}, ids(meteringdomain.EntityQuery{Resource: "vm-2"}))
	assert.Empty(t, ids(meteringdomain.EntityQuery{Project: "nobody"}))
}
