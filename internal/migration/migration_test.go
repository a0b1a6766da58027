package migration

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/orderfeed/internal/docstore"
	"github.com/smallbiznis/orderfeed/internal/order/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestSource_ListsVersions(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	next, err := src.Next(first)
	require.NoError(t, err)
	assert.Equal(t, uint(2), next)
}

func TestRun_AutoMigratesSQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, Run(db))

	assert.True(t, db.Migrator().HasTable(&docstore.ProfileDocument{}))
	assert.True(t, db.Migrator().HasTable(&docstore.OrderDocument{}))
	assert.True(t, db.Migrator().HasTable(&cache.CacheEntry{}))
}

func TestRun_RequiresHandle(t *testing.T) {
	assert.Error(t, Run(nil))
	assert.Error(t, RunMigrations(nil))
}
