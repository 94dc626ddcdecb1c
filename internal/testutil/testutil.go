// Package testutil opens throwaway sqlite and redis backends for package
// tests.
package testutil

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/crm-campaigns/pkg/pg"
	"github.com/nimasrn/crm-campaigns/pkg/redis"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB returns an in-memory sqlite database migrated with migrate. The
// pool is pinned to one connection because every connection to :memory:
// sees its own database.
func OpenDB(t *testing.T, migrate func(*gorm.DB) error) *pg.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if migrate != nil {
		require.NoError(t, migrate(db))
	}
	return pg.New(db, db)
}

// OpenRedis starts a miniredis server and an adapter pointing at it.
func OpenRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	t.Helper()

	mr := miniredis.RunT(t)
	adapter, err := redis.NewRedisAdapter("test:", &redis.Options{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Client().Close() })
	return mr, adapter
}
