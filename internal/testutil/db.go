// Package testutil opens throwaway databases for package tests.
package testutil

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/nestbill/internal/config"
	"github.com/smallbiznis/nestbill/internal/migration"
	"github.com/smallbiznis/nestbill/internal/seed"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// OpenDB returns an in-memory sqlite database private to t, migrated and
// seeded with the default tax rates and plans. It holds a single connection,
// so transactions from concurrent goroutines run one after another.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:" + unsafeName.ReplaceAllString(t.Name(), "_") + "?mode=memory&cache=shared"
	return open(t, dsn, 1)
}

// OpenFileDB returns a WAL-mode sqlite file under t.TempDir() with conns
// pooled connections. Writers queue on the database lock through
// busy_timeout, so transactions from separate goroutines really overlap.
func OpenFileDB(t testing.TB, conns int) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nestbill.db")
	return open(t, path+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", conns)
}

func open(t testing.TB, dsn string, conns int) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(conns)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.AutoMigrate(db))

	ctx := context.Background()
	require.NoError(t, seed.EnsureTaxRates(ctx, db))
	require.NoError(t, seed.EnsurePlans(ctx, db, nil))
	return db
}

// StaticPolicy returns a policy holder with the default billing policy.
func StaticPolicy() *config.BillingPolicyHolder {
	return config.NewStaticBillingPolicyHolder(config.DefaultBillingPolicy())
}
