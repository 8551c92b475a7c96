//go:build integration

package persistence

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tallyline/backend/internal/domain/ledger"
	"github.com/tallyline/backend/internal/domain/shared"
	"github.com/tallyline/backend/internal/infrastructure/migration"
	"github.com/tallyline/backend/migrations"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newPostgresDB starts a throwaway Postgres, applies the embedded migrations
// and returns a GORM handle on it.
func newPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("tally_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	sqlDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	m, err := migration.New(sqlDB, migration.Source{FS: migrations.FS}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	return db
}

func TestPostgres_InvoiceLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewGormInvoiceRepository(newPostgresDB(t))
	merchantID := uuid.New()

	inv := newTestInvoice(t, merchantID, "Tunde", 50000)
	require.NoError(t, repo.Create(ctx, inv))

	dup, err := ledger.NewInvoice(merchantID, inv.ShortCode, "Ada", "", decimal.NewFromInt(1), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Create(ctx, dup), ledger.ErrDuplicateShortCode)

	// concurrent writers on the same version: exactly one wins
	const writers = 5
	var wg sync.WaitGroup
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loaded, err := repo.FindByID(ctx, inv.ID)
			if err != nil {
				results <- err
				return
			}
			if _, err := loaded.ApplyPayment(decimal.NewFromInt(1000), ledger.PaymentMethodCash, time.Now(), ""); err != nil {
				results <- err
				return
			}
			results <- repo.SaveWithLock(ctx, loaded)
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)
	}
	assert.GreaterOrEqual(t, wins, 1)

	final, err := repo.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, final.Payments, wins)
	assert.Equal(t, 1+wins, final.Version)

	summary, err := repo.Summarize(ctx, merchantID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.OpenCount)
}
