package persistence

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/tallyline/backend/internal/domain/ledger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newSQLiteDB opens a private in-memory database with the schema applied
func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return db
}

func newTestInvoice(t *testing.T, merchantID uuid.UUID, customer string, total int64) *ledger.Invoice {
	t.Helper()
	code, err := ledger.GenerateShortCode()
	require.NoError(t, err)
	inv, err := ledger.NewInvoice(merchantID, code, customer, "goods", decimal.NewFromInt(total), nil)
	require.NoError(t, err)
	inv.ClearDomainEvents()
	return inv
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
