// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/pointpay/internal/database"
	"github.com/example/pointpay/internal/models"
)

var dsnReplacer = strings.NewReplacer("/", "_", " ", "_", "#", "_")

// NewDB opens a migrated in-memory sqlite database private to the test.
// A single connection keeps the shared-cache database alive and serializes
// writers the same way row locks do on a server database.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", dsnReplacer.Replace(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// CreateUser inserts a user with the given balance.
func CreateUser(t *testing.T, db *gorm.DB, username string, points int64) *models.User {
	t.Helper()

	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Points:   points,
		Status:   models.UserStatusActive,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreatePendingOrder inserts a pending order for the user.
func CreatePendingOrder(t *testing.T, db *gorm.DB, user *models.User, orderID, amount string, points int64) *models.Order {
	t.Helper()

	order := &models.Order{
		OrderID:       orderID,
		UserID:        user.ID,
		Amount:        decimal.RequireFromString(amount),
		Points:        points,
		Status:        models.OrderStatusPending,
		PaymentMethod: models.PaymentMethodAlipay,
		PaymentType:   models.PaymentTypeWeb,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}
