// Package testdb opens throwaway in-memory databases for package tests.
package testdb

import (
	"testing"
	"time"

	"delivery_ledger/internal/db"
	"delivery_ledger/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a migrated in-memory SQLite database private to the test.
// A single connection is used so transactions serialize the way row locks would.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

// CreateUser inserts an active user with the given role.
func CreateUser(t *testing.T, conn *gorm.DB, username, role string) *domain.User {
	t.Helper()
	u := &domain.User{Username: username, Role: role, IsActive: true}
	if err := conn.Create(u).Error; err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}

// CreateBusiness inserts a business owned by ownerID.
func CreateBusiness(t *testing.T, conn *gorm.DB, ownerID uint, name string) *domain.Business {
	t.Helper()
	b := &domain.Business{OwnerID: ownerID, Name: name}
	if err := conn.Create(b).Error; err != nil {
		t.Fatalf("create business %s: %v", name, err)
	}
	return b
}

// CreateOrder inserts o as given.
func CreateOrder(t *testing.T, conn *gorm.DB, o *domain.Order) *domain.Order {
	t.Helper()
	if err := conn.Create(o).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

// DeliveredCashOrder inserts a delivered, unsettled cash order with a consistent split.
func DeliveredCashOrder(t *testing.T, conn *gorm.DB, businessID, driverID uint, deliveredAt time.Time) *domain.Order {
	t.Helper()
	return CreateOrder(t, conn, &domain.Order{
		BusinessID:       businessID,
		DriverID:         &driverID,
		Subtotal:         9775,
		DeliveryFee:      2500,
		Total:            12275,
		ProductBase:      8500,
		PlatformFee:      1275,
		BusinessEarnings: 8500,
		DeliveryEarnings: 2500,
		PaymentMethod:    domain.PaymentCash,
		Status:           domain.OrderDelivered,
		DeliveredAt:      &deliveredAt,
	})
}

// Wallet reloads the wallet of userID straight from the database.
func Wallet(t *testing.T, conn *gorm.DB, userID uint) domain.Wallet {
	t.Helper()
	var w domain.Wallet
	if err := conn.Where("user_id = ?", userID).First(&w).Error; err != nil {
		t.Fatalf("load wallet of user %d: %v", userID, err)
	}
	return w
}

// Transactions returns the ledger rows of userID's wallet in chronological order.
func Transactions(t *testing.T, conn *gorm.DB, userID uint) []domain.Transaction {
	t.Helper()
	var txs []domain.Transaction
	err := conn.Joins("JOIN wallets ON wallets.id = transactions.wallet_id").
		Where("wallets.user_id = ?", userID).
		Order("transactions.created_at, transactions.id").
		Find(&txs).Error
	if err != nil {
		t.Fatalf("load transactions of user %d: %v", userID, err)
	}
	return txs
}
