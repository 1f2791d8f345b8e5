package db

import (
	"delivery_ledger/internal/domain" // Importing domain models

	"gorm.io/driver/mysql" // MySQL driver for GORM
	"gorm.io/gorm"         // GORM ORM library
)

// Models lists every table owned by the ledger, in dependency order
func Models() []any {
	return []any{
		&domain.User{},             // Users and their block state
		&domain.Wallet{},           // One wallet per user
		&domain.Transaction{},      // Append-only ledger rows
		&domain.Business{},         // Businesses owned by users
		&domain.Order{},            // Orders with their split columns
		&domain.Payment{},          // Gateway payment records
		&domain.CommissionConfig{}, // Commission rate history
	}
}

// Open connects to MySQL with error translation enabled so duplicate keys surface as gorm.ErrDuplicatedKey
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true})
}

// Migrate performs automatic migration for the database schema
func Migrate(conn *gorm.DB) error {
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	return conn.AutoMigrate(Models()...)
}
