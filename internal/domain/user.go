package domain

import "time" // Block timestamps

// User roles recognised by the ledger
const (
	RoleUser     = "user"     // Plain customer
	RoleAdmin    = "admin"    // Admin tooling operator
	RoleDriver   = "driver"   // Delivery driver, may collect cash
	RoleBusiness = "business" // Business owner receiving order earnings
)

// User Model
type User struct {
	ID            uint       `gorm:"primaryKey" json:"id"`                                    // Primary key
	Username      string     `gorm:"unique;not null" json:"username"`                         // Unique username
	Role          string     `gorm:"default:user" json:"role"`                                // Role: user, admin, driver or business
	IsActive      bool       `gorm:"not null;default:true" json:"is_active"`                  // False once the account is blocked
	BlockedReason string     `gorm:"size:255" json:"blocked_reason,omitempty"`                // Why the account was deactivated
	BlockedAt     *time.Time `json:"blocked_at,omitempty"`                                    // When the account was deactivated
	Wallet        Wallet     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"-"` // One-to-one relationship with Wallet
}
