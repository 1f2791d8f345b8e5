package domain

// Wallet Model. All amounts are integer centavos.
type Wallet struct {
	ID             uint  `gorm:"primaryKey" json:"id"`                      // Primary key
	UserID         uint  `gorm:"uniqueIndex" json:"user_id"`                // Foreign key to User
	Balance        int64 `gorm:"not null;default:0" json:"balance"`         // Spendable electronic balance
	PendingBalance int64 `gorm:"not null;default:0" json:"pending_balance"` // Funds not yet released
	CashOwed       int64 `gorm:"not null;default:0" json:"cash_owed"`       // Cash collected by a driver and not yet remitted
	TotalEarned    int64 `gorm:"not null;default:0" json:"total_earned"`    // Lifetime earnings credited
	TotalWithdrawn int64 `gorm:"not null;default:0" json:"total_withdrawn"` // Lifetime withdrawals debited
	CreatedAt      int64 `gorm:"autoCreateTime:milli" json:"created_at"`    // Timestamp of creation in milliseconds
	UpdatedAt      int64 `gorm:"autoUpdateTime:milli" json:"updated_at"`    // Timestamp of last change in milliseconds
}
