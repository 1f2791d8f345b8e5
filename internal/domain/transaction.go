package domain

// TransactionType classifies a ledger row
type TransactionType string

// Ledger row types
const (
	TxOrderEarning    TransactionType = "order_earning"    // Business share of a card order
	TxDeliveryEarning TransactionType = "delivery_earning" // Driver share of a card order
	TxWithdrawal      TransactionType = "withdrawal"       // Payout to a bank account
	TxCashDebt        TransactionType = "cash_debt"        // Cash collected on delivery, owed onward
	TxCashSettlement  TransactionType = "cash_settlement"  // Business confirmed it received the cash
	TxCashRemittance  TransactionType = "cash_remittance"  // Cash debt paid out of the electronic balance
	TxAdjustment      TransactionType = "adjustment"       // Manual correction
	TxRefund          TransactionType = "refund"           // Money returned to the wallet
)

// TxStatusCompleted is the only status the ledger writes
const TxStatusCompleted = "completed"

// Valid reports whether t is a known ledger row type
func (t TransactionType) Valid() bool {
	switch t {
	case TxOrderEarning, TxDeliveryEarning, TxWithdrawal, TxCashDebt,
		TxCashSettlement, TxCashRemittance, TxAdjustment, TxRefund:
		return true
	}
	return false
}

// Earning reports whether a positive amount of this type counts towards TotalEarned
func (t TransactionType) Earning() bool {
	return t == TxOrderEarning || t == TxDeliveryEarning
}

// Transaction Model. Rows are append-only; Amount moves Balance and CashOwedDelta moves CashOwed.
type Transaction struct {
	ID            uint            `gorm:"primaryKey" json:"id"`                                                               // Primary key
	WalletID      uint            `gorm:"not null;index;uniqueIndex:idx_tx_wallet_order_type,priority:1" json:"wallet_id"`    // Foreign key to Wallet
	OrderID       *uint           `gorm:"uniqueIndex:idx_tx_wallet_order_type,priority:2" json:"order_id,omitempty"`          // Optional order reference
	Type          TransactionType `gorm:"size:32;not null;index;uniqueIndex:idx_tx_wallet_order_type,priority:3" json:"type"` // Transaction type
	Amount        int64           `gorm:"not null" json:"amount"`                                                             // Signed balance delta
	BalanceBefore int64           `gorm:"not null" json:"balance_before"`                                                     // Balance before this row
	BalanceAfter  int64           `gorm:"not null" json:"balance_after"`                                                      // Balance after this row
	CashOwedDelta int64           `gorm:"not null;default:0" json:"cash_owed_delta"`                                          // Signed cash debt delta
	CashOwedAfter int64           `gorm:"not null;default:0" json:"cash_owed_after"`                                          // Cash debt after this row
	Description   string          `gorm:"size:255" json:"description,omitempty"`                                              // Human readable note
	Status        string          `gorm:"size:16;not null;default:completed" json:"status"`                                   // Row status
	CreatedAt     int64           `gorm:"autoCreateTime:milli;index" json:"created_at"`                                       // Timestamp of creation in milliseconds
}
