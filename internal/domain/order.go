package domain

import "time"

// Payment methods
const (
	PaymentCard = "card"
	PaymentCash = "cash"
)

// Order statuses
const (
	OrderPending   = "pending"
	OrderPreparing = "preparing"
	OrderOnTheWay  = "on_the_way"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
)

// Business is a merchant owned by a user with the business role.
type Business struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	OwnerID uint   `gorm:"not null;index" json:"owner_id"`
	Name    string `gorm:"size:128;not null" json:"name"`
}

// Order holds the monetary fields of an order. Placement lives elsewhere;
// the ledger fills in the split and settlement columns.
type Order struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	BusinessID       uint       `gorm:"not null;index" json:"business_id"`
	DriverID         *uint      `gorm:"index" json:"driver_id,omitempty"`
	Subtotal         int64      `gorm:"not null" json:"subtotal"`
	Tax              int64      `gorm:"not null;default:0" json:"tax"`
	DeliveryFee      int64      `gorm:"not null;default:0" json:"delivery_fee"`
	Total            int64      `gorm:"not null" json:"total"`
	ProductBase      int64      `gorm:"not null;default:0" json:"product_base"`
	PlatformFee      int64      `gorm:"not null;default:0" json:"platform_fee"`
	BusinessEarnings int64      `gorm:"not null;default:0" json:"business_earnings"`
	DeliveryEarnings int64      `gorm:"not null;default:0" json:"delivery_earnings"`
	PaymentMethod    string     `gorm:"size:16;not null" json:"payment_method"`
	CashSettled      bool       `gorm:"not null;default:false" json:"cash_settled"`
	CashSettledAt    *time.Time `json:"cash_settled_at,omitempty"`
	Status           string     `gorm:"size:16;not null;index" json:"status"`
	DeliveredAt      *time.Time `gorm:"index" json:"delivered_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Payment is a gateway payment record linked to an order.
type Payment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   uint      `gorm:"not null;index" json:"order_id"`
	Amount    int64     `gorm:"not null" json:"amount"`
	Status    string    `gorm:"size:16;not null" json:"status"`
	Provider  string    `gorm:"size:32" json:"provider"`
	CreatedAt time.Time `json:"created_at"`
}

// PaymentCompleted is the status of a captured payment
const PaymentCompleted = "completed"

// CommissionConfig is one saved set of commission rates; the newest row is active.
type CommissionConfig struct {
	ID        uint      `gorm:"primaryKey"`
	Platform  string    `gorm:"size:32;not null"`
	Business  string    `gorm:"size:32;not null"`
	Driver    string    `gorm:"size:32;not null"`
	UpdatedBy uint      `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"index"`
}
