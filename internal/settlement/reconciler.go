// Package settlement reconciles cash orders once the driver hands the
// business its share of the collected cash.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delivery_ledger/internal/domain"
	"delivery_ledger/internal/metrics"
	"delivery_ledger/internal/wallet"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Result describes a completed settlement.
type Result struct {
	OrderID        uint                `json:"order_id"`         // Order settled
	DriverID       uint                `json:"driver_id"`        // Driver whose debt was relieved
	AmountSettled  int64               `json:"amount_settled"`   // Business share of the cash, in centavos
	CashOwedBefore int64               `json:"cash_owed_before"` // Driver debt before settlement
	CashOwedAfter  int64               `json:"cash_owed_after"`  // Driver debt after settlement, never negative
	SettledAt      time.Time           `json:"settled_at"`       // When the business confirmed receipt
	Transaction    *domain.Transaction `json:"transaction"`      // cash_settlement ledger row
}

// Reconciler marks cash orders settled and relieves the driver's cash debt.
type Reconciler struct {
	db     *gorm.DB
	ledger *wallet.Ledger
	now    func() time.Time
	log    logrus.FieldLogger
}

// Option customises a Reconciler.
type Option func(*Reconciler)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Reconciler) { r.log = log }
}

// NewReconciler builds a Reconciler.
func NewReconciler(db *gorm.DB, ledger *wallet.Ledger, opts ...Option) *Reconciler {
	r := &Reconciler{db: db, ledger: ledger, now: time.Now, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Settle confirms that the business owned by businessOwnerID received its
// share of the cash for orderID. It marks the order settled and reduces the
// driver's cash debt by the business earnings, floored at zero. A second
// call for the same order fails with domain.ErrAlreadySettled.
func (r *Reconciler) Settle(ctx context.Context, orderID, businessOwnerID uint) (*Result, error) {
	const op = "settlement.Settle"
	var (
		res     *Result
		posting *wallet.Posting
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order domain.Order
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", orderID).
			Take(&order).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.E(domain.KindNotFound, op, "order %d not found", orderID)
		}
		if err != nil {
			return domain.Wrap(domain.KindInternal, op, err)
		}

		var business domain.Business
		err = tx.Where("id = ?", order.BusinessID).Take(&business).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.E(domain.KindNotFound, op, "business %d of order %d not found", order.BusinessID, orderID)
		}
		if err != nil {
			return domain.Wrap(domain.KindInternal, op, err)
		}
		if business.OwnerID != businessOwnerID {
			return domain.E(domain.KindForbidden, op, "order %d does not belong to your business", orderID)
		}

		if order.PaymentMethod != domain.PaymentCash {
			return domain.E(domain.KindValidation, op, "order %d was not paid in cash", orderID)
		}
		if order.Status != domain.OrderDelivered {
			return domain.E(domain.KindValidation, op, "order %d is %s, not delivered", orderID, order.Status)
		}
		if order.DriverID == nil {
			return domain.E(domain.KindValidation, op, "order %d has no driver", orderID)
		}
		if order.CashSettled {
			return fmt.Errorf("%s: order %d: %w", op, orderID, domain.ErrAlreadySettled)
		}

		// A settlement row without the flag still counts as settled.
		var guard int64
		err = tx.Model(&domain.Transaction{}).
			Where("order_id = ? AND type = ? AND status = ?", orderID, domain.TxCashSettlement, domain.TxStatusCompleted).
			Count(&guard).Error
		if err != nil {
			return domain.Wrap(domain.KindInternal, op, err)
		}
		if guard > 0 {
			return fmt.Errorf("%s: order %d: %w", op, orderID, domain.ErrAlreadySettled)
		}

		posting, err = r.ledger.Apply(tx, wallet.Entry{
			UserID:        *order.DriverID,
			Type:          domain.TxCashSettlement,
			CashOwedDelta: -order.BusinessEarnings,
			ClampCashOwed: true,
			OrderID:       &order.ID,
			Description:   fmt.Sprintf("Cash for order %d handed to business %d", order.ID, business.ID),
		})
		if err != nil {
			return err
		}

		settledAt := r.now().UTC()
		err = tx.Model(&domain.Order{}).
			Where("id = ?", order.ID).
			Updates(map[string]any{"cash_settled": true, "cash_settled_at": &settledAt}).Error
		if err != nil {
			return domain.Wrap(domain.KindInternal, op, err)
		}

		res = &Result{
			OrderID:        order.ID,
			DriverID:       *order.DriverID,
			AmountSettled:  order.BusinessEarnings,
			CashOwedBefore: posting.Wallet.CashOwed - posting.Transaction.CashOwedDelta,
			CashOwedAfter:  posting.Wallet.CashOwed,
			SettledAt:      settledAt,
			Transaction:    &posting.Transaction,
		}
		return nil
	})

	fields := logrus.Fields{"order_id": orderID, "business_owner_id": businessOwnerID}
	if err != nil {
		result := string(domain.KindOf(err))
		if errors.Is(err, domain.ErrAlreadySettled) {
			result = "already_settled"
		}
		metrics.RecordSettlement(result)
		fields["error"] = err.Error()
		r.log.WithFields(fields).Warn("Cash settlement rejected")
		return nil, err
	}

	r.ledger.Committed(ctx, posting)
	metrics.RecordSettlement("ok")
	fields["driver_id"] = res.DriverID
	fields["amount"] = res.AmountSettled
	fields["cash_owed_after"] = res.CashOwedAfter
	r.log.WithFields(fields).Info("Cash order settled")
	return res, nil
}
