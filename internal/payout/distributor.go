// Package payout completes deliveries: it fixes the commission split of an
// order and distributes the money in the same transaction that marks the
// order delivered.
package payout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"delivery_ledger/internal/cashdebt"
	"delivery_ledger/internal/commission"
	"delivery_ledger/internal/domain"
	"delivery_ledger/internal/metrics"
	"delivery_ledger/internal/wallet"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Result describes a completed delivery.
type Result struct {
	OrderID       uint                 `json:"order_id"`       // Order delivered
	PaymentMethod string               `json:"payment_method"` // card or cash
	Split         commission.Split     `json:"split"`          // Commission split fixed at delivery
	DeliveredAt   time.Time            `json:"delivered_at"`   // Delivery timestamp
	Transactions  []domain.Transaction `json:"transactions"`   // Ledger rows written for the payout
}

// Distributor completes deliveries.
type Distributor struct {
	db     *gorm.DB
	rates  commission.RateProvider
	ledger *wallet.Ledger
	cash   *cashdebt.Tracker
	now    func() time.Time
	log    logrus.FieldLogger
}

// Option customises a Distributor.
type Option func(*Distributor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Distributor) { d.now = now }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(d *Distributor) { d.log = log }
}

// NewDistributor builds a Distributor.
func NewDistributor(db *gorm.DB, rates commission.RateProvider, ledger *wallet.Ledger, cash *cashdebt.Tracker, opts ...Option) *Distributor {
	d := &Distributor{db: db, rates: rates, ledger: ledger, cash: cash, now: time.Now, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CompleteDelivery marks orderID delivered by driverID and pays it out. Card
// orders credit the business owner and the driver. On cash orders the driver
// already holds the money, so the business and platform shares become the
// driver's cash debt. Any failure leaves the order undelivered.
func (d *Distributor) CompleteDelivery(ctx context.Context, orderID, driverID uint) (*Result, error) {
	const op = "payout.CompleteDelivery"

	// Rates are read before the transaction opens; the store may query the database.
	rates, err := d.rates.Get(ctx)
	if err != nil {
		return nil, err
	}

	var (
		res      *Result
		postings []*wallet.Posting
		method   = "unknown"
	)
	err = d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
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
		method = order.PaymentMethod

		if order.DriverID == nil || *order.DriverID != driverID {
			return domain.E(domain.KindForbidden, op, "order %d is not assigned to driver %d", orderID, driverID)
		}
		switch order.Status {
		case domain.OrderDelivered, domain.OrderCancelled:
			return domain.E(domain.KindConflict, op, "order %d is already %s", orderID, order.Status)
		}
		if order.PaymentMethod != domain.PaymentCard && order.PaymentMethod != domain.PaymentCash {
			return domain.E(domain.KindValidation, op, "order %d has unknown payment method %q", orderID, order.PaymentMethod)
		}

		in := commission.Input{Total: order.Total, DeliveryFee: order.DeliveryFee}
		if order.ProductBase > 0 {
			in.ProductBase = &order.ProductBase
		}
		if order.PlatformFee > 0 {
			in.PlatformFee = &order.PlatformFee
		}
		split, err := commission.Calculate(in, rates.Platform)
		if err != nil {
			return err
		}

		deliveredAt := d.now().UTC()
		err = tx.Model(&domain.Order{}).
			Where("id = ?", order.ID).
			Updates(map[string]any{
				"product_base":      split.ProductBase,
				"platform_fee":      split.Platform,
				"business_earnings": split.Business,
				"delivery_earnings": split.Driver,
				"status":            domain.OrderDelivered,
				"delivered_at":      &deliveredAt,
			}).Error
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

		if order.PaymentMethod == domain.PaymentCard {
			postings, err = d.payCard(tx, order.ID, business, driverID, split)
		} else {
			postings, err = d.payCash(tx, order.ID, driverID, split)
		}
		if err != nil {
			return err
		}

		res = &Result{
			OrderID:       order.ID,
			PaymentMethod: order.PaymentMethod,
			Split:         split,
			DeliveredAt:   deliveredAt,
		}
		for _, p := range postings {
			res.Transactions = append(res.Transactions, p.Transaction)
		}
		return nil
	})

	fields := logrus.Fields{"order_id": orderID, "driver_id": driverID, "payment_method": method}
	if err != nil {
		metrics.RecordDelivery(method, string(domain.KindOf(err)))
		fields["error"] = err.Error()
		if domain.KindOf(err) == domain.KindInternal {
			d.log.WithFields(fields).Error("Delivery payout failed")
		} else {
			d.log.WithFields(fields).Warn("Delivery rejected")
		}
		return nil, err
	}

	d.ledger.Committed(ctx, postings...)
	metrics.RecordDelivery(method, "ok")
	fields["platform_fee"] = res.Split.Platform
	fields["business_earnings"] = res.Split.Business
	fields["delivery_earnings"] = res.Split.Driver
	d.log.WithFields(fields).Info("Order delivered")
	return res, nil
}

func (d *Distributor) payCard(tx *gorm.DB, orderID uint, business domain.Business, driverID uint, split commission.Split) ([]*wallet.Posting, error) {
	var postings []*wallet.Posting
	if split.Business > 0 {
		p, err := d.ledger.Apply(tx, wallet.Entry{
			UserID:      business.OwnerID,
			Type:        domain.TxOrderEarning,
			Amount:      split.Business,
			OrderID:     &orderID,
			Description: fmt.Sprintf("Earnings for order %d at %s", orderID, business.Name),
		})
		if err != nil {
			return nil, err
		}
		postings = append(postings, p)
	}
	if split.Driver > 0 {
		p, err := d.ledger.Apply(tx, wallet.Entry{
			UserID:      driverID,
			Type:        domain.TxDeliveryEarning,
			Amount:      split.Driver,
			OrderID:     &orderID,
			Description: fmt.Sprintf("Delivery fee for order %d", orderID),
		})
		if err != nil {
			return nil, err
		}
		postings = append(postings, p)
	}
	return postings, nil
}

func (d *Distributor) payCash(tx *gorm.DB, orderID, driverID uint, split commission.Split) ([]*wallet.Posting, error) {
	owed := split.Business + split.Platform
	if owed == 0 {
		return nil, nil
	}
	p, err := d.cash.UpdateCashOwedTx(tx, driverID, owed, orderID)
	if err != nil {
		return nil, err
	}
	return []*wallet.Posting{p}, nil
}
