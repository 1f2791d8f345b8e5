// Package cashdebt tracks cash that drivers collect on delivery and still owe
// onward, and decides whether a driver may take more cash orders.
package cashdebt

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
)

// Policy holds the cash debt thresholds.
type Policy struct {
	MaxCashOwed    int64 // centavos; at or above this no cash orders are accepted
	WarnAfterDays  int   // pending days before a warning
	BlockAfterDays int   // pending days after which the account is deactivated
}

// DefaultPolicy is 500 MXN, warn at 5 days, block past 7.
func DefaultPolicy() Policy {
	return Policy{MaxCashOwed: 50000, WarnAfterDays: 5, BlockAfterDays: 7}
}

// Decision is the answer to CanAcceptCashOrder.
type Decision struct {
	Allowed     bool   `json:"allowed"`          // Cash orders may be assigned
	Reason      string `json:"reason,omitempty"` // Why not, when refused
	CashOwed    int64  `json:"cash_owed"`        // Centavos outstanding
	Overdue     bool   `json:"overdue"`          // Debt pending past BlockAfterDays
	PendingDays int    `json:"pending_days"`     // Age of the debt in whole days
}

// Action taken by EnforcePolicy.
type Action string

// Enforcement actions
const (
	ActionNone  Action = "none"
	ActionWarn  Action = "warn"
	ActionBlock Action = "block"
)

// Enforcement reports what EnforcePolicy did for one driver.
type Enforcement struct {
	DriverID    uint   `json:"driver_id"`        // Driver checked
	Action      Action `json:"action"`           // none, warn or block
	PendingDays int    `json:"pending_days"`     // Age of the debt in whole days
	CashOwed    int64  `json:"cash_owed"`        // Centavos outstanding
	Reason      string `json:"reason,omitempty"` // Message stored on a blocked account
}

// SweepResult summarises SweepOverdue.
type SweepResult struct {
	Checked    int `json:"checked"`    // Drivers with unsettled cash orders
	Warned     int `json:"warned"`     // Drivers warned
	Blocked    int `json:"blocked"`    // Drivers deactivated
	Reinstated int `json:"reinstated"` // Blocked drivers whose debt cleared
}

// Tracker applies the cash debt policy. Debt itself is stored on the wallet
// and only changes through the wallet ledger.
type Tracker struct {
	db     *gorm.DB
	ledger *wallet.Ledger
	policy Policy
	now    func() time.Time
	log    logrus.FieldLogger
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(t *Tracker) { t.log = log }
}

// NewTracker builds a Tracker.
func NewTracker(db *gorm.DB, ledger *wallet.Ledger, policy Policy, opts ...Option) *Tracker {
	t := &Tracker{db: db, ledger: ledger, policy: policy, now: time.Now, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Policy returns the thresholds in force.
func (t *Tracker) Policy() Policy { return t.policy }

// CanAcceptCashOrder allows a cash order only while the driver is active,
// owes less than MaxCashOwed and has no overdue debt.
func (t *Tracker) CanAcceptCashOrder(ctx context.Context, driverID uint) (Decision, error) {
	const op = "cashdebt.CanAcceptCashOrder"
	conn := t.db.WithContext(ctx)

	user, err := loadUser(conn, op, driverID)
	if err != nil {
		return Decision{}, err
	}
	debt, err := t.pendingDebt(conn, op, driverID)
	if err != nil {
		return Decision{}, err
	}
	owed := debt.owed

	d := Decision{CashOwed: owed, PendingDays: debt.days, Overdue: t.overdue(debt)}
	switch {
	case !user.IsActive:
		d.Reason = "account is deactivated"
		if user.BlockedReason != "" {
			d.Reason = user.BlockedReason
		}
	case owed >= t.policy.MaxCashOwed:
		d.Reason = fmt.Sprintf("cash owed of %s reaches the %s limit; hand over collected cash before accepting cash orders",
			domain.FormatCents(owed), domain.FormatCents(t.policy.MaxCashOwed))
	case d.Overdue:
		d.Reason = fmt.Sprintf("cash owed of %s has been pending for %d days (limit %d)",
			domain.FormatCents(owed), debt.days, t.policy.BlockAfterDays)
	default:
		d.Allowed = true
	}

	if d.Allowed {
		metrics.RecordCashDecision("accept")
	} else {
		metrics.RecordCashDecision("reject")
		t.log.WithFields(logrus.Fields{
			"driver_id": driverID,
			"cash_owed": owed,
			"reason":    d.Reason,
		}).Info("Cash order rejected for driver")
	}
	return d, nil
}

// HasOverdueDebt reports whether the driver owes cash and the oldest
// unsettled cash order is older than BlockAfterDays whole days.
func (t *Tracker) HasOverdueDebt(ctx context.Context, driverID uint) (bool, error) {
	debt, err := t.pendingDebt(t.db.WithContext(ctx), "cashdebt.HasOverdueDebt", driverID)
	if err != nil {
		return false, err
	}
	return t.overdue(debt), nil
}

// EnforcePolicy warns a driver whose oldest unsettled cash order is
// WarnAfterDays old and deactivates the account once it is past
// BlockAfterDays, recording the amount owed in blockedReason.
func (t *Tracker) EnforcePolicy(ctx context.Context, driverID uint) (Enforcement, error) {
	const op = "cashdebt.EnforcePolicy"
	conn := t.db.WithContext(ctx)

	debt, err := t.pendingDebt(conn, op, driverID)
	if err != nil {
		return Enforcement{}, err
	}
	days := debt.days
	res := Enforcement{DriverID: driverID, Action: ActionNone, PendingDays: days, CashOwed: debt.owed}
	if !debt.pending {
		return res, nil
	}

	fields := logrus.Fields{"driver_id": driverID, "cash_owed": res.CashOwed, "pending_days": days}
	switch {
	case days > t.policy.BlockAfterDays:
		res.Action = ActionBlock
		res.Reason = fmt.Sprintf("Cash debt of %s unsettled for %d days; account blocked until it is settled",
			domain.FormatCents(res.CashOwed), days)
		now := t.now().UTC()
		err := conn.Model(&domain.User{}).
			Where("id = ? AND is_active = ?", driverID, true).
			Updates(map[string]any{"is_active": false, "blocked_reason": res.Reason, "blocked_at": &now}).Error
		if err != nil {
			return Enforcement{}, domain.Wrap(domain.KindInternal, op, err)
		}
		metrics.RecordCashDecision("block")
		t.log.WithFields(fields).Warn("Driver blocked for overdue cash debt")
	case days >= t.policy.WarnAfterDays:
		res.Action = ActionWarn
		res.Reason = fmt.Sprintf("Cash debt of %s pending for %d days; the account is blocked after %d days",
			domain.FormatCents(res.CashOwed), days, t.policy.BlockAfterDays)
		metrics.RecordCashDecision("warn")
		t.log.WithFields(fields).Warn("Driver cash debt pending")
	}
	return res, nil
}

// SweepOverdue runs EnforcePolicy for every driver with unsettled cash orders.
func (t *Tracker) SweepOverdue(ctx context.Context) (SweepResult, error) {
	const op = "cashdebt.SweepOverdue"
	var driverIDs []uint
	err := pendingCashOrders(t.db.WithContext(ctx)).
		Distinct().
		Pluck("driver_id", &driverIDs).Error
	if err != nil {
		return SweepResult{}, domain.Wrap(domain.KindInternal, op, err)
	}

	var res SweepResult
	var errs []error
	for _, id := range driverIDs {
		e, err := t.EnforcePolicy(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("driver %d: %w", id, err))
			continue
		}
		res.Checked++
		switch e.Action {
		case ActionWarn:
			res.Warned++
		case ActionBlock:
			res.Blocked++
		}
	}

	var blockedIDs []uint
	err = t.db.WithContext(ctx).Model(&domain.User{}).
		Where("is_active = ? AND blocked_at IS NOT NULL", false).
		Pluck("id", &blockedIDs).Error
	if err != nil {
		errs = append(errs, domain.Wrap(domain.KindInternal, op, err))
	}
	for _, id := range blockedIDs {
		ok, err := t.Reinstate(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("driver %d: %w", id, err))
			continue
		}
		if ok {
			res.Reinstated++
		}
	}

	t.log.WithFields(logrus.Fields{
		"checked":    res.Checked,
		"warned":     res.Warned,
		"blocked":    res.Blocked,
		"reinstated": res.Reinstated,
		"errors":     len(errs),
	}).Info("Cash debt sweep finished")
	return res, errors.Join(errs...)
}

// Reinstate reactivates a driver blocked by EnforcePolicy once the debt is no
// longer overdue. It reports whether the account was reactivated.
func (t *Tracker) Reinstate(ctx context.Context, driverID uint) (bool, error) {
	const op = "cashdebt.Reinstate"
	conn := t.db.WithContext(ctx)

	debt, err := t.pendingDebt(conn, op, driverID)
	if err != nil {
		return false, err
	}
	if t.overdue(debt) {
		return false, nil
	}
	res := conn.Model(&domain.User{}).
		Where("id = ? AND is_active = ? AND blocked_at IS NOT NULL", driverID, false).
		Updates(map[string]any{"is_active": true, "blocked_reason": "", "blocked_at": nil})
	if res.Error != nil {
		return false, domain.Wrap(domain.KindInternal, op, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	metrics.RecordCashDecision("reinstate")
	t.log.WithFields(logrus.Fields{
		"driver_id": driverID,
		"cash_owed": debt.owed,
	}).Info("Driver reinstated after cash debt cleared")
	return true, nil
}

// UpdateCashOwed adds amount to the driver's cash debt for orderID, logging a
// cash_debt transaction. An order can add debt to a driver only once.
func (t *Tracker) UpdateCashOwed(ctx context.Context, driverID uint, amount int64, orderID uint) (*domain.Transaction, error) {
	e, err := cashDebtEntry(driverID, amount, orderID)
	if err != nil {
		return nil, err
	}
	p, err := t.ledger.Commit(ctx, e)
	if err != nil {
		return nil, err
	}
	return &p.Transaction, nil
}

// UpdateCashOwedTx is UpdateCashOwed inside the caller's transaction. The
// caller passes the posting to Ledger.Committed after commit.
func (t *Tracker) UpdateCashOwedTx(tx *gorm.DB, driverID uint, amount int64, orderID uint) (*wallet.Posting, error) {
	e, err := cashDebtEntry(driverID, amount, orderID)
	if err != nil {
		return nil, err
	}
	return t.ledger.Apply(tx, e)
}

func cashDebtEntry(driverID uint, amount int64, orderID uint) (wallet.Entry, error) {
	const op = "cashdebt.UpdateCashOwed"
	if amount <= 0 {
		return wallet.Entry{}, domain.E(domain.KindValidation, op, "amount must be positive, got %d", amount)
	}
	if orderID == 0 {
		return wallet.Entry{}, domain.E(domain.KindValidation, op, "order id is required")
	}
	return wallet.Entry{
		UserID:        driverID,
		Type:          domain.TxCashDebt,
		CashOwedDelta: amount,
		OrderID:       &orderID,
		Description:   fmt.Sprintf("Cash collected for order %d", orderID),
	}, nil
}

// CanWithdraw blocks withdrawals while the user owes any cash.
func (t *Tracker) CanWithdraw(ctx context.Context, userID uint) (bool, string, error) {
	owed, err := cashOwed(t.db.WithContext(ctx), "cashdebt.CanWithdraw", userID)
	if err != nil {
		return false, "", err
	}
	if owed > 0 {
		return false, fmt.Sprintf("withdrawals are blocked while %s of cash debt is outstanding", domain.FormatCents(owed)), nil
	}
	return true, "", nil
}

// RemitFromBalance pays amount of cash debt out of the driver's electronic balance.
func (t *Tracker) RemitFromBalance(ctx context.Context, driverID uint, amount int64) (*domain.Transaction, error) {
	const op = "cashdebt.RemitFromBalance"
	if amount <= 0 {
		return nil, domain.E(domain.KindValidation, op, "amount must be positive, got %d", amount)
	}
	p, err := t.ledger.Commit(ctx, wallet.Entry{
		UserID:        driverID,
		Type:          domain.TxCashRemittance,
		Amount:        -amount,
		CashOwedDelta: -amount,
		Description:   "Cash debt paid from balance",
	})
	if err != nil {
		return nil, err
	}
	return &p.Transaction, nil
}

func pendingCashOrders(conn *gorm.DB) *gorm.DB {
	return conn.Model(&domain.Order{}).
		Where("payment_method = ? AND status = ? AND cash_settled = ? AND driver_id IS NOT NULL AND delivered_at IS NOT NULL",
			domain.PaymentCash, domain.OrderDelivered, false)
}

// debtState is a driver's outstanding cash and its age. It is pending only while
// cash is owed and an unsettled cash order exists.
type debtState struct {
	owed    int64
	days    int
	pending bool
}

func (t *Tracker) overdue(d debtState) bool {
	return d.pending && d.days > t.policy.BlockAfterDays
}

// pendingDebt reads the driver's cash owed and the age in whole days of the
// oldest unsettled cash order. Debt remitted from the balance leaves orders
// unsettled with nothing owed, which is not pending.
func (t *Tracker) pendingDebt(conn *gorm.DB, op string, driverID uint) (debtState, error) {
	owed, err := cashOwed(conn, op, driverID)
	if err != nil {
		return debtState{}, err
	}
	if owed <= 0 {
		return debtState{owed: owed}, nil
	}

	var oldest domain.Order
	err = pendingCashOrders(conn).
		Where("driver_id = ?", driverID).
		Order("delivered_at asc").
		Take(&oldest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return debtState{owed: owed}, nil
	}
	if err != nil {
		return debtState{}, domain.Wrap(domain.KindInternal, op, err)
	}
	days := int(t.now().Sub(*oldest.DeliveredAt) / (24 * time.Hour))
	if days < 0 {
		days = 0
	}
	return debtState{owed: owed, days: days, pending: true}, nil
}

func loadUser(conn *gorm.DB, op string, userID uint) (*domain.User, error) {
	var u domain.User
	err := conn.Where("id = ?", userID).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.E(domain.KindNotFound, op, "user %d not found", userID)
	}
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, op, err)
	}
	return &u, nil
}

// cashOwed reads the debt without creating a wallet; no wallet means no debt.
func cashOwed(conn *gorm.DB, op string, userID uint) (int64, error) {
	var w domain.Wallet
	err := conn.Select("cash_owed").Where("user_id = ?", userID).Take(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, domain.Wrap(domain.KindInternal, op, err)
	}
	return w.CashOwed, nil
}
