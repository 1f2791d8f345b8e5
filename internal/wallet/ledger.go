// Package wallet owns wallet balances and their append-only transaction log.
// Every balance or cash-debt change in the system goes through Ledger.Apply.
package wallet

import (
	"context"
	"errors"

	"delivery_ledger/internal/domain"
	"delivery_ledger/internal/metrics"
	"delivery_ledger/internal/utils"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry describes one mutation of a user's wallet.
type Entry struct {
	UserID        uint                   // Wallet owner
	Type          domain.TransactionType // Ledger entry type
	Amount        int64                  // Signed balance delta
	CashOwedDelta int64                  // Signed cash debt delta
	ClampCashOwed bool                   // Limit a negative CashOwedDelta to the debt outstanding
	OrderID       *uint                  // Order the entry belongs to, if any
	Description   string                 // Human readable note
}

func (e Entry) validate(op string) error {
	if e.UserID == 0 {
		return domain.E(domain.KindValidation, op, "user id is required")
	}
	if !e.Type.Valid() {
		return domain.E(domain.KindValidation, op, "unknown transaction type %q", e.Type)
	}
	if e.Amount == 0 && e.CashOwedDelta == 0 && e.Type != domain.TxCashSettlement {
		return domain.E(domain.KindValidation, op, "entry moves no money")
	}
	if (e.Type == domain.TxCashDebt || e.Type == domain.TxCashSettlement) && e.Amount != 0 {
		return domain.E(domain.KindValidation, op, "%s entries must not move the balance", e.Type)
	}
	return nil
}

// Posting is the outcome of a committed or pending Apply.
type Posting struct {
	UserID      uint               // Wallet owner
	Wallet      domain.Wallet      // Wallet totals after the entry
	Transaction domain.Transaction // Row appended to the log
}

// Ledger mutates wallets atomically. Safe for concurrent use.
type Ledger struct {
	db  *gorm.DB
	rdb redis.Cmdable
	log logrus.FieldLogger
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithCache enables the Redis wallet snapshot cache.
func WithCache(rdb *redis.Client) Option {
	return func(l *Ledger) {
		if rdb != nil {
			l.rdb = rdb
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(l *Ledger) { l.log = log }
}

// New builds a Ledger on db.
func New(db *gorm.DB, opts ...Option) *Ledger {
	l := &Ledger{db: db, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// GetOrCreateWallet returns the user's wallet, creating it at zero on first use.
func (l *Ledger) GetOrCreateWallet(ctx context.Context, userID uint) (*domain.Wallet, error) {
	const op = "wallet.GetOrCreateWallet"
	conn := l.db.WithContext(ctx)
	if err := requireUser(conn, op, userID); err != nil {
		return nil, err
	}
	w, err := loadWallet(conn, op, userID, false)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// UpdateBalance moves a user's balance by delta and appends one transaction
// row, all in a single database transaction. A debit that would leave the
// balance negative fails with ErrInsufficientBalance and persists nothing.
func (l *Ledger) UpdateBalance(ctx context.Context, userID uint, delta int64, txType domain.TransactionType, orderID *uint, description string) (*domain.Transaction, error) {
	const op = "wallet.UpdateBalance"
	if delta == 0 {
		return nil, domain.E(domain.KindValidation, op, "delta must not be zero")
	}
	if txType == domain.TxCashDebt || txType == domain.TxCashSettlement {
		return nil, domain.E(domain.KindValidation, op, "%s changes cash debt, not the balance", txType)
	}
	p, err := l.Commit(ctx, Entry{
		UserID:      userID,
		Type:        txType,
		Amount:      delta,
		OrderID:     orderID,
		Description: description,
	})
	if err != nil {
		return nil, err
	}
	return &p.Transaction, nil
}

// Commit runs Apply in its own database transaction.
func (l *Ledger) Commit(ctx context.Context, e Entry) (*Posting, error) {
	var p *Posting
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = l.Apply(tx, e)
		return err
	})
	if err != nil {
		l.failed(e, err)
		return nil, err
	}
	l.Committed(ctx, p)
	return p, nil
}

// Apply performs the mutation inside the caller's transaction: it locks the
// wallet row (creating the wallet lazily), checks the user exists, rejects a
// negative balance or cash debt and withdrawals while cash is owed, writes the
// new totals and appends the transaction row. The caller must call Committed once its transaction commits.
func (l *Ledger) Apply(tx *gorm.DB, e Entry) (*Posting, error) {
	const op = "wallet.Apply"
	if err := e.validate(op); err != nil {
		return nil, err
	}
	if err := requireUser(tx, op, e.UserID); err != nil {
		return nil, err
	}
	w, err := loadWallet(tx, op, e.UserID, true)
	if err != nil {
		return nil, err
	}

	if e.Type == domain.TxWithdrawal && w.CashOwed > 0 {
		return nil, domain.E(domain.KindForbidden, op,
			"withdrawals are blocked while %s of cash debt is outstanding", domain.FormatCents(w.CashOwed))
	}

	cashDelta := e.CashOwedDelta
	if e.ClampCashOwed && w.CashOwed+cashDelta < 0 {
		cashDelta = -w.CashOwed
	}
	newBalance := w.Balance + e.Amount
	if newBalance < 0 {
		return nil, domain.E(domain.KindInsufficientBalance, op,
			"balance %d cannot cover %d", w.Balance, -e.Amount)
	}
	newCash := w.CashOwed + cashDelta
	if newCash < 0 {
		return nil, domain.E(domain.KindValidation, op,
			"cash owed %d cannot be reduced by %d", w.CashOwed, -cashDelta)
	}

	updates := map[string]any{"balance": newBalance, "cash_owed": newCash}
	after := w
	after.Balance, after.CashOwed = newBalance, newCash
	if e.Type.Earning() && e.Amount > 0 {
		after.TotalEarned += e.Amount
		updates["total_earned"] = after.TotalEarned
	}
	if e.Type == domain.TxWithdrawal && e.Amount < 0 {
		after.TotalWithdrawn -= e.Amount
		updates["total_withdrawn"] = after.TotalWithdrawn
	}

	if newBalance != w.Balance || newCash != w.CashOwed {
		// The balance guard turns the update into a compare-and-swap on stores
		// that ignore FOR UPDATE.
		res := tx.Model(&domain.Wallet{}).
			Where("id = ? AND balance = ? AND cash_owed = ?", w.ID, w.Balance, w.CashOwed).
			Updates(updates)
		if res.Error != nil {
			return nil, domain.Wrap(domain.KindInternal, op, res.Error)
		}
		if res.RowsAffected != 1 {
			return nil, domain.E(domain.KindConflict, op, "wallet %d changed concurrently", w.ID)
		}
	}

	row := domain.Transaction{
		WalletID:      w.ID,
		OrderID:       e.OrderID,
		Type:          e.Type,
		Amount:        e.Amount,
		BalanceBefore: w.Balance,
		BalanceAfter:  newBalance,
		CashOwedDelta: cashDelta,
		CashOwedAfter: newCash,
		Description:   e.Description,
		Status:        domain.TxStatusCompleted,
	}
	if err := tx.Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, domain.E(domain.KindConflict, op, "order already has a %s entry on wallet %d", e.Type, w.ID)
		}
		return nil, domain.Wrap(domain.KindInternal, op, err)
	}
	return &Posting{UserID: e.UserID, Wallet: after, Transaction: row}, nil
}

// Committed invalidates cached snapshots and records metrics for postings
// whose enclosing transaction has committed.
func (l *Ledger) Committed(ctx context.Context, postings ...*Posting) {
	for _, p := range postings {
		if p == nil {
			continue
		}
		if err := utils.DeleteCache(ctx, l.rdb, utils.WalletKey(p.UserID)); err != nil {
			l.log.WithFields(logrus.Fields{
				"user_id": p.UserID,
				"error":   err.Error(),
			}).Warn("Wallet cache invalidation failed")
		}
		amount := p.Transaction.Amount
		if amount == 0 {
			amount = p.Transaction.CashOwedDelta
		}
		metrics.RecordMutation(string(p.Transaction.Type), "ok", amount)
		l.log.WithFields(logrus.Fields{
			"user_id":         p.UserID,
			"wallet_id":       p.Wallet.ID,
			"transaction_id":  p.Transaction.ID,
			"type":            p.Transaction.Type,
			"amount":          p.Transaction.Amount,
			"cash_owed_delta": p.Transaction.CashOwedDelta,
			"balance_after":   p.Transaction.BalanceAfter,
			"order_id":        p.Transaction.OrderID,
		}).Info("Wallet transaction")
	}
}

func (l *Ledger) failed(e Entry, err error) {
	kind := domain.KindOf(err)
	metrics.RecordMutation(string(e.Type), string(kind), e.Amount)
	entry := l.log.WithFields(logrus.Fields{
		"user_id":  e.UserID,
		"type":     e.Type,
		"amount":   e.Amount,
		"order_id": e.OrderID,
		"error":    err.Error(),
	})
	if kind == domain.KindInternal {
		entry.Error("Wallet transaction failed")
		return
	}
	entry.Warn("Wallet transaction rejected")
}

func requireUser(conn *gorm.DB, op string, userID uint) error {
	if userID == 0 {
		return domain.E(domain.KindValidation, op, "user id is required")
	}
	var u domain.User
	err := conn.Select("id").Where("id = ?", userID).Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.E(domain.KindNotFound, op, "user %d not found", userID)
	}
	if err != nil {
		return domain.Wrap(domain.KindInternal, op, err)
	}
	return nil
}

// loadWallet reads the user's wallet, creating it when missing. With lock set
// the row is read FOR UPDATE.
func loadWallet(conn *gorm.DB, op string, userID uint, lock bool) (domain.Wallet, error) {
	find := func() (domain.Wallet, error) {
		var w domain.Wallet
		q := conn
		if lock {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		err := q.Where("user_id = ?", userID).Take(&w).Error
		return w, err
	}

	w, err := find()
	if errors.Is(err, gorm.ErrRecordNotFound) {
		created := domain.Wallet{UserID: userID}
		if err := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&created).Error; err != nil {
			return domain.Wallet{}, domain.Wrap(domain.KindInternal, op, err)
		}
		w, err = find()
	}
	if err != nil {
		return domain.Wallet{}, domain.Wrap(domain.KindInternal, op, err)
	}
	return w, nil
}
