package audit

import (
	"context"
	"errors"
	"fmt"

	"delivery_ledger/internal/commission"
	"delivery_ledger/internal/domain"

	"gorm.io/gorm"
)

func (r *CheckResult) flag(id uint, limit int) {
	r.Affected++
	if len(r.Sample) < limit {
		r.Sample = append(r.Sample, id)
	}
}

func (r *CheckResult) conclude(ok, broken string) {
	r.Passed = r.Affected == 0
	if r.Passed {
		r.Message = ok
		return
	}
	r.Message = fmt.Sprintf("%d %s", r.Affected, broken)
}

// violations counts the rows selected by build and samples their ids.
func (a *Auditor) violations(build func() *gorm.DB, idColumn string, res *CheckResult) error {
	if err := build().Count(&res.Affected).Error; err != nil {
		return err
	}
	if res.Affected == 0 {
		return nil
	}
	var ids []uint
	if err := build().Order(idColumn).Limit(a.sampleLimit).Pluck(idColumn, &ids).Error; err != nil {
		return err
	}
	res.Sample = ids
	return nil
}

// walletsWithSums joins every wallet to the totals of its transactions.
func walletsWithSums(conn *gorm.DB) *gorm.DB {
	sums := conn.Model(&domain.Transaction{}).
		Select("wallet_id, SUM(amount) AS amount_sum, SUM(cash_owed_delta) AS cash_sum").
		Group("wallet_id")
	return conn.Model(&domain.Wallet{}).
		Joins("LEFT JOIN (?) AS sums ON sums.wallet_id = wallets.id", sums)
}

func (a *Auditor) checkRates(ctx context.Context, res *CheckResult) error {
	res.Checked = 1
	rates, err := a.rates.Get(ctx)
	if err == nil {
		err = rates.Validate()
	}
	if errors.Is(err, domain.ErrConfiguration) {
		res.Affected = 1
		res.Message = fmt.Sprintf("commission rates are invalid: %v", err)
		return nil
	}
	if err != nil {
		return err
	}
	res.Passed = true
	res.Message = fmt.Sprintf("business %s + driver %s = %s", rates.Business, rates.Driver, rates.Sum())
	return nil
}

func (a *Auditor) checkOrderTotals(ctx context.Context, res *CheckResult) error {
	conn := a.db.WithContext(ctx)
	if err := conn.Model(&domain.Order{}).Count(&res.Checked).Error; err != nil {
		return err
	}
	err := a.violations(func() *gorm.DB {
		return conn.Model(&domain.Order{}).Where("total <> subtotal + delivery_fee + tax")
	}, "id", res)
	if err != nil {
		return err
	}
	res.conclude("order totals match subtotal + delivery fee + tax",
		"orders whose total differs from subtotal + delivery fee + tax")
	return nil
}

func (a *Auditor) checkCommissionSplit(ctx context.Context, res *CheckResult) error {
	conn := a.db.WithContext(ctx)
	delivered := func() *gorm.DB {
		return conn.Model(&domain.Order{}).Where("status = ?", domain.OrderDelivered)
	}
	if err := delivered().Count(&res.Checked).Error; err != nil {
		return err
	}
	err := a.violations(func() *gorm.DB {
		return delivered().Where("platform_fee + business_earnings + delivery_earnings <> total")
	}, "id", res)
	if err != nil {
		return err
	}
	res.conclude("every delivered order splits exactly into its total",
		"delivered orders whose commission split does not add up to the total")
	return nil
}

func (a *Auditor) checkWalletBalances(ctx context.Context, res *CheckResult) error {
	conn := a.db.WithContext(ctx)
	if err := conn.Model(&domain.Wallet{}).Count(&res.Checked).Error; err != nil {
		return err
	}
	err := a.violations(func() *gorm.DB {
		return walletsWithSums(conn).Where("wallets.balance <> COALESCE(sums.amount_sum, 0)")
	}, "wallets.id", res)
	if err != nil {
		return err
	}
	res.conclude("wallet balances equal the sum of their transactions",
		"wallets whose balance differs from the sum of their transactions")
	return nil
}

func (a *Auditor) checkCashOwed(ctx context.Context, res *CheckResult) error {
	conn := a.db.WithContext(ctx)
	if err := conn.Model(&domain.Wallet{}).Count(&res.Checked).Error; err != nil {
		return err
	}
	err := a.violations(func() *gorm.DB {
		return walletsWithSums(conn).Where("wallets.cash_owed <> COALESCE(sums.cash_sum, 0)")
	}, "wallets.id", res)
	if err != nil {
		return err
	}
	res.conclude("cash owed equals the sum of cash debt movements",
		"wallets whose cash owed differs from their cash debt movements")
	return nil
}

func (a *Auditor) checkNonNegative(ctx context.Context, res *CheckResult) error {
	conn := a.db.WithContext(ctx)
	if err := conn.Model(&domain.Wallet{}).Count(&res.Checked).Error; err != nil {
		return err
	}
	err := a.violations(func() *gorm.DB {
		return conn.Model(&domain.Wallet{}).Where("balance < 0 OR cash_owed < 0")
	}, "id", res)
	if err != nil {
		return err
	}
	res.conclude("no wallet is negative", "wallets with a negative balance or cash owed")
	return nil
}

// checkTransactionChain streams transactions in id order. Ids follow
// insertion order, which the wallet row lock keeps chronological per wallet.
func (a *Auditor) checkTransactionChain(ctx context.Context, res *CheckResult) error {
	type position struct{ balance, cash int64 }
	last := make(map[uint]position)

	var batch []domain.Transaction
	err := a.db.WithContext(ctx).Model(&domain.Transaction{}).
		FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			for _, t := range batch {
				res.Checked++
				prev := last[t.WalletID]
				if t.BalanceAfter != t.BalanceBefore+t.Amount ||
					t.BalanceBefore != prev.balance ||
					t.CashOwedAfter-t.CashOwedDelta != prev.cash {
					res.flag(t.ID, a.sampleLimit)
				}
				last[t.WalletID] = position{t.BalanceAfter, t.CashOwedAfter}
			}
			return nil
		}).Error
	if err != nil {
		return err
	}
	res.conclude("every transaction continues where the previous one ended",
		"transactions that break their wallet's balance chain")
	return nil
}

func (a *Auditor) checkPaymentAmounts(ctx context.Context, res *CheckResult) error {
	conn := a.db.WithContext(ctx)
	completed := func() *gorm.DB {
		return conn.Model(&domain.Payment{}).Where("payments.status = ?", domain.PaymentCompleted)
	}
	if err := completed().Count(&res.Checked).Error; err != nil {
		return err
	}
	err := a.violations(func() *gorm.DB {
		return completed().
			Joins("LEFT JOIN orders ON orders.id = payments.order_id").
			Where("orders.id IS NULL OR payments.amount <> orders.total")
	}, "payments.id", res)
	if err != nil {
		return err
	}
	res.conclude("completed payments match their order totals",
		"completed payments that do not match their order total")
	return nil
}

func (a *Auditor) checkDriverEarnings(ctx context.Context, res *CheckResult) error {
	rates, err := a.rates.Get(ctx)
	if err != nil {
		return err
	}

	var batch []domain.Order
	err = a.db.WithContext(ctx).Model(&domain.Order{}).
		Select("id", "delivery_fee", "delivery_earnings").
		Where("status = ?", domain.OrderDelivered).
		FindInBatches(&batch, batchSize, func(_ *gorm.DB, _ int) error {
			for _, o := range batch {
				res.Checked++
				if o.DeliveryEarnings != commission.DriverEarnings(o.DeliveryFee, rates.Driver) {
					res.flag(o.ID, a.sampleLimit)
				}
			}
			return nil
		}).Error
	if err != nil {
		return err
	}
	res.conclude(fmt.Sprintf("driver earnings match %s of the delivery fee", rates.Driver),
		"delivered orders whose driver earnings do not match the delivery fee")
	return nil
}
