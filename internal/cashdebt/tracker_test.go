package cashdebt

import (
	"context"
	"testing"
	"time"

	"delivery_ledger/internal/domain"
	"delivery_ledger/internal/testdb"
	"delivery_ledger/internal/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var now = time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)

type fixture struct {
	conn     *gorm.DB
	ledger   *wallet.Ledger
	tracker  *Tracker
	driver   *domain.User
	business *domain.Business
}

func setup(t *testing.T) fixture {
	t.Helper()
	conn := testdb.Open(t)
	ledger := wallet.New(conn)
	owner := testdb.CreateUser(t, conn, "owner", domain.RoleBusiness)
	return fixture{
		conn:     conn,
		ledger:   ledger,
		tracker:  NewTracker(conn, ledger, DefaultPolicy(), WithClock(func() time.Time { return now })),
		driver:   testdb.CreateUser(t, conn, "driver", domain.RoleDriver),
		business: testdb.CreateBusiness(t, conn, owner.ID, "Tacos"),
	}
}

func (f fixture) owe(t *testing.T, amount int64, orderID uint) {
	t.Helper()
	_, err := f.tracker.UpdateCashOwed(context.Background(), f.driver.ID, amount, orderID)
	require.NoError(t, err)
}

func TestCanAcceptCashOrderUnderLimit(t *testing.T) {
	f := setup(t)
	f.owe(t, 48000, 1)

	d, err := f.tracker.CanAcceptCashOrder(context.Background(), f.driver.ID)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(48000), d.CashOwed)
	assert.Empty(t, d.Reason)
}

func TestCanAcceptCashOrderOverLimit(t *testing.T) {
	f := setup(t)
	f.owe(t, 51000, 1)

	d, err := f.tracker.CanAcceptCashOrder(context.Background(), f.driver.ID)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "$510.00")
}

func TestCanAcceptCashOrderAtExactLimit(t *testing.T) {
	f := setup(t)
	f.owe(t, 50000, 1)

	d, err := f.tracker.CanAcceptCashOrder(context.Background(), f.driver.ID)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestCanAcceptCashOrderWithoutWallet(t *testing.T) {
	f := setup(t)
	d, err := f.tracker.CanAcceptCashOrder(context.Background(), f.driver.ID)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Zero(t, d.CashOwed)
}

func TestCanAcceptCashOrderOverdue(t *testing.T) {
	f := setup(t)
	o := testdb.DeliveredCashOrder(t, f.conn, f.business.ID, f.driver.ID, now.Add(-8*24*time.Hour))
	f.owe(t, o.BusinessEarnings, o.ID)

	d, err := f.tracker.CanAcceptCashOrder(context.Background(), f.driver.ID)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.True(t, d.Overdue)
	assert.Equal(t, 8, d.PendingDays)
}

func TestCanAcceptCashOrderUnknownDriver(t *testing.T) {
	f := setup(t)
	_, err := f.tracker.CanAcceptCashOrder(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHasOverdueDebt(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"fresh", 2 * time.Hour, false},
		{"exactly seven days", 7 * 24 * time.Hour, false},
		{"seven and a half days", 7*24*time.Hour + 12*time.Hour, false},
		{"eight days", 8 * 24 * time.Hour, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			o := testdb.DeliveredCashOrder(t, f.conn, f.business.ID, f.driver.ID, now.Add(-tt.age))
			f.owe(t, o.BusinessEarnings, o.ID)

			got, err := f.tracker.HasOverdueDebt(context.Background(), f.driver.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHasOverdueDebtIgnoresSettledOrders(t *testing.T) {
	f := setup(t)
	o := testdb.DeliveredCashOrder(t, f.conn, f.business.ID, f.driver.ID, now.Add(-10*24*time.Hour))
	f.owe(t, o.BusinessEarnings, o.ID)
	require.NoError(t, f.conn.Model(o).Update("cash_settled", true).Error)

	got, err := f.tracker.HasOverdueDebt(context.Background(), f.driver.ID)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEnforcePolicyWarns(t *testing.T) {
	f := setup(t)
	o := testdb.DeliveredCashOrder(t, f.conn, f.business.ID, f.driver.ID, now.Add(-5*24*time.Hour))
	f.owe(t, o.BusinessEarnings, o.ID)

	e, err := f.tracker.EnforcePolicy(context.Background(), f.driver.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionWarn, e.Action)

	var u domain.User
	require.NoError(t, f.conn.First(&u, f.driver.ID).Error)
	assert.True(t, u.IsActive)
}

func TestEnforcePolicyBlocksAfterEightDays(t *testing.T) {
	f := setup(t)
	o := testdb.DeliveredCashOrder(t, f.conn, f.business.ID, f.driver.ID, now.Add(-8*24*time.Hour))
	f.owe(t, o.BusinessEarnings, o.ID)

	e, err := f.tracker.EnforcePolicy(context.Background(), f.driver.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionBlock, e.Action)
	assert.Equal(t, 8, e.PendingDays)

	var u domain.User
	require.NoError(t, f.conn.First(&u, f.driver.ID).Error)
	assert.False(t, u.IsActive)
	assert.Contains(t, u.BlockedReason, "$85.00")
	assert.Contains(t, u.BlockedReason, "8 days")
	assert.NotContains(t, u.BlockedReason, "MXN")
	require.NotNil(t, u.BlockedAt)

	d, err := f.tracker.CanAcceptCashOrder(context.Background(), f.driver.ID)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, u.BlockedReason, d.Reason)
}

func TestEnforcePolicyNothingPending(t *testing.T) {
	f := setup(t)
	e, err := f.tracker.EnforcePolicy(context.Background(), f.driver.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, e.Action)
}

func TestSweepOverdue(t *testing.T) {
	f := setup(t)
	late := testdb.CreateUser(t, f.conn, "late", domain.RoleDriver)
	slow := testdb.CreateUser(t, f.conn, "slow", domain.RoleDriver)
	for driverID, age := range map[uint]time.Duration{
		f.driver.ID: time.Hour,
		late.ID:     9 * 24 * time.Hour,
		slow.ID:     6 * 24 * time.Hour,
	} {
		o := testdb.DeliveredCashOrder(t, f.conn, f.business.ID, driverID, now.Add(-age))
		_, err := f.tracker.UpdateCashOwed(context.Background(), driverID, o.BusinessEarnings, o.ID)
		require.NoError(t, err)
	}

	res, err := f.tracker.SweepOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Checked: 3, Warned: 1, Blocked: 1}, res)
}

func TestUpdateCashOwedRejects(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.tracker.UpdateCashOwed(ctx, f.driver.ID, 0, 1)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.tracker.UpdateCashOwed(ctx, f.driver.ID, -10, 1)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.tracker.UpdateCashOwed(ctx, f.driver.ID, 10, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)

	f.owe(t, 100, 7)
	_, err = f.tracker.UpdateCashOwed(ctx, f.driver.ID, 100, 7)
	assert.Error(t, err)
	assert.Equal(t, int64(100), testdb.Wallet(t, f.conn, f.driver.ID).CashOwed)
}

func TestUpdateCashOwedLogsDebtEntry(t *testing.T) {
	f := setup(t)
	tx, err := f.tracker.UpdateCashOwed(context.Background(), f.driver.ID, 8500, 3)
	require.NoError(t, err)

	assert.Equal(t, domain.TxCashDebt, tx.Type)
	assert.Zero(t, tx.Amount)
	assert.Equal(t, int64(8500), tx.CashOwedDelta)
	assert.Equal(t, int64(8500), tx.CashOwedAfter)
	require.NotNil(t, tx.OrderID)
	assert.Equal(t, uint(3), *tx.OrderID)
}

func TestCanWithdraw(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	ok, _, err := f.tracker.CanWithdraw(ctx, f.driver.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	f.owe(t, 1230, 1)
	ok, reason, err := f.tracker.CanWithdraw(ctx, f.driver.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, reason, "$12.30")
}

func TestRemitFromBalance(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.ledger.UpdateBalance(ctx, f.driver.ID, 5000, domain.TxDeliveryEarning, nil, "")
	require.NoError(t, err)
	f.owe(t, 3000, 1)

	tx, err := f.tracker.RemitFromBalance(ctx, f.driver.ID, 2000)
	require.NoError(t, err)
	assert.Equal(t, int64(-2000), tx.Amount)
	assert.Equal(t, int64(-2000), tx.CashOwedDelta)

	w := testdb.Wallet(t, f.conn, f.driver.ID)
	assert.Equal(t, int64(3000), w.Balance)
	assert.Equal(t, int64(1000), w.CashOwed)

	_, err = f.tracker.RemitFromBalance(ctx, f.driver.ID, 1500)
	assert.ErrorIs(t, err, domain.ErrValidation, "more than is owed")

	_, err = f.tracker.RemitFromBalance(ctx, f.driver.ID, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRemitFromBalanceInsufficient(t *testing.T) {
	f := setup(t)
	f.owe(t, 3000, 1)

	_, err := f.tracker.RemitFromBalance(context.Background(), f.driver.ID, 1000)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestRemittedDebtIsNotOverdue(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	o := testdb.DeliveredCashOrder(t, f.conn, f.business.ID, f.driver.ID, now.Add(-8*24*time.Hour))
	f.owe(t, o.BusinessEarnings, o.ID)
	_, err := f.ledger.UpdateBalance(ctx, f.driver.ID, o.BusinessEarnings, domain.TxDeliveryEarning, nil, "")
	require.NoError(t, err)
	_, err = f.tracker.RemitFromBalance(ctx, f.driver.ID, o.BusinessEarnings)
	require.NoError(t, err)

	overdue, err := f.tracker.HasOverdueDebt(ctx, f.driver.ID)
	require.NoError(t, err)
	assert.False(t, overdue)

	d, err := f.tracker.CanAcceptCashOrder(ctx, f.driver.ID)
	require.NoError(t, err)
	assert.True(t, d.Allowed, d.Reason)
	assert.Zero(t, d.PendingDays)

	e, err := f.tracker.EnforcePolicy(ctx, f.driver.ID)
	require.NoError(t, err)
	assert.Equal(t, ActionNone, e.Action)

	var u domain.User
	require.NoError(t, f.conn.First(&u, f.driver.ID).Error)
	assert.True(t, u.IsActive)
}

func TestReinstateAfterDebtCleared(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	o := testdb.DeliveredCashOrder(t, f.conn, f.business.ID, f.driver.ID, now.Add(-9*24*time.Hour))
	f.owe(t, o.BusinessEarnings, o.ID)
	_, err := f.tracker.EnforcePolicy(ctx, f.driver.ID)
	require.NoError(t, err)

	ok, err := f.tracker.Reinstate(ctx, f.driver.ID)
	require.NoError(t, err)
	assert.False(t, ok, "debt is still overdue")

	_, err = f.ledger.UpdateBalance(ctx, f.driver.ID, o.BusinessEarnings, domain.TxDeliveryEarning, nil, "")
	require.NoError(t, err)
	_, err = f.tracker.RemitFromBalance(ctx, f.driver.ID, o.BusinessEarnings)
	require.NoError(t, err)

	ok, err = f.tracker.Reinstate(ctx, f.driver.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	var u domain.User
	require.NoError(t, f.conn.First(&u, f.driver.ID).Error)
	assert.True(t, u.IsActive)
	assert.Empty(t, u.BlockedReason)
	assert.Nil(t, u.BlockedAt)

	ok, err = f.tracker.Reinstate(ctx, f.driver.ID)
	require.NoError(t, err)
	assert.False(t, ok, "already active")
}

func TestSweepOverdueReinstatesSettledDrivers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	o := testdb.DeliveredCashOrder(t, f.conn, f.business.ID, f.driver.ID, now.Add(-9*24*time.Hour))
	f.owe(t, o.BusinessEarnings, o.ID)

	res, err := f.tracker.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Blocked)

	require.NoError(t, f.conn.Model(o).Update("cash_settled", true).Error)
	res, err = f.tracker.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Reinstated: 1}, res)

	d, err := f.tracker.CanAcceptCashOrder(ctx, f.driver.ID)
	require.NoError(t, err)
	assert.True(t, d.Allowed, d.Reason)
}
