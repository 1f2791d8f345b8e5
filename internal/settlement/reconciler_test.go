package settlement

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
	conn       *gorm.DB
	ledger     *wallet.Ledger
	reconciler *Reconciler
	owner      *domain.User
	driver     *domain.User
	order      *domain.Order
}

// setup creates a delivered cash order whose driver owes its business and
// platform shares.
func setup(t *testing.T) fixture {
	t.Helper()
	conn := testdb.Open(t)
	ledger := wallet.New(conn)
	owner := testdb.CreateUser(t, conn, "owner", domain.RoleBusiness)
	driver := testdb.CreateUser(t, conn, "driver", domain.RoleDriver)
	business := testdb.CreateBusiness(t, conn, owner.ID, "Tortas")
	order := testdb.DeliveredCashOrder(t, conn, business.ID, driver.ID, now.Add(-time.Hour))

	_, err := ledger.Commit(context.Background(), wallet.Entry{
		UserID:        driver.ID,
		Type:          domain.TxCashDebt,
		CashOwedDelta: order.BusinessEarnings + order.PlatformFee,
		OrderID:       &order.ID,
	})
	require.NoError(t, err)

	return fixture{
		conn:       conn,
		ledger:     ledger,
		reconciler: NewReconciler(conn, ledger, WithClock(func() time.Time { return now })),
		owner:      owner,
		driver:     driver,
		order:      order,
	}
}

func TestSettleReducesCashOwed(t *testing.T) {
	f := setup(t)

	res, err := f.reconciler.Settle(context.Background(), f.order.ID, f.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8500), res.AmountSettled)
	assert.Equal(t, int64(9775), res.CashOwedBefore)
	assert.Equal(t, int64(1275), res.CashOwedAfter)
	assert.Equal(t, now, res.SettledAt)

	w := testdb.Wallet(t, f.conn, f.driver.ID)
	assert.Equal(t, int64(1275), w.CashOwed)
	assert.Zero(t, w.Balance, "settlement never credits the wallet")

	var o domain.Order
	require.NoError(t, f.conn.First(&o, f.order.ID).Error)
	assert.True(t, o.CashSettled)
	require.NotNil(t, o.CashSettledAt)

	rows := testdb.Transactions(t, f.conn, f.driver.ID)
	require.Len(t, rows, 2)
	assert.Equal(t, domain.TxCashSettlement, rows[1].Type)
	assert.Zero(t, rows[1].Amount)
	assert.Equal(t, int64(-8500), rows[1].CashOwedDelta)
}

func TestSettleIsIdempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.reconciler.Settle(ctx, f.order.ID, f.owner.ID)
	require.NoError(t, err)
	_, err = f.reconciler.Settle(ctx, f.order.ID, f.owner.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadySettled)
	assert.ErrorIs(t, err, domain.ErrConflict)

	assert.Equal(t, int64(1275), testdb.Wallet(t, f.conn, f.driver.ID).CashOwed)
	assert.Len(t, testdb.Transactions(t, f.conn, f.driver.ID), 2)
}

func TestSettleGuardsAgainstExistingSettlementRow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.reconciler.Settle(ctx, f.order.ID, f.owner.ID)
	require.NoError(t, err)
	require.NoError(t, f.conn.Model(&domain.Order{}).Where("id = ?", f.order.ID).Update("cash_settled", false).Error)

	_, err = f.reconciler.Settle(ctx, f.order.ID, f.owner.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadySettled)
	assert.Equal(t, int64(1275), testdb.Wallet(t, f.conn, f.driver.ID).CashOwed)
}

func TestSettleFloorsCashOwedAtZero(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.ledger.Commit(ctx, wallet.Entry{
		UserID:        f.driver.ID,
		Type:          domain.TxCashRemittance,
		CashOwedDelta: -9000,
		Description:   "handed over at the hub",
	})
	require.NoError(t, err)

	res, err := f.reconciler.Settle(ctx, f.order.ID, f.owner.ID)
	require.NoError(t, err)
	assert.Zero(t, res.CashOwedAfter)
	assert.Equal(t, int64(-775), res.Transaction.CashOwedDelta)
	assert.Zero(t, testdb.Wallet(t, f.conn, f.driver.ID).CashOwed)
}

func TestSettleRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f fixture) (orderID, ownerID uint)
		want   error
	}{
		{
			name:   "unknown order",
			mutate: func(f fixture) (uint, uint) { return 9999, f.owner.ID },
			want:   domain.ErrNotFound,
		},
		{
			name:   "other business",
			mutate: func(f fixture) (uint, uint) { return f.order.ID, f.driver.ID },
			want:   domain.ErrForbidden,
		},
		{
			name: "card order",
			mutate: func(f fixture) (uint, uint) {
				f.conn.Model(&domain.Order{}).Where("id = ?", f.order.ID).Update("payment_method", domain.PaymentCard)
				return f.order.ID, f.owner.ID
			},
			want: domain.ErrValidation,
		},
		{
			name: "not delivered",
			mutate: func(f fixture) (uint, uint) {
				f.conn.Model(&domain.Order{}).Where("id = ?", f.order.ID).Update("status", domain.OrderOnTheWay)
				return f.order.ID, f.owner.ID
			},
			want: domain.ErrValidation,
		},
		{
			name: "no driver",
			mutate: func(f fixture) (uint, uint) {
				f.conn.Model(&domain.Order{}).Where("id = ?", f.order.ID).Update("driver_id", nil)
				return f.order.ID, f.owner.ID
			},
			want: domain.ErrValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			orderID, ownerID := tt.mutate(f)

			_, err := f.reconciler.Settle(context.Background(), orderID, ownerID)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, int64(9775), testdb.Wallet(t, f.conn, f.driver.ID).CashOwed)
		})
	}
}
