package commission

import (
	"context"
	"testing"
	"time"

	"delivery_ledger/internal/domain"
	"delivery_ledger/internal/testdb"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rates(platform, business, driver string) Rates {
	return Rates{
		Platform: decimal.RequireFromString(platform),
		Business: decimal.RequireFromString(business),
		Driver:   decimal.RequireFromString(driver),
	}
}

func TestRatesValidate(t *testing.T) {
	tests := []struct {
		name    string
		r       Rates
		wantErr bool
	}{
		{name: "defaults", r: DefaultRates()},
		{name: "zero markup", r: rates("0", "1", "1")},
		{name: "full markup", r: rates("1", "1", "1")},
		{name: "within tolerance", r: rates("0.15", "0.9995", "1")},
		{name: "outside tolerance", r: rates("0.15", "0.998", "1"), wantErr: true},
		{name: "negative platform", r: rates("-0.01", "1", "1"), wantErr: true},
		{name: "platform above one", r: rates("1.01", "1", "1"), wantErr: true},
		{name: "zero business", r: rates("0.15", "0", "1"), wantErr: true},
		{name: "business above one", r: rates("0.15", "1.1", "0.9"), wantErr: true},
		{name: "zero driver", r: rates("0.15", "1", "0"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.r.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrConfiguration)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRateStoreDefaultsWhenEmpty(t *testing.T) {
	store := NewRateStore(testdb.Open(t), 0)

	got, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, got.Platform.Equal(DefaultMarkup))
	assert.True(t, got.Sum().Equal(RequiredSum))
}

func TestRateStoreCachesUntilTTL(t *testing.T) {
	conn := testdb.Open(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewRateStore(conn, 5*time.Minute, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, rates("0.15", "1", "1"), 1))
	first, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.15", first.Platform.String())

	// A write that bypasses Update is invisible until the TTL passes.
	require.NoError(t, conn.Create(&domain.CommissionConfig{
		Platform: "0.2", Business: "1", Driver: "1", CreatedAt: now.Add(time.Second),
	}).Error)

	now = now.Add(4 * time.Minute)
	cached, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.15", cached.Platform.String())

	now = now.Add(2 * time.Minute)
	fresh, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.2", fresh.Platform.String())
}

func TestRateStoreUpdateInvalidates(t *testing.T) {
	store := NewRateStore(testdb.Open(t), time.Hour)
	ctx := context.Background()

	_, err := store.Get(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Update(ctx, rates("0.1", "1", "1"), 7))
	got, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.1", got.Platform.String())
}

func TestRateStoreUpdateRejectsInvalid(t *testing.T) {
	conn := testdb.Open(t)
	store := NewRateStore(conn, time.Hour)

	err := store.Update(context.Background(), rates("0.15", "0.9", "1"), 7)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	var count int64
	require.NoError(t, conn.Model(&domain.CommissionConfig{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRateStoreRejectsInvalidSavedConfig(t *testing.T) {
	conn := testdb.Open(t)
	require.NoError(t, conn.Create(&domain.CommissionConfig{
		Platform: "1.5", Business: "1", Driver: "1", CreatedAt: time.Now().UTC(),
	}).Error)

	_, err := NewRateStore(conn, 0).Get(context.Background())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestRateStoreRejectsUnparseableConfig(t *testing.T) {
	conn := testdb.Open(t)
	require.NoError(t, conn.Create(&domain.CommissionConfig{
		Platform: "fifteen", Business: "1", Driver: "1", CreatedAt: time.Now().UTC(),
	}).Error)

	_, err := NewRateStore(conn, 0).Get(context.Background())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
