package commission

import (
	"context"
	"errors"
	"sync"
	"time"

	"delivery_ledger/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DefaultRateTTL is how long loaded rates are served from memory.
const DefaultRateTTL = 5 * time.Minute

// RequiredSum is what Business+Driver must add up to: under the markup model
// both pass-through shares are whole.
var RequiredSum = decimal.NewFromInt(2)

// SumTolerance is the allowed deviation from RequiredSum.
var SumTolerance = decimal.RequireFromString("0.001")

// Rates are the commission fractions. Platform is a markup on the product
// base; Business and Driver are pass-through fractions.
type Rates struct {
	Platform decimal.Decimal `json:"platform"`
	Business decimal.Decimal `json:"business"`
	Driver   decimal.Decimal `json:"driver"`
}

// DefaultRates is used while no configuration row exists.
func DefaultRates() Rates {
	return Rates{Platform: DefaultMarkup, Business: decimal.NewFromInt(1), Driver: decimal.NewFromInt(1)}
}

// Sum is the value checked against RequiredSum.
func (r Rates) Sum() decimal.Decimal {
	return r.Business.Add(r.Driver)
}

// Validate rejects out-of-range rates and rate sets that break the required sum.
func (r Rates) Validate() error {
	const op = "commission.Rates.Validate"
	zero, one := decimal.Zero, decimal.NewFromInt(1)

	if r.Platform.LessThan(zero) || r.Platform.GreaterThan(one) {
		return domain.E(domain.KindConfiguration, op, "platform rate %s outside [0,1]", r.Platform)
	}
	if !r.Business.IsPositive() || r.Business.GreaterThan(one) {
		return domain.E(domain.KindConfiguration, op, "business rate %s outside (0,1]", r.Business)
	}
	if !r.Driver.IsPositive() || r.Driver.GreaterThan(one) {
		return domain.E(domain.KindConfiguration, op, "driver rate %s outside (0,1]", r.Driver)
	}
	if r.Sum().Sub(RequiredSum).Abs().GreaterThan(SumTolerance) {
		return domain.E(domain.KindConfiguration, op, "business+driver is %s, want %s", r.Sum(), RequiredSum)
	}
	return nil
}

// RateProvider is what consumers of the rates depend on.
type RateProvider interface {
	Get(ctx context.Context) (Rates, error)
}

// RateStore serves commission rates from the commission_configs table with a
// TTL cache. Updates go through Update, which invalidates the cache.
type RateStore struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
	log logrus.FieldLogger

	mu       sync.Mutex
	cached   *Rates
	loadedAt time.Time
}

// RateStoreOption customises a RateStore.
type RateStoreOption func(*RateStore)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) RateStoreOption {
	return func(s *RateStore) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) RateStoreOption {
	return func(s *RateStore) { s.log = log }
}

// NewRateStore builds a store. A non-positive ttl means DefaultRateTTL.
func NewRateStore(db *gorm.DB, ttl time.Duration, opts ...RateStoreOption) *RateStore {
	if ttl <= 0 {
		ttl = DefaultRateTTL
	}
	s := &RateStore{db: db, ttl: ttl, now: time.Now, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the active rates, loading and validating them when the cache is
// empty or stale. An invalid saved configuration is an error, never a default.
func (s *RateStore) Get(ctx context.Context) (Rates, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil && s.now().Sub(s.loadedAt) < s.ttl {
		return *s.cached, nil
	}

	rates, err := s.load(ctx)
	if err != nil {
		return Rates{}, err
	}
	s.cached = &rates
	s.loadedAt = s.now()
	return rates, nil
}

func (s *RateStore) load(ctx context.Context) (Rates, error) {
	const op = "commission.RateStore.load"

	var row domain.CommissionConfig
	err := s.db.WithContext(ctx).Order("created_at desc, id desc").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DefaultRates(), nil
	}
	if err != nil {
		return Rates{}, domain.Wrap(domain.KindInternal, op, err)
	}

	rates, err := parseRates(row)
	if err != nil {
		return Rates{}, err
	}
	if err := rates.Validate(); err != nil {
		s.log.WithFields(logrus.Fields{
			"config_id": row.ID,
			"error":     err.Error(),
		}).Error("Rejected commission configuration")
		return Rates{}, err
	}
	return rates, nil
}

func parseRates(row domain.CommissionConfig) (Rates, error) {
	const op = "commission.parseRates"
	var r Rates
	var err error
	if r.Platform, err = decimal.NewFromString(row.Platform); err != nil {
		return Rates{}, domain.Wrap(domain.KindConfiguration, op, err)
	}
	if r.Business, err = decimal.NewFromString(row.Business); err != nil {
		return Rates{}, domain.Wrap(domain.KindConfiguration, op, err)
	}
	if r.Driver, err = decimal.NewFromString(row.Driver); err != nil {
		return Rates{}, domain.Wrap(domain.KindConfiguration, op, err)
	}
	return r, nil
}

// Update validates and saves a new configuration, then drops the cache.
func (s *RateStore) Update(ctx context.Context, rates Rates, updatedBy uint) error {
	if err := rates.Validate(); err != nil {
		return err
	}
	row := domain.CommissionConfig{
		Platform:  rates.Platform.String(),
		Business:  rates.Business.String(),
		Driver:    rates.Driver.String(),
		UpdatedBy: updatedBy,
		CreatedAt: s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.Wrap(domain.KindInternal, "commission.RateStore.Update", err)
	}
	s.Invalidate()

	s.log.WithFields(logrus.Fields{
		"platform":   row.Platform,
		"business":   row.Business,
		"driver":     row.Driver,
		"updated_by": updatedBy,
	}).Info("Commission rates updated")
	return nil
}

// Invalidate drops the cached rates so the next Get reloads them.
func (s *RateStore) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}
