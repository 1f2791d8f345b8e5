package wallet

import (
	"context"

	"delivery_ledger/internal/domain"
	"delivery_ledger/internal/utils"

	"github.com/sirupsen/logrus"
)

// MaxPageSize caps ListTransactions pages.
const MaxPageSize = 100

// TransactionPage is one page of a wallet's history, newest first.
type TransactionPage struct {
	Transactions []domain.Transaction `json:"transactions"`
	Page         int                  `json:"page"`
	PageSize     int                  `json:"page_size"`
	Total        int64                `json:"total"`
	TotalPages   int                  `json:"total_pages"`
}

// GetWallet returns a possibly stale snapshot of the user's wallet, served
// from Redis when cached. Reads never take the row lock.
func (l *Ledger) GetWallet(ctx context.Context, userID uint) (*domain.Wallet, bool, error) {
	key := utils.WalletKey(userID)
	var cached domain.Wallet
	found, err := utils.GetCache(ctx, l.rdb, key, &cached)
	if err == nil && found {
		return &cached, true, nil
	}
	if err != nil {
		l.log.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("Wallet cache read failed")
	}

	w, err := l.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if err := utils.SetCache(ctx, l.rdb, key, w, utils.WalletCacheTTL); err != nil {
		l.log.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Warn("Wallet cache write failed")
	}
	return w, false, nil
}

// ListTransactions pages through the user's transactions, newest first.
func (l *Ledger) ListTransactions(ctx context.Context, userID uint, page, pageSize int) (*TransactionPage, error) {
	const op = "wallet.ListTransactions"
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		pageSize = 20
	}

	w, err := l.GetOrCreateWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	conn := l.db.WithContext(ctx)
	var total int64
	if err := conn.Model(&domain.Transaction{}).Where("wallet_id = ?", w.ID).Count(&total).Error; err != nil {
		return nil, domain.Wrap(domain.KindInternal, op, err)
	}
	txs := make([]domain.Transaction, 0, pageSize)
	err = conn.Where("wallet_id = ?", w.ID).
		Order("created_at desc, id desc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&txs).Error
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, op, err)
	}

	return &TransactionPage{
		Transactions: txs,
		Page:         page,
		PageSize:     pageSize,
		Total:        total,
		TotalPages:   (int(total) + pageSize - 1) / pageSize,
	}, nil
}
