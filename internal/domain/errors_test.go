package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesByKind(t *testing.T) {
	err := E(KindInsufficientBalance, "wallet.UpdateBalance", "balance %d below debit %d", 10, 20)
	wrapped := fmt.Errorf("withdraw: %w", err)

	assert.ErrorIs(t, wrapped, ErrInsufficientBalance)
	assert.NotErrorIs(t, wrapped, ErrNotFound)
	assert.Equal(t, KindInsufficientBalance, KindOf(wrapped))
	assert.Equal(t, "wallet.UpdateBalance: balance 10 below debit 20", err.Error())
}

func TestAlreadySettledIsConflict(t *testing.T) {
	assert.ErrorIs(t, ErrAlreadySettled, ErrConflict)
	assert.NotErrorIs(t, E(KindConflict, "x", "other conflict"), ErrAlreadySettled)

	wrapped := &Error{Kind: KindConflict, Op: "settlement.Settle", Msg: ErrAlreadySettled.Msg}
	assert.ErrorIs(t, wrapped, ErrAlreadySettled)
}

func TestKindOfForeignError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindNotFound, KindOf(Wrap(KindNotFound, "op", errors.New("record not found"))))
}
