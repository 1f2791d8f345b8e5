package api

import (
	"net/http" // HTTP status codes

	"delivery_ledger/internal/domain" // Transaction types
	"delivery_ledger/internal/wallet" // Wallet ledger

	"github.com/gin-gonic/gin" // Gin web framework
)

// GetWalletHandler returns wallet info for the authenticated user
func GetWalletHandler(ledger *wallet.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		w, cached, err := ledger.GetWallet(c.Request.Context(), userID) // Cache-aside read
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"wallet": w, "cached": cached})
	}
}

// GetTransactionHistoryHandler pages through the authenticated user's transactions
func GetTransactionHistoryHandler(ledger *wallet.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		page, pageSize := pagination(c)
		res, err := ledger.ListTransactions(c.Request.Context(), userID, page, pageSize)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// WithdrawHandler pays out part of the balance; refused while the user owes cash
func WithdrawHandler(ledger *wallet.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req AmountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		amount, err := req.cents() // Exact centavos, no float rounding
		if err != nil {
			respondError(c, err)
			return
		}
		// Refused with 403 by the ledger while cash is owed
		tx, err := ledger.UpdateBalance(c.Request.Context(), userID, -amount, domain.TxWithdrawal, nil, "Withdrawal to bank account")
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Withdrawal successful", "transaction": tx})
	}
}
