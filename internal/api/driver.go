package api

import (
	"context"  // Request context
	"net/http" // HTTP status codes

	"delivery_ledger/internal/cashdebt" // Cash debt policy
	"delivery_ledger/internal/payout"   // Delivery completion

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// CashStatusHandler tells a driver what they owe and whether cash orders are open to them
func CashStatusHandler(cash *cashdebt.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID, ok := currentUserID(c)
		if !ok {
			return
		}
		d, err := cash.CanAcceptCashOrder(c.Request.Context(), driverID)
		if err != nil {
			respondError(c, err)
			return
		}
		canWithdraw, withdrawReason, err := cash.CanWithdraw(c.Request.Context(), driverID)
		if err != nil {
			respondError(c, err)
			return
		}
		policy := cash.Policy()
		c.JSON(http.StatusOK, gin.H{
			"cash_owed":              d.CashOwed,            // Centavos
			"max_cash_owed":          policy.MaxCashOwed,    // Centavos
			"can_accept_cash_orders": d.Allowed,             // Gate for cash order assignment
			"reason":                 d.Reason,              // Why not, when blocked
			"overdue":                d.Overdue,             // Oldest cash order past the block limit
			"pending_days":           d.PendingDays,         // Age of the oldest unsettled cash order
			"block_after_days":       policy.BlockAfterDays, // Policy limit
			"can_withdraw":           canWithdraw,           // Withdrawals wait until cash is paid
			"withdraw_reason":        withdrawReason,        // Why withdrawals are blocked
		})
	}
}

// RemitHandler lets a driver pay cash debt out of the wallet balance
func RemitHandler(cash *cashdebt.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req AmountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		amount, err := req.cents()
		if err != nil {
			respondError(c, err)
			return
		}
		ctx := c.Request.Context()
		tx, err := cash.RemitFromBalance(ctx, driverID, amount)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":     "Cash debt paid",
			"transaction": tx,
			"reinstated":  reinstate(ctx, cash, driverID), // Account reopened by this payment
		})
	}
}

// DeliverHandler confirms delivery of an order and pays it out
func DeliverHandler(dist *payout.Distributor) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID, ok := currentUserID(c)
		if !ok {
			return
		}
		orderID, ok := idParam(c, "id")
		if !ok {
			return
		}
		res, err := dist.CompleteDelivery(c.Request.Context(), orderID, driverID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// reinstate reopens a driver account blocked for cash debt once the debt is
// no longer overdue; failures are logged and do not fail the request
func reinstate(ctx context.Context, cash *cashdebt.Tracker, driverID uint) bool {
	ok, err := cash.Reinstate(ctx, driverID)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"driver_id": driverID,    // Driver
			"error":     err.Error(), // Error message
		}).Error("Driver reinstatement failed")
		return false
	}
	return ok
}
