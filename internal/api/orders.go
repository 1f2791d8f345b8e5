package api

import (
	"net/http" // HTTP status codes

	"delivery_ledger/internal/cashdebt"   // Driver reinstatement
	"delivery_ledger/internal/settlement" // Cash reconciliation

	"github.com/gin-gonic/gin" // Gin web framework
)

// SettleHandler lets a business confirm it received the cash of an order,
// reopening the driver's account when that clears an overdue block
func SettleHandler(rec *settlement.Reconciler, cash *cashdebt.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := currentUserID(c)
		if !ok {
			return
		}
		orderID, ok := idParam(c, "id")
		if !ok {
			return
		}
		ctx := c.Request.Context()
		res, err := rec.Settle(ctx, orderID, ownerID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message":           "Order settled",
			"settlement":        res,
			"driver_reinstated": reinstate(ctx, cash, res.DriverID), // Driver account reopened
		})
	}
}
