package api

import (
	"errors"   // Error unwrapping
	"net/http" // HTTP status codes
	"strconv"  // String conversion

	"delivery_ledger/internal/domain"     // Error kinds
	"delivery_ledger/internal/middleware" // Context keys

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/shopspring/decimal" // Peso amounts
	"github.com/sirupsen/logrus"    // Logging library
)

// AmountRequest carries a peso amount such as "125.50"
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"` // Pesos, at most two decimals
}

// cents converts the request amount to positive centavos
func (r AmountRequest) cents() (int64, error) {
	if !r.Amount.IsPositive() {
		return 0, domain.E(domain.KindValidation, "api.AmountRequest", "amount must be positive")
	}
	return domain.ToCents(r.Amount)
}

// statusFor maps an error kind to its HTTP status
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindInsufficientBalance:
		return http.StatusPaymentRequired
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as JSON; internal details are logged, never returned
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"path":  c.FullPath(), // Route
			"error": err.Error(),  // Error message
		}).Error("Request failed")
		c.JSON(status, gin.H{"error": "Internal error"})
		return
	}
	msg := err.Error()
	var de *domain.Error
	if errors.As(err, &de) && de.Msg != "" {
		msg = de.Msg // Drop the operation prefix
	}
	c.JSON(status, gin.H{"error": msg, "kind": domain.KindOf(err)})
}

// currentUserID returns the caller set by the JWT middleware
func currentUserID(c *gin.Context) (uint, bool) {
	v, exists := c.Get(middleware.UserIDKey)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return 0, false
	}
	return v.(uint), true
}

// idParam parses a positive numeric path parameter
func idParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(v), true
}

// pagination reads page and page_size, defaulting to 1 and 20
func pagination(c *gin.Context) (page, pageSize int) {
	page, pageSize = 1, 20
	if v, err := strconv.Atoi(c.Query("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(c.Query("page_size")); err == nil && v > 0 && v <= 100 {
		pageSize = v
	}
	return page, pageSize
}
