package api

import (
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"strings"  // String manipulation
	"time"     // Time durations

	"delivery_ledger/internal/audit"      // Integrity audit
	"delivery_ledger/internal/cashdebt"   // Overdue sweep
	"delivery_ledger/internal/commission" // Commission rates
	"delivery_ledger/internal/domain"     // Importing domain models
	"delivery_ledger/internal/middleware" // Context keys
	"delivery_ledger/internal/utils"      // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
	"gorm.io/gorm"                 // GORM ORM library
)

// AdminListCacheTTL is how long admin listings are served from Redis
const AdminListCacheTTL = 15 * time.Second

// UserAdminResponse represents the user data returned to admin
type UserAdminResponse struct {
	ID            uint          `json:"id"`                       // User ID
	Username      string        `json:"username"`                 // Username
	Role          string        `json:"role"`                     // User role
	IsActive      bool          `json:"is_active"`                // False when blocked
	BlockedReason string        `json:"blocked_reason,omitempty"` // Why the account is blocked
	Wallet        domain.Wallet `json:"wallet"`                   // Associated wallet
}

// listPage is the shape of every paginated admin listing
type listPage[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	Cached     bool  `json:"cached"`
}

// ListUsersHandler returns users with their wallet and block status
func ListUsersHandler(db *gorm.DB, rdb redis.Cmdable) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		page, pageSize := pagination(c)
		role := c.Query("role") // Optional role filter
		cacheKey := "admin:users:role=" + role + ":page=" + strconv.Itoa(page) + ":size=" + strconv.Itoa(pageSize)

		var cached listPage[UserAdminResponse]
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			cached.Cached = true
			c.JSON(http.StatusOK, cached)
			return
		}

		query := db.WithContext(ctx).Model(&domain.User{})
		if role != "" {
			query = query.Where("role = ?", role)
		}
		var total int64
		if err := query.Count(&total).Error; err != nil {
			respondError(c, domain.Wrap(domain.KindInternal, "api.ListUsers", err))
			return
		}
		var users []domain.User
		// Preload Wallet relation, apply offset and limit for pagination
		if err := query.Preload("Wallet").Order("id").Offset((page - 1) * pageSize).Limit(pageSize).Find(&users).Error; err != nil {
			respondError(c, domain.Wrap(domain.KindInternal, "api.ListUsers", err))
			return
		}
		resp := listPage[UserAdminResponse]{
			Items:      make([]UserAdminResponse, len(users)),
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: (int(total) + pageSize - 1) / pageSize,
		}
		for i, u := range users {
			resp.Items[i] = UserAdminResponse{
				ID:            u.ID,
				Username:      u.Username,
				Role:          u.Role,
				IsActive:      u.IsActive,
				BlockedReason: u.BlockedReason,
				Wallet:        u.Wallet,
			}
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, AdminListCacheTTL) // Best effort
		c.JSON(http.StatusOK, resp)
	}
}

// parseTimeParam accepts RFC3339 or a plain date and returns Unix milliseconds
func parseTimeParam(v string) (int64, bool) {
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UnixMilli(), true
		}
	}
	return 0, false
}

// ListTransactionsHandler returns all transactions, with optional filtering by user, type, order or date
func ListTransactionsHandler(db *gorm.DB, rdb redis.Cmdable) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		page, pageSize := pagination(c)
		// Build cache key from all query params
		var keyParts []string
		for _, k := range []string{"user_id", "type", "order_id", "from", "to"} {
			keyParts = append(keyParts, k+"="+c.Query(k))
		}
		keyParts = append(keyParts, "page="+strconv.Itoa(page), "size="+strconv.Itoa(pageSize))
		cacheKey := "admin:txs:" + strings.Join(keyParts, ":")

		var cached listPage[domain.Transaction]
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			cached.Cached = true
			c.JSON(http.StatusOK, cached)
			return
		}

		query := db.WithContext(ctx).Model(&domain.Transaction{}) // Start building the query
		if userID := c.Query("user_id"); userID != "" {
			query = query.Where("wallet_id IN (?)", db.Model(&domain.Wallet{}).Select("id").Where("user_id = ?", userID))
		}
		if txType := c.Query("type"); txType != "" {
			if !domain.TransactionType(txType).Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown transaction type"})
				return
			}
			query = query.Where("type = ?", txType)
		}
		if orderID := c.Query("order_id"); orderID != "" {
			query = query.Where("order_id = ?", orderID)
		}
		for param, cond := range map[string]string{"from": "created_at >= ?", "to": "created_at <= ?"} {
			v := c.Query(param)
			if v == "" {
				continue
			}
			ms, ok := parseTimeParam(v)
			if !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param + " date"})
				return
			}
			query = query.Where(cond, ms)
		}

		var total int64
		if err := query.Count(&total).Error; err != nil {
			respondError(c, domain.Wrap(domain.KindInternal, "api.ListTransactions", err))
			return
		}
		txs := make([]domain.Transaction, 0, pageSize)
		if err := query.Order("created_at desc, id desc").Offset((page - 1) * pageSize).Limit(pageSize).Find(&txs).Error; err != nil {
			respondError(c, domain.Wrap(domain.KindInternal, "api.ListTransactions", err))
			return
		}
		resp := listPage[domain.Transaction]{
			Items:      txs,
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: (int(total) + pageSize - 1) / pageSize,
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, AdminListCacheTTL)
		c.JSON(http.StatusOK, resp)
	}
}

// AuditHandler runs a full integrity audit on demand
func AuditHandler(auditor *audit.Auditor) gin.HandlerFunc {
	return func(c *gin.Context) {
		rep := auditor.RunFullAudit(c.Request.Context())
		c.JSON(http.StatusOK, rep)
	}
}

// GetRatesHandler returns the active commission rates
func GetRatesHandler(rates *commission.RateStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, err := rates.Get(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"rates": r, "required_sum": commission.RequiredSum})
	}
}

// UpdateRatesHandler saves a new commission configuration
func UpdateRatesHandler(rates *commission.RateStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		adminID, ok := currentUserID(c)
		if !ok {
			return
		}
		var req commission.Rates
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if err := rates.Update(c.Request.Context(), req, adminID); err != nil {
			if domain.KindOf(err) == domain.KindConfiguration {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": domain.KindConfiguration})
				return
			}
			respondError(c, err)
			return
		}
		logrus.WithFields(logrus.Fields{
			"admin_id": adminID,                         // Who changed the rates
			"role":     c.GetString(middleware.RoleKey), // Checked role
		}).Info("Commission rates changed through admin API")
		c.JSON(http.StatusOK, gin.H{"message": "Rates updated", "rates": req})
	}
}

// SweepCashDebtHandler runs the overdue cash debt sweep on demand
func SweepCashDebtHandler(cash *cashdebt.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := cash.SweepOverdue(c.Request.Context())
		if err != nil {
			logrus.WithFields(logrus.Fields{"error": err.Error()}).Error("Cash debt sweep had failures")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Sweep finished with errors", "result": res})
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// ReinstateDriverHandler reactivates a driver blocked for cash debt that is no longer overdue
func ReinstateDriverHandler(cash *cashdebt.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID, ok := idParam(c, "id")
		if !ok {
			return
		}
		ctx := c.Request.Context()
		reinstated, err := cash.Reinstate(ctx, driverID)
		if err != nil {
			respondError(c, err)
			return
		}
		if !reinstated {
			overdue, err := cash.HasOverdueDebt(ctx, driverID)
			if err != nil {
				respondError(c, err)
				return
			}
			if overdue {
				c.JSON(http.StatusConflict, gin.H{"error": "Cash debt is still overdue"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"reinstated": reinstated}) // False when the account was not blocked
	}
}
