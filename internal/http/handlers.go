package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/GooferByte/tradesim/internal/apperr"
	"github.com/GooferByte/tradesim/internal/repository"
	"github.com/GooferByte/tradesim/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Router wires all handlers.
func Router(svc *service.TradeService, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logMiddleware(logger))

	r.POST("/accounts", func(c *gin.Context) {
		handleOpenAccount(c, svc, logger)
	})
	r.POST("/accounts/:accountId/watchlist", func(c *gin.Context) {
		handleAddWatchlist(c, svc, logger)
	})
	r.DELETE("/accounts/:accountId/watchlist/:symbol", func(c *gin.Context) {
		handleRemoveWatchlist(c, svc, logger)
	})
	r.GET("/accounts/:accountId/transactions", func(c *gin.Context) {
		handleTransactions(c, svc, logger)
	})
	r.POST("/trades", func(c *gin.Context) {
		handleTrade(c, svc, logger)
	})
	r.GET("/portfolio/:accountId", func(c *gin.Context) {
		handlePortfolio(c, svc, logger)
	})
	r.POST("/stocks/:symbol/refresh", func(c *gin.Context) {
		handleRefresh(c, svc, logger)
	})
	r.GET("/analytics/reasons", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"reasons": svc.ReasonStats()})
	})
	return r
}

type openAccountRequest struct {
	ID             string `json:"id"`
	Owner          string `json:"owner" binding:"required"`
	Role           string `json:"role"`
	ClassID        string `json:"classId"`
	InitialCapital string `json:"initialCapital"`
}

func handleOpenAccount(c *gin.Context, svc *service.TradeService, logger *logrus.Logger) {
	var req openAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	capital := decimal.Zero
	if req.InitialCapital != "" {
		var err error
		capital, err = decimal.NewFromString(req.InitialCapital)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "initialCapital must be a decimal string"})
			return
		}
	}
	account, err := svc.OpenAccount(c.Request.Context(), service.OpenAccountInput{
		ID:             req.ID,
		Owner:          req.Owner,
		Role:           req.Role,
		ClassID:        req.ClassID,
		InitialCapital: capital,
	})
	if err != nil {
		writeError(c, err, logger)
		return
	}
	c.JSON(http.StatusCreated, account)
}

type watchlistRequest struct {
	Symbol string `json:"symbol" binding:"required"`
}

func handleAddWatchlist(c *gin.Context, svc *service.TradeService, logger *logrus.Logger) {
	var req watchlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := svc.AddToWatchlist(c.Request.Context(), c.Param("accountId"), req.Symbol); err != nil {
		writeError(c, err, logger)
		return
	}
	c.Status(http.StatusNoContent)
}

func handleRemoveWatchlist(c *gin.Context, svc *service.TradeService, logger *logrus.Logger) {
	if err := svc.RemoveFromWatchlist(c.Request.Context(), c.Param("accountId"), c.Param("symbol")); err != nil {
		writeError(c, err, logger)
		return
	}
	c.Status(http.StatusNoContent)
}

type tradeRequest struct {
	AccountID string `json:"accountId" binding:"required"`
	Symbol    string `json:"symbol" binding:"required"`
	// Quantity must be a JSON integer; range checks happen in the gate.
	Quantity *int64 `json:"quantity" binding:"required"`
	Side     string `json:"side" binding:"required"`
	Reason   string `json:"reason"`
}

func handleTrade(c *gin.Context, svc *service.TradeService, logger *logrus.Logger) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "accountId, symbol, side and an integer quantity are required"})
		return
	}
	result, err := svc.Trade(c.Request.Context(), service.TradeInput{
		AccountID: req.AccountID,
		Symbol:    req.Symbol,
		Quantity:  *req.Quantity,
		Side:      req.Side,
		Reason:    req.Reason,
	})
	if err != nil {
		writeError(c, err, logger)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func handlePortfolio(c *gin.Context, svc *service.TradeService, logger *logrus.Logger) {
	view, err := svc.GetPortfolio(c.Request.Context(), c.Param("accountId"))
	if err != nil {
		writeError(c, err, logger)
		return
	}
	c.JSON(http.StatusOK, view)
}

func handleTransactions(c *gin.Context, svc *service.TradeService, logger *logrus.Logger) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	txns, err := svc.ListTransactions(c.Request.Context(), c.Param("accountId"), limit)
	if err != nil {
		writeError(c, err, logger)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

func handleRefresh(c *gin.Context, svc *service.TradeService, logger *logrus.Logger) {
	stock, err := svc.RefreshPrice(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		writeError(c, err, logger)
		return
	}
	c.JSON(http.StatusOK, stock)
}

// writeError renders err with its status and whatever structured context the
// caller needs to explain the rejection.
func writeError(c *gin.Context, err error, logger *logrus.Logger) {
	body := gin.H{"error": err.Error()}
	status := http.StatusInternalServerError

	var (
		funds    *apperr.InsufficientFundsError
		holdings *apperr.InsufficientHoldingsError
		stale    *apperr.StalePriceError
		perm     *apperr.PermissionError
	)
	switch {
	case errors.As(err, &funds):
		status = http.StatusUnprocessableEntity
		body["code"] = "insufficient_funds"
		body["cash"] = funds.Cash.String()
		body["required"] = funds.Required.String()
	case errors.As(err, &holdings):
		status = http.StatusUnprocessableEntity
		body["code"] = "insufficient_holdings"
		body["held"] = holdings.Held
		body["requested"] = holdings.Requested
	case errors.As(err, &stale):
		status = http.StatusConflict
		body["code"] = "stale_price"
		body["windowHours"] = stale.Window.Hours()
		if !stale.LastUpdate.IsZero() {
			body["lastUpdate"] = stale.LastUpdate.Format(time.RFC3339)
		}
	case errors.As(err, &perm):
		status = http.StatusForbidden
		body["code"] = "permission_denied"
		body["symbol"] = perm.Symbol
	case errors.Is(err, apperr.ErrValidation):
		status = http.StatusBadRequest
		body["code"] = "validation_error"
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
		body["code"] = "not_found"
	case errors.Is(err, apperr.ErrPriceUnavailable):
		status = http.StatusServiceUnavailable
		body["code"] = "price_unavailable"
	case errors.Is(err, apperr.ErrConcurrencyConflict):
		status = http.StatusConflict
		body["code"] = "concurrency_conflict"
		body["retryable"] = apperr.IsRetryable(err)
	case errors.Is(err, repository.ErrDuplicateAccount):
		status = http.StatusConflict
		body["code"] = "duplicate_account"
	default:
		logger.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
		body["error"] = "internal error"
	}
	c.JSON(status, body)
}

func logMiddleware(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"status":   c.Writer.Status(),
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"latency":  time.Since(start).String(),
			"clientIP": c.ClientIP(),
		}).Info("request completed")
	}
}
