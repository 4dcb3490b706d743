package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"coinsignals/middleware"
	"coinsignals/models"
	"coinsignals/services/trading"
)

// TradingController exposes trade execution over HTTP
type TradingController struct {
	db       *gorm.DB
	executor *trading.Executor
}

// NewTradingController creates a new trading controller
func NewTradingController(db *gorm.DB, executor *trading.Executor) *TradingController {
	return &TradingController{db: db, executor: executor}
}

type executeTradeRequest struct {
	SignalID uint   `json:"signal_id" binding:"required"`
	Exchange string `json:"exchange" binding:"required"`
	Pair     string `json:"pair" binding:"required"`
	Quantity string `json:"quantity"`
}

type closeTradeRequest struct {
	ClosePrice string `json:"close_price" binding:"required"`
}

// ExecuteTrade places a market order against a live signal
// POST /api/trades
func (tc *TradingController) ExecuteTrade(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body executeTradeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req := trading.Request{
		UserID:   userID,
		SignalID: body.SignalID,
		Exchange: body.Exchange,
		Pair:     body.Pair,
	}
	if body.Quantity != "" {
		qty, err := decimal.NewFromString(body.Quantity)
		if err != nil || qty.LessThanOrEqual(decimal.Zero) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quantity"})
			return
		}
		req.Quantity = qty
	}

	trade, err := tc.executor.Execute(c.Request.Context(), req)
	if err != nil {
		tc.writeExecuteError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": trade})
}

func (tc *TradingController) writeExecuteError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, trading.ErrTradeInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "A trade is already in progress for this pair"})
	case errors.Is(err, trading.ErrSignalUnavailable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Signal is expired or no longer active"})
	case errors.Is(err, trading.ErrCredentialsMissing):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Exchange credentials are not configured"})
	case errors.Is(err, trading.ErrOrderRejected):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Exchange rejected the order"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Trade execution failed"})
	}
}

// CloseTrade settles an open trade at the supplied price
// POST /api/trades/:id/close
func (tc *TradingController) CloseTrade(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid trade id"})
		return
	}

	var body closeTradeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	closePrice, err := decimal.NewFromString(body.ClosePrice)
	if err != nil || closePrice.LessThanOrEqual(decimal.Zero) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid close price"})
		return
	}

	// trades are only closable by their owner
	var trade models.Trade
	if err := tc.db.Where("id = ? AND user_id = ?", uint(id), userID).First(&trade).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Trade not found"})
		return
	}

	closed, err := tc.executor.Close(c.Request.Context(), trade.ID, closePrice)
	if errors.Is(err, trading.ErrTradeAlreadyClosed) {
		c.JSON(http.StatusConflict, gin.H{"error": "Trade is already closed"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to close trade"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": closed})
}

// ListTrades returns the caller's trades, newest first
// GET /api/trades
func (tc *TradingController) ListTrades(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	query := tc.db.Where("user_id = ?", userID)
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var trades []models.Trade
	if err := query.Order("executed_at DESC").Limit(100).Find(&trades).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch trades"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  trades,
		"count": len(trades),
	})
}
