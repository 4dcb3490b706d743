package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"coinsignals/models"
)

// SignalController serves generated trading signals
type SignalController struct {
	db *gorm.DB
}

// NewSignalController creates a new signal controller
func NewSignalController(db *gorm.DB) *SignalController {
	return &SignalController{db: db}
}

// GetSignals returns live signals, optionally filtered by exchange and pair
// GET /api/signals
func (ctrl *SignalController) GetSignals(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 200 {
		limit = 50
	}

	query := ctrl.db.Model(&models.Signal{}).
		Where("is_active = ? AND expires_at > ?", true, time.Now())
	if exchange := c.Query("exchange"); exchange != "" {
		query = query.Where("exchange = ?", exchange)
	}
	if pair := c.Query("pair"); pair != "" {
		query = query.Where("pair = ?", pair)
	}

	var signals []models.Signal
	if err := query.Order("created_at DESC").Limit(limit).Find(&signals).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch signals"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  signals,
		"count": len(signals),
	})
}

// GetSignal returns one signal by id, live or not
// GET /api/signals/:id
func (ctrl *SignalController) GetSignal(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signal id"})
		return
	}

	var signal models.Signal
	if err := ctrl.db.First(&signal, uint(id)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Signal not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": signal})
}
