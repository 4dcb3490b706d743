package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"coinsignals/middleware"
	"coinsignals/models"
	"coinsignals/services/exchange"
)

// PairController manages tracked pairs and device registrations
type PairController struct {
	db       *gorm.DB
	registry *exchange.Registry
}

// NewPairController creates a new pair controller
func NewPairController(db *gorm.DB, registry *exchange.Registry) *PairController {
	return &PairController{db: db, registry: registry}
}

type trackPairRequest struct {
	Exchange string `json:"exchange" binding:"required"`
	Pair     string `json:"pair" binding:"required"`
}

type registerDeviceRequest struct {
	Token string `json:"token" binding:"required"`
}

// TrackPair subscribes the caller to scan (and be notified about) a pair
// POST /api/pairs
func (pc *PairController) TrackPair(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body trackPairRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := pc.registry.Get(body.Exchange); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Unsupported exchange"})
		return
	}

	tracked, err := models.UpsertTrackedPair(pc.db, userID, body.Exchange, body.Pair)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to track pair"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": tracked})
}

// ListPairs returns the caller's active tracked pairs
// GET /api/pairs
func (pc *PairController) ListPairs(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var pairs []models.TrackedPair
	err := pc.db.Where("user_id = ? AND is_active = ?", userID, true).
		Order("exchange, pair").Find(&pairs).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch pairs"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  pairs,
		"count": len(pairs),
	})
}

// UntrackPair deactivates one of the caller's tracked pairs
// DELETE /api/pairs/:exchange/:pair
func (pc *PairController) UntrackPair(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	res := pc.db.Model(&models.TrackedPair{}).
		Where("user_id = ? AND exchange = ? AND pair = ? AND is_active = ?",
			userID, c.Param("exchange"), c.Param("pair"), true).
		Update("is_active", false)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to untrack pair"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Pair not tracked"})
		return
	}

	c.Status(http.StatusNoContent)
}

// RegisterDevice stores a push token for the caller
// POST /api/devices
func (pc *PairController) RegisterDevice(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body registerDeviceRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	device, err := models.UpsertDeviceToken(pc.db, userID, body.Token)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register device"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": device})
}
