package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coinsignals/middleware"
	"coinsignals/services/credentials"
	"coinsignals/services/exchange"
)

// CredentialsController manages per-user exchange API keys
type CredentialsController struct {
	creds    *credentials.Service
	registry *exchange.Registry
}

// NewCredentialsController creates a new credentials controller
func NewCredentialsController(creds *credentials.Service, registry *exchange.Registry) *CredentialsController {
	return &CredentialsController{creds: creds, registry: registry}
}

type saveCredentialsRequest struct {
	Exchange string `json:"exchange" binding:"required"`
	APIKey   string `json:"api_key" binding:"required"`
	Secret   string `json:"secret" binding:"required"`
}

// SaveCredentials stores exchange keys for the caller and validates them
// with a balance probe before marking them usable.
// POST /api/credentials
func (cc *CredentialsController) SaveCredentials(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var body saveCredentialsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client, err := cc.registry.Get(body.Exchange)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Unsupported exchange"})
		return
	}

	if err := cc.creds.Save(userID, body.Exchange, body.APIKey, body.Secret); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store credentials"})
		return
	}

	probe := exchange.Credentials{Key: body.APIKey, Secret: body.Secret}
	if _, err := client.FetchBalance(c.Request.Context(), probe, "USDT"); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": "Credentials stored but rejected by the exchange",
		})
		return
	}

	if err := cc.creds.MarkValidated(userID, body.Exchange); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate credentials"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{
		"exchange":  body.Exchange,
		"validated": true,
	}})
}
