package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"coinsignals/controllers"
	"coinsignals/middleware"
	"coinsignals/services/credentials"
	"coinsignals/services/exchange"
	"coinsignals/services/trading"
)

// Deps bundles everything the HTTP surface needs
type Deps struct {
	DB        *gorm.DB
	Executor  *trading.Executor
	Creds     *credentials.Service
	Exchanges *exchange.Registry
	Metrics   *prometheus.Registry
	JWTSecret string
}

// SetupRoutes wires all API routes onto router
func SetupRoutes(router *gin.Engine, deps Deps) {
	signalController := controllers.NewSignalController(deps.DB)
	tradingController := controllers.NewTradingController(deps.DB, deps.Executor)
	pairController := controllers.NewPairController(deps.DB, deps.Exchanges)
	credentialsController := controllers.NewCredentialsController(deps.Creds, deps.Exchanges)

	tradeLimiter := middleware.NewRateLimiter(30, time.Minute)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ready", func(c *gin.Context) {
		sqlDB, err := deps.DB.DB()
		if err != nil || sqlDB.Ping() != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	{
		// Signal routes are read-only and public
		signals := api.Group("/signals")
		{
			signals.GET("", signalController.GetSignals)
			signals.GET("/:id", signalController.GetSignal)
		}

		// Everything below acts on behalf of a user
		authed := api.Group("", middleware.JWTAuth(deps.JWTSecret))
		{
			pairs := authed.Group("/pairs")
			{
				pairs.POST("", pairController.TrackPair)
				pairs.GET("", pairController.ListPairs)
				pairs.DELETE("/:exchange/:pair", pairController.UntrackPair)
			}

			authed.POST("/devices", pairController.RegisterDevice)
			authed.POST("/credentials", credentialsController.SaveCredentials)

			trades := authed.Group("/trades", tradeLimiter.Middleware())
			{
				trades.POST("", tradingController.ExecuteTrade)
				trades.POST("/:id/close", tradingController.CloseTrade)
				trades.GET("", tradingController.ListTrades)
			}
		}
	}
}
