package transport

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/ohana-reunion/backend/config"
	"github.com/ohana-reunion/backend/internal/transport/middleware"
)

func InitRoutes(
	cfg *config.Config,
	redisClient *redis.Client,
	registrationHandler *RegistrationHandler,
	paymentHandler *PaymentHandler,
	adminHandler *AdminHandler,
) *gin.Engine {

	router := gin.New()

	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, X-Admin-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.Timeout(cfg.Server.Timeout))

	submitLimiter := middleware.RateLimit(
		redisClient,
		cfg.Registration.RateLimitCount,
		cfg.Registration.RateLimitWindow,
	)

	// API routes
	api := router.Group("/api/v1")
	{
		// Public catalog and registration
		api.GET("/tiers", registrationHandler.GetTiers)

		registrations := api.Group("/registrations")
		{
			registrations.POST("", submitLimiter, registrationHandler.SubmitRegistration)
			registrations.POST("/quote", registrationHandler.QuoteSubmission)
		}

		// Confirmation page lookup by public reference
		api.GET("/orders/:reference", registrationHandler.GetOrder)

		// Payment confirmation, both paths, plus the abandoned-checkout return
		api.GET("/checkout/return", paymentHandler.CheckoutReturn)
		api.GET("/checkout/cancel", paymentHandler.CheckoutCancel)
		api.POST("/webhooks/payment", paymentHandler.Webhook)

		// Organizer surface
		admin := api.Group("/admin", middleware.AdminAuth(cfg.Admin.Token))
		{
			tiers := admin.Group("/tiers")
			{
				tiers.POST("", adminHandler.CreateTier)
				tiers.GET("", adminHandler.GetAllTiers)
				tiers.PUT("/:id", adminHandler.UpdateTier)
				tiers.DELETE("/:id", adminHandler.DeleteTier)
			}

			orders := admin.Group("/orders")
			{
				orders.GET("", adminHandler.GetAllOrders)
				orders.GET("/export", adminHandler.ExportOrders)
				orders.GET("/:id", adminHandler.GetOrder)
				orders.PUT("/:id", adminHandler.OverwriteOrder)
				orders.POST("/:id/mark-paid", adminHandler.MarkPaid)
				orders.PATCH("/:id/participants/:index", adminHandler.UpdateParticipant)
				orders.DELETE("/:id/participants/:index", adminHandler.DeleteParticipant)
			}
		}
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return router
}
