// Package api wires the HTTP router and server for the backlink engine.
package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ranklite/backlink-engine/internal/config"
	"github.com/ranklite/backlink-engine/internal/handlers"
	"github.com/ranklite/backlink-engine/internal/logger"
	"github.com/ranklite/backlink-engine/internal/middleware"
)

const corsMaxAgeHours = 12

// NewRouter builds the gin engine with middleware and all routes.
func NewRouter(
	cfg *config.Config,
	engineHandler *handlers.EngineHandler,
	participantHandler *handlers.ParticipantHandler,
	creditHandler *handlers.CreditHandler,
	log logger.Logger,
) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	if len(cfg.Server.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.Server.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			AllowCredentials: true,
			MaxAge:           corsMaxAgeHours * time.Hour,
		}))
	}

	router.Use(requestLogger(log))
	router.Use(gin.Recovery())
	router.Use(middleware.RateLimiter(cfg.Server.RateLimitRequests, cfg.Server.RateLimitWindow, nil))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")

	participants := v1.Group("/participants")
	participants.POST("", participantHandler.Register)
	participants.POST("/:id/verify", participantHandler.Verify)
	participants.POST("/:id/verify/retry", participantHandler.RetryVerification)
	participants.PATCH("/:id/active", participantHandler.SetActive)
	participants.GET("/:id/credits", creditHandler.Balance)
	participants.POST("/:id/credits", creditHandler.Apply)
	participants.POST("/:id/credits/reconcile", creditHandler.Reconcile)

	users := v1.Group("/users/:userId")
	users.GET("/participants", participantHandler.List)
	users.POST("/exchange/cycle", engineHandler.RunExchangeCycle)
	users.POST("/worker/cycle", engineHandler.RunWorkerCycle)
	users.GET("/queue/stats", engineHandler.QueueStats)

	v1.POST("/plans", engineHandler.GeneratePlan)
	v1.POST("/tasks/:id/requeue", engineHandler.RequeueTask)
	v1.GET("/links/:id", creditHandler.GetLink)

	return router
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		log.Info("HTTP request",
			logger.String("method", method),
			logger.String("path", path),
			logger.Int("status_code", c.Writer.Status()),
			logger.String("client_ip", c.ClientIP()),
			logger.Duration("duration", time.Since(start)),
		)
	}
}
