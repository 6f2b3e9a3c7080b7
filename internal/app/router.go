package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ridedeck/internal/domain"
	"ridedeck/internal/handler"
	"ridedeck/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler   *handler.RideHandler
	DriverHandler *handler.DriverHandler
	JWTSecret     []byte
	RedisClient   *redis.Client
	NewRelicApp   *newrelic.Application
	Logger        logrus.FieldLogger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.CORSMiddleware())

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// A nil *redis.Client must not reach the middleware as a non-nil interface.
	var idempotencyStore redis.Cmdable
	if deps.RedisClient != nil {
		idempotencyStore = deps.RedisClient
	}

	v1 := router.Group("/v1")
	v1.Use(middleware.Auth(deps.JWTSecret))
	v1.Use(middleware.IdempotencyMiddleware(idempotencyStore, deps.Logger))
	{
		riderOnly := middleware.RequireRole(domain.RoleRider)
		driverOnly := middleware.RequireRole(domain.RoleDriver)

		rides := v1.Group("/rides")
		{
			rides.POST("/estimate", deps.RideHandler.Estimate)
			rides.POST("", riderOnly, deps.RideHandler.Book)
			rides.POST("/schedule", riderOnly, deps.RideHandler.Schedule)
			rides.GET("/available", driverOnly, deps.RideHandler.ListAvailable)
			rides.GET("/current", deps.RideHandler.Current)
			rides.GET("/history", deps.RideHandler.History)
			rides.GET("/:id", deps.RideHandler.Get)

			rides.POST("/:id/offers", driverOnly, deps.RideHandler.Offer)
			rides.POST("/:id/accept", driverOnly, deps.RideHandler.Accept)
			rides.POST("/:id/accept-offer", riderOnly, deps.RideHandler.AcceptOffer)
			rides.POST("/:id/boost", riderOnly, deps.RideHandler.Boost)
			rides.POST("/:id/counter", riderOnly, deps.RideHandler.Counter)

			rides.POST("/:id/status", deps.RideHandler.UpdateStatus)
			rides.POST("/:id/cancel", deps.RideHandler.Cancel)
			rides.POST("/:id/messages", deps.RideHandler.SendMessage)
			rides.POST("/:id/rate", deps.RideHandler.Rate)
			rides.POST("/:id/sos", deps.RideHandler.SOS)
		}

		drivers := v1.Group("/drivers/me", driverOnly)
		{
			drivers.POST("/online", deps.DriverHandler.SetOnline)
			drivers.POST("/location", deps.DriverHandler.UpdateLocation)
		}
	}

	return router
}
