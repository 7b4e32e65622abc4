package main

import (
	"context"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/arielmonte/coinbarter/internal/auth"
	"github.com/arielmonte/coinbarter/internal/config"
	"github.com/arielmonte/coinbarter/internal/db"
	"github.com/arielmonte/coinbarter/internal/marketplace"
	"github.com/arielmonte/coinbarter/internal/messaging"
	mware "github.com/arielmonte/coinbarter/internal/middleware"
	"github.com/arielmonte/coinbarter/internal/user"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	pool, err := db.Connect(context.Background(), cfg)
	if err != nil {
		log.Fatalf("database error: %v", err)
	}
	defer pool.Close()

	authHandler := auth.NewHandler(pool, cfg)
	userHandler := user.NewHandler(pool)
	messageHandler := messaging.NewHandler(pool)

	marketSvc := marketplace.NewService(
		marketplace.NewPgListingStore(pool),
		marketplace.NewPgTransactionStore(pool),
	)
	marketHandler := marketplace.NewHandler(marketSvc)

	e := echo.New()
	e.HideBanner = true

	// Basic middleware
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORS())

	// Health and root routes
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if err := pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})

	// Auth routes with per-IP rate limiting to protect signup/login from abuse
	authGroup := e.Group("/api/auth")
	authGroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.AuthRateLimit))))
	authGroup.POST("/signup", authHandler.Signup)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/verify", authHandler.Verify, mware.JWT(cfg.JWTSecret))

	// Public marketplace routes. Echo resolves /api/listings/mine ahead of
	// the :id param route, so the detail route can stay public here.
	e.GET("/api/listings", marketHandler.GetListings)
	e.GET("/api/listings/:id", marketHandler.GetListing)

	// Protected routes
	api := e.Group("/api")
	api.Use(mware.JWT(cfg.JWTSecret))

	api.GET("/users/profile", userHandler.GetProfile)
	api.PUT("/users/profile", userHandler.UpdateProfile)

	api.GET("/listings/mine", marketHandler.GetUserListings)
	api.POST("/listings", marketHandler.CreateListing)
	api.PUT("/listings/:id", marketHandler.UpdateListing)
	api.DELETE("/listings/:id", marketHandler.DeleteListing)

	api.POST("/transactions", marketHandler.CreateTransaction)
	api.GET("/transactions", marketHandler.GetUserTransactions)
	api.PUT("/transactions/:id/status", marketHandler.UpdateTransactionStatus)
	api.POST("/transactions/:id/rate", marketHandler.RateTransaction)

	api.POST("/messages", messageHandler.SendMessage)
	api.GET("/messages", messageHandler.ListMessages)
	api.PUT("/messages/:id/read", messageHandler.MarkRead)

	log.Printf("API server listening on :%s", cfg.Port)
	if err := e.Start(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
