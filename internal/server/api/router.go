package api

import (
	"fmt"

	"melodex/internal/server/config"
	"melodex/internal/server/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, auth *service.Auth, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{cfg.BaseURL},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
	}))
	e.Use(RequestLogger())

	// Rate limiter on the login endpoint only; the lockout guard handles
	// sustained credential guessing, this sheds request floods.
	loginLimiter := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	admin := RequireAdmin(auth)

	// Health
	e.GET("/health", handler.HandleHealth)

	// Account lifecycle
	e.POST("/api/setup", handler.HandleSetup)
	e.POST("/api/login", handler.HandleLogin, loginLimiter.Middleware())
	e.POST("/api/logout", handler.HandleLogout)
	e.GET("/api/session", handler.HandleSession)

	// Library
	e.GET("/api/music", handler.HandleListMusic)
	e.GET("/music/:filename", handler.HandleServeMusic)
	e.GET("/ws", handler.HandleWS)

	// Admin-only mutations
	e.POST("/api/upload", handler.HandleUpload, admin,
		middleware.BodyLimit(fmt.Sprintf("%dM", cfg.MaxUploadSize/(1024*1024))))
	e.POST("/api/delete/batch", handler.HandleDeleteBatch, admin)
	e.POST("/api/admin/change-username", handler.HandleChangeUsername, admin)
	e.POST("/api/admin/change-password", handler.HandleChangePassword, admin)

	return e
}
