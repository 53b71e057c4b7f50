package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	custommiddleware "tradeguard/internal/middleware"
)

// RouterConfig holds all dependencies for routing
type RouterConfig struct {
	AuthHandler   *AuthHandler
	AdminHandler  *AdminHandler
	Authenticator *custommiddleware.Authenticator
	Logger        *zap.Logger
	Service       string
	Now           func() time.Time
}

// SetupRoutes configures all HTTP routes. The auth and admin routes are only
// mounted when an Authenticator is configured.
func SetupRoutes(e *echo.Echo, config *RouterConfig) {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := config.Now
	if now == nil {
		now = time.Now
	}

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/health"
		},
		LogURI:      true,
		LogMethod:   true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				logger.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Secure())

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return SuccessResponse(c, map[string]interface{}{
			"status":    "healthy",
			"service":   config.Service,
			"timestamp": now().Format(time.RFC3339),
		})
	})

	if config.Authenticator == nil || config.AuthHandler == nil || config.AdminHandler == nil {
		return
	}

	api := e.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/login", config.AuthHandler.Login)
		auth.POST("/logout", config.AuthHandler.Logout)
	}

	admin := api.Group("/admin", config.Authenticator.Middleware, custommiddleware.AdminMiddleware)
	{
		admin.GET("/system/health", config.AdminHandler.GetSystemHealth)
		admin.GET("/positions/open", config.AdminHandler.GetOpenPositions)
		admin.GET("/positions/stuck", config.AdminHandler.GetStuckPositions)
		admin.POST("/positions/:id/release", config.AdminHandler.ReleaseClaim)
		admin.GET("/passes/last", config.AdminHandler.GetLastPass)
		admin.POST("/passes/run", config.AdminHandler.TriggerPass)
	}
}
