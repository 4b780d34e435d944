package middleware

import (
	"net/http"
	"strconv"
	"time"

	"eterna-home/pkg/config"
	"eterna-home/pkg/logger"
	"eterna-home/prometheus"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LoginRateLimiter limits login attempts per client IP. Exceeding the
// limit yields a 429 with a Retry-After hint.
func LoginRateLimiter(cfg *config.RateLimitConfig) echo.MiddlewareFunc {
	perSecond := rate.Limit(float64(cfg.LoginPerMinute) / 60.0)

	store := echomiddleware.NewRateLimiterMemoryStoreWithConfig(
		echomiddleware.RateLimiterMemoryStoreConfig{
			Rate:      perSecond,
			Burst:     cfg.LoginBurst,
			ExpiresIn: 3 * time.Minute,
		},
	)

	return echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "could not identify client"})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			logger.FromEcho(c).Warn("Login rate limit exceeded", zap.String("ip", identifier))
			prometheus.RecordAuthError("rate_limited")
			c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(cfg)))
			return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "too many login attempts"})
		},
	})
}

// retryAfterSeconds estimates how long until one token refills
func retryAfterSeconds(cfg *config.RateLimitConfig) int {
	if cfg.LoginPerMinute <= 0 {
		return 60
	}
	secs := 60 / cfg.LoginPerMinute
	if secs < 1 {
		secs = 1
	}
	return secs
}
