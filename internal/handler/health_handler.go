package handler

import (
	"net/http"

	"eterna-home/pkg/database"
	"eterna-home/pkg/logger"
	"eterna-home/prometheus"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HealthCheck reports service liveness and database reachability
func HealthCheck(c echo.Context) error {
	log := logger.FromEcho(c)

	sqlDB, err := database.GetDB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request().Context())
	}
	if err != nil {
		log.Error("Health check database ping failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"status":   "degraded",
			"database": "unreachable",
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   "ok",
		"database": "ok",
	})
}

// MetricsHandler exposes Prometheus metrics
func MetricsHandler(c echo.Context) error {
	handler := prometheus.GetPrometheusHandler()
	handler.ServeHTTP(c.Response(), c.Request())
	return nil
}
