package web

import (
	"net/http"
	"time"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"
)

// CorsMiddleware handles CORS headers for cross-origin requests from the
// tracker UI.
func CorsMiddleware(c rweb.Context) error {
	c.Response().SetHeader("Access-Control-Allow-Origin", "*")
	c.Response().SetHeader("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
	c.Response().SetHeader("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

	// Handle preflight OPTIONS requests
	if c.Request().Method() == "OPTIONS" {
		c.SetStatus(http.StatusOK)
		return nil
	}

	return c.Next()
}

// LoggingMiddleware provides request logging with timing.
func LoggingMiddleware(c rweb.Context) error {
	start := time.Now()

	err := c.Next()

	logger.Debug("Request completed",
		"method", c.Request().Method(),
		"path", c.Request().Path(),
		"duration", time.Since(start),
		"error", err,
	)

	return err
}
