package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pixvault/backend/internal/metrics"
)

func RequestMetrics(collector *metrics.Collector) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		collector.RecordRequest(c.Method(), c.Response().StatusCode(), time.Since(start))
		return err
	}
}
