package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RateLimit limits requests per authenticated user, or per IP for anonymous
// callers
func RateLimit(scope string, max int, expiration time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: expiration,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID := c.Locals("user_id"); userID != nil {
				return fmt.Sprintf("%s:user:%s", scope, userID)
			}
			return fmt.Sprintf("%s:ip:%s", scope, c.IP())
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded. Please try again later.",
				"code":  fiber.StatusTooManyRequests,
			})
		},
	})
}

// AIRateLimit guards the provider-backed endpoints (30 per minute)
func AIRateLimit() fiber.Handler {
	return RateLimit("ai", 30, time.Minute)
}

// CommandRateLimit guards transcription start/stop (60 per minute)
func CommandRateLimit() fiber.Handler {
	return RateLimit("command", 60, time.Minute)
}
