package handlers

import "github.com/gofiber/fiber/v2"

// Health handles GET /api/v1/health
func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "neoxmeet-backend",
	})
}
