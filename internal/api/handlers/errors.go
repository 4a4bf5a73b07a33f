package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/neoxmeet/meet-backend/internal/services"
)

// StatusOf maps a service error to an HTTP status
func StatusOf(err error) int {
	switch services.KindOf(err) {
	case services.KindValidation:
		return fiber.StatusBadRequest
	case services.KindUnauthorized:
		return fiber.StatusUnauthorized
	case services.KindForbidden:
		return fiber.StatusForbidden
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindUpstream:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes the {error, code} body for err. *fiber.Error values
// go to the app's ErrorHandler unchanged.
func respondError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe
	}
	code := StatusOf(err)
	return c.Status(code).JSON(fiber.Map{
		"error": services.MessageOf(err),
		"code":  code,
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": message,
		"code":  fiber.StatusBadRequest,
	})
}
