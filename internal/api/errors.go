package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/neoxmeet/meet-backend/internal/api/handlers"
	"github.com/neoxmeet/meet-backend/internal/services"
)

// ErrorHandler renders errors that escape handlers as {error, code}
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"

	var fiberErr *fiber.Error
	var svcErr *services.Error
	switch {
	case errors.As(err, &fiberErr):
		code = fiberErr.Code
		message = fiberErr.Message
	case errors.As(err, &svcErr):
		code = handlers.StatusOf(err)
		message = svcErr.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}
