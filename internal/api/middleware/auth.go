package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/neoxmeet/meet-backend/internal/auth"
	"github.com/neoxmeet/meet-backend/internal/models"
)

const userContextKey = "user_context"

// TokenValidator validates access tokens issued by the identity service
type TokenValidator interface {
	ValidateAccessToken(token string) (*auth.AccessClaims, error)
}

// AuthRequired rejects requests without a valid Bearer access token
func AuthRequired(validator TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := auth.ExtractTokenFromBearer(c.Get(fiber.HeaderAuthorization))
		if token == "" {
			return unauthorized(c, "Authentication required")
		}
		if err := authenticate(c, validator, token); err != nil {
			return unauthorized(c, "Invalid or expired token")
		}
		return c.Next()
	}
}

// WebSocketAuth authenticates websocket upgrades. Browsers cannot set headers
// on a websocket handshake, so the token may also come as ?token=.
func WebSocketAuth(validator TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Query("token")
		if token == "" {
			token = auth.ExtractTokenFromBearer(c.Get(fiber.HeaderAuthorization))
		}
		if token == "" || authenticate(c, validator, token) != nil {
			return unauthorized(c, "Authentication required for WebSocket")
		}
		return c.Next()
	}
}

func authenticate(c *fiber.Ctx, validator TokenValidator, token string) error {
	claims, err := validator.ValidateAccessToken(token)
	if err != nil {
		return err
	}
	userID, err := claims.UserID()
	if err != nil {
		return err
	}
	c.Locals("user_id", userID.String())
	c.Locals(userContextKey, &models.UserContext{UserID: userID, Email: claims.Email})
	return nil
}

func unauthorized(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": message,
		"code":  fiber.StatusUnauthorized,
	})
}

// GetUserContext retrieves the user context from the fiber context
func GetUserContext(c *fiber.Ctx) *models.UserContext {
	if ctx := c.Locals(userContextKey); ctx != nil {
		if userContext, ok := ctx.(*models.UserContext); ok {
			return userContext
		}
	}
	return nil
}

// ErrNotAuthenticated is returned by GetUserID outside authenticated routes
var ErrNotAuthenticated = errors.New("user not authenticated")

// GetUserID retrieves the user ID from the fiber context
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	if uc := GetUserContext(c); uc != nil {
		return uc.UserID, nil
	}
	return uuid.Nil, ErrNotAuthenticated
}
