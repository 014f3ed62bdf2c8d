package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/snaplink/snaplink/internal/http/util"
)

const ownerIDKey = "owner_id"

// OwnerAuth resolves a bearer token to an owner id and stores it in
// the request locals. Requests without a token pass through anonymous;
// requests with a bad token are rejected so a typo never silently
// downgrades to anonymous.
func OwnerAuth(signer *util.TokenSigner) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Next()
		}

		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "malformed authorization header",
			})
		}

		ownerID, err := signer.Verify(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired token",
			})
		}

		c.Locals(ownerIDKey, ownerID)
		return c.Next()
	}
}

// OwnerID returns the authenticated owner id, or empty for anonymous
// requests.
func OwnerID(c *fiber.Ctx) string {
	if v, ok := c.Locals(ownerIDKey).(string); ok {
		return v
	}
	return ""
}
