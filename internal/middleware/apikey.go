package middleware

import (
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/minipay/internal/apperr"
)

// HashAPIKey derives the bcrypt hash APIKey compares against, so the plain key
// is not kept in memory past startup.
func HashAPIKey(key string, cost int) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(key), cost)
}

// APIKey admits requests whose Authorization header matches the configured
// API key.
func APIKey(hash []byte) fiber.Handler {
	return func(c *fiber.Ctx) error {
		presented := c.Get(fiber.HeaderAuthorization)
		if presented == "" || bcrypt.CompareHashAndPassword(hash, []byte(presented)) != nil {
			return apperr.New(apperr.ErrUnauthenticated, "please ensure you have the correct api key")
		}
		return c.Next()
	}
}
