package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/minipay/internal/apperr"
	"github.com/congo-pay/minipay/internal/auth"
)

const principalLocalsKey = "principal"

// RequirePrincipal resolves the bearer access token and stores the caller for
// downstream handlers.
func RequirePrincipal(tokens *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, err := tokens.Resolve(bearerToken(c.Get(fiber.HeaderAuthorization)))
		if err != nil {
			return err
		}
		c.Locals(principalLocalsKey, p)
		return c.Next()
	}
}

// PrincipalFrom returns the caller stored by RequirePrincipal.
func PrincipalFrom(c *fiber.Ctx) (auth.Principal, bool) {
	p, ok := c.Locals(principalLocalsKey).(auth.Principal)
	return p, ok && p.UserID != ""
}

// MustPrincipal is PrincipalFrom for handlers mounted behind RequirePrincipal.
func MustPrincipal(c *fiber.Ctx) (auth.Principal, error) {
	p, ok := PrincipalFrom(c)
	if !ok {
		return auth.Principal{}, apperr.New(apperr.ErrUnauthenticated, "access token is required")
	}
	return p, nil
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len("bearer ") || !strings.EqualFold(header[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("bearer "):])
}
