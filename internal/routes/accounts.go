package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/minipay/internal/accounts"
	"github.com/congo-pay/minipay/internal/validation"
)

// RegisterAccountRoutes wires account creation behind the API key and the
// per-IP rate limit.
func RegisterAccountRoutes(r fiber.Router, h *accounts.Handler, v *validation.Validator, apiKey, rateLimiter fiber.Handler) {
	r.Post("/user/create",
		rateLimiter,
		apiKey,
		validation.Body[accounts.CreateRequest](v, "username is required"),
		h.Create,
	)
}
