package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/minipay/internal/auth"
	"github.com/congo-pay/minipay/internal/validation"
)

// RegisterAuthRoutes wires token endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, v *validation.Validator) {
	group := r.Group("/auth")
	group.Post("/refresh", validation.Body[auth.RefreshRequest](v, "refresh token is required"), h.Refresh)
}
