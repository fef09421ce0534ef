package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/minipay/internal/funding"
	"github.com/congo-pay/minipay/internal/validation"
)

// RegisterFundingRoutes wires top-ups of the caller's wallet.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler, v *validation.Validator) {
	r.Post("/balance", validation.Body[funding.TopUpRequest](v, "amount is not valid"), h.TopUp)
}
