package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/minipay/internal/payments"
	"github.com/congo-pay/minipay/internal/validation"
)

// RegisterPaymentRoutes wires balance, transfer and history endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler, v *validation.Validator) {
	r.Get("/balance", h.Balance)
	r.Post("/transfer", validation.Body[payments.TransferRequest](v, "username is invalid"), h.Transfer)
	r.Get("/history", h.History)
}
