// Package funding exposes wallet top-ups over HTTP.
package funding

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/minipay/internal/middleware"
	"github.com/congo-pay/minipay/internal/payments"
	"github.com/congo-pay/minipay/internal/response"
	"github.com/congo-pay/minipay/internal/validation"
)

// Handler exposes HTTP endpoints for funding the caller's wallet.
type Handler struct {
	engine *payments.Engine
}

// NewHandler constructs a funding handler.
func NewHandler(engine *payments.Engine) *Handler {
	return &Handler{engine: engine}
}

// TopUp credits the caller's wallet. The response carries no balance; clients
// read it back with GET /user/balance.
func (h *Handler) TopUp(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	req, ok := validation.From[TopUpRequest](c)
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "amount is not valid")
	}

	if err := h.engine.TopUp(c.UserContext(), payments.TopUpInput{
		UserID:         p.UserID,
		Amount:         req.Amount,
		IdempotencyKey: middleware.IdempotencyKey(c),
	}); err != nil {
		return err
	}
	return response.OK(c, nil)
}
