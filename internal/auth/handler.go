package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/minipay/internal/response"
	"github.com/congo-pay/minipay/internal/validation"
)

// Handler exposes token refresh.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RefreshRequest is the body of POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

func (r *RefreshRequest) Trim() { r.RefreshToken = strings.TrimSpace(r.RefreshToken) }

// Refresh issues a new access token using a valid refresh token. It expects
// the body to have passed validation.Body[RefreshRequest].
func (h *Handler) Refresh(c *fiber.Ctx) error {
	req, ok := validation.From[RefreshRequest](c)
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "refresh token is required")
	}
	token, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return err
	}
	return response.OK(c, token)
}
