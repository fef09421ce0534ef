package accounts

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/minipay/internal/auth"
	"github.com/congo-pay/minipay/internal/response"
	"github.com/congo-pay/minipay/internal/validation"
)

// Handler exposes account creation.
type Handler struct {
	svc    *Service
	tokens *auth.Service
}

// NewHandler constructs an account handler.
func NewHandler(svc *Service, tokens *auth.Service) *Handler {
	return &Handler{svc: svc, tokens: tokens}
}

// CreateRequest is the body of POST /user/create.
type CreateRequest struct {
	Username string `json:"username" validate:"required,min=5,max=20,nospace"`
}

func (r *CreateRequest) Trim() { r.Username = strings.TrimSpace(r.Username) }

// Create registers the account and returns its first token pair.
func (h *Handler) Create(c *fiber.Ctx) error {
	req, ok := validation.From[CreateRequest](c)
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "username is required")
	}
	account, _, err := h.svc.Create(c.UserContext(), req.Username)
	if err != nil {
		return err
	}
	pair, err := h.tokens.Issue(account)
	if err != nil {
		return err
	}
	return response.Created(c, pair)
}
