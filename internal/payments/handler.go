package payments

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/minipay/internal/ledger"
	"github.com/congo-pay/minipay/internal/middleware"
	"github.com/congo-pay/minipay/internal/response"
	"github.com/congo-pay/minipay/internal/validation"
)

// Handler exposes transfer, balance and history endpoints.
type Handler struct {
	engine *Engine
}

// NewHandler constructs a payment handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// TransferRequest is the body of POST /user/transfer.
type TransferRequest struct {
	Username string `json:"username" validate:"required,min=5,max=20,nospace"`
	Amount   int64  `json:"amount" validate:"required,amount"`
}

func (r *TransferRequest) Trim() { r.Username = strings.TrimSpace(r.Username) }

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

type entryResponse struct {
	ID                   string    `json:"id"`
	Amount               int64     `json:"amount"`
	Kind                 string    `json:"kind"`
	CounterpartyWalletID string    `json:"counterpartyWalletId,omitempty"`
	CreatedAt            time.Time `json:"createdAt"`
}

// Transfer moves funds from the caller to another user.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	req, ok := validation.From[TransferRequest](c)
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "username is invalid")
	}

	if err := h.engine.Transfer(c.UserContext(), TransferInput{
		Sender:           p,
		ReceiverUsername: req.Username,
		Amount:           req.Amount,
		IdempotencyKey:   middleware.IdempotencyKey(c),
	}); err != nil {
		return err
	}
	return response.OK(c, nil)
}

// Balance returns the caller's balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	balance, err := h.engine.Balance(c.UserContext(), p.UserID)
	if err != nil {
		return err
	}
	return response.OK(c, balanceResponse{Balance: balance})
}

// History lists the caller's most recent ledger entries.
func (h *Handler) History(c *fiber.Ctx) error {
	p, err := middleware.MustPrincipal(c)
	if err != nil {
		return err
	}
	entries, err := h.engine.History(c.UserContext(), p.UserID, c.QueryInt("limit", ledger.DefaultHistoryLimit))
	if err != nil {
		return err
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:                   e.ID,
			Amount:               e.Amount,
			Kind:                 string(e.Kind),
			CounterpartyWalletID: e.CounterpartyWalletID,
			CreatedAt:            e.CreatedAt,
		})
	}
	return response.OK(c, fiber.Map{"entries": out})
}
