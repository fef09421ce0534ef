package funding

// TopUpRequest is the body of POST /user/balance.
type TopUpRequest struct {
	Amount int64 `json:"amount" validate:"required,amount"`
}
