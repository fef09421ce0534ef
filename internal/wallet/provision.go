package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Provision creates the zero-balance wallet of a freshly created account. repo
// must belong to the same unit of work as the account insert so that either
// both rows commit or neither does.
func Provision(ctx context.Context, repo Repository, userID string) (Wallet, error) {
	now := time.Now().UTC()
	w := Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		Balance:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(ctx, w); err != nil {
		return Wallet{}, err
	}
	return w, nil
}
