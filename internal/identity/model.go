package identity

import "time"

// Account is a registered user identity. Each account owns exactly one wallet.
type Account struct {
	ID        string
	Username  string
	CreatedAt time.Time
}
