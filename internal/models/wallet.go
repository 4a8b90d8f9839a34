package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet holds a party's balance in minor units.
type Wallet struct {
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Balance   int64     `json:"balance" db:"balance"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
