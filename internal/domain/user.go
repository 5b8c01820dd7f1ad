package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StartingCash is credited to every account at registration.
var StartingCash = decimal.RequireFromString("10000.00")

type User struct {
	ID        int64           `db:"id" json:"id"`
	Username  string          `db:"username" json:"username"`
	Hash      string          `db:"hash" json:"-"`
	Cash      decimal.Decimal `db:"cash" json:"cash"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
