package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TradeSide string

const (
	SideBuy  TradeSide = "buy"
	SideSell TradeSide = "sell"
)

// Trade is one executed buy or sell. Rows are append-only: history never
// shrinks, and holdings are derived by summing signed share counts.
type Trade struct {
	ID         int64           `db:"id" json:"id"`
	UserID     int64           `db:"user_id" json:"user_id"`
	Symbol     string          `db:"symbol" json:"symbol"`
	Shares     int64           `db:"shares" json:"shares"`
	Price      decimal.Decimal `db:"price" json:"price"`
	Side       TradeSide       `db:"side" json:"side"`
	ExecutedAt time.Time       `db:"executed_at" json:"executed_at"`
}

// Holding is the derived net position of one symbol for one user.
type Holding struct {
	Symbol string `db:"symbol" json:"symbol"`
	Shares int64  `db:"shares" json:"shares"`
}

// Position is a holding priced at the current quote for the portfolio view.
type Position struct {
	Symbol string          `json:"symbol"`
	Shares int64           `json:"shares"`
	Price  decimal.Decimal `json:"price"`
	Value  decimal.Decimal `json:"value"`
}

// Portfolio is a read-only snapshot: cash plus live-priced positions. Totals
// reflect the instant the quotes were fetched and may differ between renders.
type Portfolio struct {
	Cash      decimal.Decimal `json:"cash"`
	Positions []Position      `json:"positions"`
	Total     decimal.Decimal `json:"total"`
}
