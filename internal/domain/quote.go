package domain

import "github.com/shopspring/decimal"

// Quote is the current simulated market price for a ticker, with the symbol
// in its canonical (upper-case) form.
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}
