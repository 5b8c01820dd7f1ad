// Package quotes provides the stock-quote collaborator: a lookup of the
// current simulated market price for a ticker symbol.
package quotes

import (
	"context"

	"github.com/brokersim/brokersim/internal/domain"
)

// Source resolves a ticker symbol to a quote. Implementations return
// domain.ErrUnknownSymbol when the symbol does not exist; callers treat that
// as a validation failure, never a crash.
type Source interface {
	Lookup(ctx context.Context, symbol string) (domain.Quote, error)
}
