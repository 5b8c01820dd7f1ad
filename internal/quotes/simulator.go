package quotes

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/brokersim/brokersim/internal/domain"
	"github.com/brokersim/brokersim/pkg/metrics"
)

// Simulator serves quotes from an in-memory symbol table, nudging each price
// with a random walk of up to ±2% per lookup. It stands in for the external
// quote service in development and tests.
type Simulator struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	rng    *rand.Rand
}

// NewSimulator seeds the symbol table from "SYM:PRICE,SYM:PRICE" pairs.
func NewSimulator(symbols string, seed int64) (*Simulator, error) {
	prices := make(map[string]decimal.Decimal)

	for _, pair := range strings.Split(symbols, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		sym, raw, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("malformed symbol entry %q", pair)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("parse price for %s: %w", sym, err)
		}
		prices[strings.ToUpper(strings.TrimSpace(sym))] = price
	}

	if len(prices) == 0 {
		return nil, fmt.Errorf("no symbols configured")
	}

	return &Simulator{
		prices: prices,
		rng:    rand.New(rand.NewSource(seed)),
	}, nil
}

func (s *Simulator) Lookup(_ context.Context, symbol string) (domain.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	s.mu.Lock()
	defer s.mu.Unlock()

	price, ok := s.prices[symbol]
	if !ok {
		metrics.RecordQuoteLookup("not_found")
		return domain.Quote{}, domain.ErrUnknownSymbol
	}

	// Walk the price by -2%..+2% and keep two decimal places.
	step := decimal.NewFromFloat((s.rng.Float64() - 0.5) * 0.04)
	price = price.Mul(decimal.NewFromInt(1).Add(step)).Round(2)
	if price.LessThanOrEqual(decimal.Zero) {
		price = decimal.RequireFromString("0.01")
	}
	s.prices[symbol] = price

	metrics.RecordQuoteLookup("success")
	return domain.Quote{Symbol: symbol, Price: price}, nil
}

// Symbols lists the configured tickers, for the admin CLI.
func (s *Simulator) Symbols() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.prices))
	for sym := range s.prices {
		out = append(out, sym)
	}
	return out
}
