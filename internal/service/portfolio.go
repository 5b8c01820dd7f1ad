package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/brokersim/brokersim/internal/domain"
	"github.com/brokersim/brokersim/internal/quotes"
)

// PortfolioService builds the read-only views: the priced portfolio snapshot
// and the full trade history.
type PortfolioService struct {
	store  LedgerStore
	quotes quotes.Source
}

func NewPortfolioService(store LedgerStore, source quotes.Source) *PortfolioService {
	return &PortfolioService{store: store, quotes: source}
}

// Snapshot prices every held symbol at its live quote and totals cash plus
// position values. Quotes are fetched fresh on every call, so two renders of
// the same portfolio may not agree.
func (s *PortfolioService) Snapshot(ctx context.Context, userID int64) (domain.Portfolio, error) {
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return domain.Portfolio{}, err
	}

	holdings, err := s.store.Holdings(ctx, userID)
	if err != nil {
		return domain.Portfolio{}, err
	}

	portfolio := domain.Portfolio{
		Cash:  user.Cash,
		Total: user.Cash,
	}

	for _, h := range holdings {
		quote, err := s.quotes.Lookup(ctx, h.Symbol)
		if err != nil {
			return domain.Portfolio{}, fmt.Errorf("price holding %s: %w", h.Symbol, err)
		}

		value := quote.Price.Mul(decimal.NewFromInt(h.Shares))
		portfolio.Positions = append(portfolio.Positions, domain.Position{
			Symbol: quote.Symbol,
			Shares: h.Shares,
			Price:  quote.Price,
			Value:  value,
		})
		portfolio.Total = portfolio.Total.Add(value)
	}

	return portfolio, nil
}

// History returns every trade the user ever executed, oldest first.
func (s *PortfolioService) History(ctx context.Context, userID int64) ([]domain.Trade, error) {
	return s.store.Trades(ctx, userID)
}

// SymbolsHeld lists symbols with a non-zero derived holding, for the sell
// form's dropdown.
func (s *PortfolioService) SymbolsHeld(ctx context.Context, userID int64) ([]string, error) {
	holdings, err := s.store.Holdings(ctx, userID)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(holdings))
	for _, h := range holdings {
		symbols = append(symbols, h.Symbol)
	}
	return symbols, nil
}
