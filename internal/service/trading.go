package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/brokersim/brokersim/internal/domain"
	"github.com/brokersim/brokersim/internal/quotes"
	"github.com/brokersim/brokersim/pkg/logger"
	"github.com/brokersim/brokersim/pkg/metrics"
)

// ErrInvalidQuantity rejects non-positive share counts before any store call.
var ErrInvalidQuantity = errors.New("quantity must be at least 1")

// TradingService executes buys and sells: resolve the live quote, then apply
// the cash and trade-log mutation atomically through the ledger.
type TradingService struct {
	store  LedgerStore
	quotes quotes.Source
	now    func() time.Time
}

func NewTradingService(store LedgerStore, source quotes.Source) *TradingService {
	return &TradingService{
		store:  store,
		quotes: source,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Buy purchases shares at the current quote price. All validation happens
// before the first mutating store call; the ledger enforces the cash check
// again inside its transaction.
func (s *TradingService) Buy(ctx context.Context, userID int64, symbol string, shares int64) (domain.Trade, error) {
	quote, err := s.resolve(ctx, symbol, shares)
	if err != nil {
		metrics.RecordTrade("buy", "rejected")
		return domain.Trade{}, err
	}

	timer := metrics.NewTimer()
	trade, err := s.store.Buy(ctx, userID, quote.Symbol, shares, quote.Price, s.now())
	timer.ObserveDuration(metrics.TradeDuration.WithLabelValues("buy"))

	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCash) {
			metrics.RecordTrade("buy", "rejected")
		} else {
			metrics.RecordTrade("buy", "error")
		}
		return domain.Trade{}, err
	}

	metrics.RecordTrade("buy", "success")
	logger.Info("buy executed",
		zap.Int64("user_id", userID),
		zap.String("symbol", trade.Symbol),
		zap.Int64("shares", trade.Shares),
		zap.String("price", trade.Price.String()))

	return trade, nil
}

// Sell liquidates shares at the current quote price. The holding check runs
// inside the ledger transaction so concurrent sells cannot overdraw.
func (s *TradingService) Sell(ctx context.Context, userID int64, symbol string, shares int64) (domain.Trade, error) {
	quote, err := s.resolve(ctx, symbol, shares)
	if err != nil {
		metrics.RecordTrade("sell", "rejected")
		return domain.Trade{}, err
	}

	timer := metrics.NewTimer()
	trade, err := s.store.Sell(ctx, userID, quote.Symbol, shares, quote.Price, s.now())
	timer.ObserveDuration(metrics.TradeDuration.WithLabelValues("sell"))

	if err != nil {
		if errors.Is(err, domain.ErrInsufficientShares) {
			metrics.RecordTrade("sell", "rejected")
		} else {
			metrics.RecordTrade("sell", "error")
		}
		return domain.Trade{}, err
	}

	metrics.RecordTrade("sell", "success")
	logger.Info("sell executed",
		zap.Int64("user_id", userID),
		zap.String("symbol", trade.Symbol),
		zap.Int64("shares", trade.Shares),
		zap.String("price", trade.Price.String()))

	return trade, nil
}

func (s *TradingService) resolve(ctx context.Context, symbol string, shares int64) (domain.Quote, error) {
	if shares < 1 {
		return domain.Quote{}, ErrInvalidQuantity
	}
	if strings.TrimSpace(symbol) == "" {
		return domain.Quote{}, domain.ErrUnknownSymbol
	}
	return s.quotes.Lookup(ctx, symbol)
}
