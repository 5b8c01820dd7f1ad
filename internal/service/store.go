package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brokersim/brokersim/internal/domain"
)

// LedgerStore is the slice of the relational store the services need. The
// postgres.Ledger satisfies it in production; tests use in-memory fakes.
type LedgerStore interface {
	CreateUser(ctx context.Context, username, hash string) (domain.User, error)
	UserByUsername(ctx context.Context, username string) (domain.User, error)
	UserByID(ctx context.Context, id int64) (domain.User, error)
	ChangePassword(ctx context.Context, userID int64, verify func(storedHash string) error, newHash string) error
	Buy(ctx context.Context, userID int64, symbol string, shares int64, price decimal.Decimal, at time.Time) (domain.Trade, error)
	Sell(ctx context.Context, userID int64, symbol string, shares int64, price decimal.Decimal, at time.Time) (domain.Trade, error)
	Holdings(ctx context.Context, userID int64) ([]domain.Holding, error)
	Trades(ctx context.Context, userID int64) ([]domain.Trade, error)
}
