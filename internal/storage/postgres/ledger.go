package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/brokersim/brokersim/internal/domain"
	"github.com/brokersim/brokersim/pkg/metrics"
)

const uniqueViolation = "23505"

// Ledger is the relational store for users and the append-only trade log.
// Every read-modify-write sequence runs in a single transaction with the user
// row locked FOR UPDATE, so concurrent requests for the same user serialize
// instead of racing on cash and holdings.
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

func (l *Ledger) CreateUser(ctx context.Context, username, hash string) (domain.User, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DatabaseQueryDuration.WithLabelValues("create_user"))

	var u domain.User
	err := l.pool.QueryRow(ctx, `
		INSERT INTO users (username, hash, cash)
		VALUES ($1, $2, $3)
		RETURNING id, username, hash, cash, created_at
	`, username, hash, domain.StartingCash).Scan(&u.ID, &u.Username, &u.Hash, &u.Cash, &u.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.User{}, domain.ErrUsernameTaken
		}
		metrics.DatabaseQueries.WithLabelValues("create_user", "error").Inc()
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	metrics.DatabaseQueries.WithLabelValues("create_user", "success").Inc()
	return u, nil
}

func (l *Ledger) UserByUsername(ctx context.Context, username string) (domain.User, error) {
	var u domain.User
	err := l.pool.QueryRow(ctx, `
		SELECT id, username, hash, cash, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.Hash, &u.Cash, &u.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("user by username: %w", err)
	}
	return u, nil
}

func (l *Ledger) UserByID(ctx context.Context, id int64) (domain.User, error) {
	var u domain.User
	err := l.pool.QueryRow(ctx, `
		SELECT id, username, hash, cash, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Username, &u.Hash, &u.Cash, &u.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("user by id: %w", err)
	}
	return u, nil
}

// Buy atomically debits cash and appends a buy record. The price is the
// executed quote price decided by the caller before the transaction starts.
func (l *Ledger) Buy(ctx context.Context, userID int64, symbol string, shares int64, price decimal.Decimal, at time.Time) (domain.Trade, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DatabaseQueryDuration.WithLabelValues("buy"))

	var trade domain.Trade
	err := l.withTx(ctx, func(tx pgx.Tx) error {
		cash, err := lockCash(ctx, tx, userID)
		if err != nil {
			return err
		}

		cost := price.Mul(decimal.NewFromInt(shares))
		if cost.GreaterThan(cash) {
			return domain.ErrInsufficientCash
		}

		if _, err := tx.Exec(ctx,
			`UPDATE users SET cash = cash - $1 WHERE id = $2`, cost, userID); err != nil {
			return fmt.Errorf("debit cash: %w", err)
		}

		trade, err = insertTrade(ctx, tx, userID, symbol, shares, price, domain.SideBuy, at)
		return err
	})
	if err != nil {
		return domain.Trade{}, err
	}
	return trade, nil
}

// Sell atomically credits cash and appends a sell record. The holding check
// derives net shares from the trade log inside the same transaction, after
// the user row lock, so a concurrent sell cannot slip past it.
func (l *Ledger) Sell(ctx context.Context, userID int64, symbol string, shares int64, price decimal.Decimal, at time.Time) (domain.Trade, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DatabaseQueryDuration.WithLabelValues("sell"))

	var trade domain.Trade
	err := l.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := lockCash(ctx, tx, userID); err != nil {
			return err
		}

		var held int64
		err := tx.QueryRow(ctx, `
			SELECT COALESCE(SUM(CASE WHEN side = 'buy' THEN shares ELSE -shares END), 0)
			FROM trades
			WHERE user_id = $1 AND symbol = $2
		`, userID, symbol).Scan(&held)
		if err != nil {
			return fmt.Errorf("derive holding: %w", err)
		}

		if shares > held {
			return domain.ErrInsufficientShares
		}

		proceeds := price.Mul(decimal.NewFromInt(shares))
		if _, err := tx.Exec(ctx,
			`UPDATE users SET cash = cash + $1 WHERE id = $2`, proceeds, userID); err != nil {
			return fmt.Errorf("credit cash: %w", err)
		}

		trade, err = insertTrade(ctx, tx, userID, symbol, shares, price, domain.SideSell, at)
		return err
	})
	if err != nil {
		return domain.Trade{}, err
	}
	return trade, nil
}

// ChangePassword overwrites the stored hash after verify approves the current
// one. The row stays locked for the duration, matching the trade operations.
func (l *Ledger) ChangePassword(ctx context.Context, userID int64, verify func(storedHash string) error, newHash string) error {
	return l.withTx(ctx, func(tx pgx.Tx) error {
		var stored string
		err := tx.QueryRow(ctx,
			`SELECT hash FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&stored)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrUserNotFound
		}
		if err != nil {
			return fmt.Errorf("lock user: %w", err)
		}

		if err := verify(stored); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx,
			`UPDATE users SET hash = $1 WHERE id = $2`, newHash, userID); err != nil {
			return fmt.Errorf("update hash: %w", err)
		}
		return nil
	})
}

// Holdings derives the net position per symbol from the trade log, dropping
// symbols that sum to zero.
func (l *Ledger) Holdings(ctx context.Context, userID int64) ([]domain.Holding, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DatabaseQueryDuration.WithLabelValues("holdings"))

	rows, err := l.pool.Query(ctx, `
		SELECT symbol,
		       SUM(CASE WHEN side = 'buy' THEN shares ELSE -shares END) AS shares
		FROM trades
		WHERE user_id = $1
		GROUP BY symbol
		HAVING SUM(CASE WHEN side = 'buy' THEN shares ELSE -shares END) <> 0
		ORDER BY symbol
	`, userID)
	if err != nil {
		metrics.DatabaseQueries.WithLabelValues("holdings", "error").Inc()
		return nil, fmt.Errorf("holdings: %w", err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.Symbol, &h.Shares); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holdings: %w", err)
	}

	metrics.DatabaseQueries.WithLabelValues("holdings", "success").Inc()
	return holdings, nil
}

// Trades returns the full trade log for a user in execution order.
func (l *Ledger) Trades(ctx context.Context, userID int64) ([]domain.Trade, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.DatabaseQueryDuration.WithLabelValues("trades"))

	rows, err := l.pool.Query(ctx, `
		SELECT id, user_id, symbol, shares, price, side, executed_at
		FROM trades
		WHERE user_id = $1
		ORDER BY executed_at, id
	`, userID)
	if err != nil {
		metrics.DatabaseQueries.WithLabelValues("trades", "error").Inc()
		return nil, fmt.Errorf("trades: %w", err)
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Shares, &t.Price, &t.Side, &t.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", err)
	}

	metrics.DatabaseQueries.WithLabelValues("trades", "success").Inc()
	return trades, nil
}

func (l *Ledger) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func lockCash(ctx context.Context, tx pgx.Tx, userID int64) (decimal.Decimal, error) {
	var cash decimal.Decimal
	err := tx.QueryRow(ctx,
		`SELECT cash FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&cash)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Decimal{}, domain.ErrUserNotFound
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("lock user: %w", err)
	}
	return cash, nil
}

func insertTrade(ctx context.Context, tx pgx.Tx, userID int64, symbol string, shares int64, price decimal.Decimal, side domain.TradeSide, at time.Time) (domain.Trade, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO trades (user_id, symbol, shares, price, side, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, userID, symbol, shares, price, side, at).Scan(&id)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("insert trade: %w", err)
	}

	return domain.Trade{
		ID:         id,
		UserID:     userID,
		Symbol:     symbol,
		Shares:     shares,
		Price:      price,
		Side:       side,
		ExecutedAt: at,
	}, nil
}
