package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brokersim/brokersim/internal/domain"
)

// fakeLedger mirrors the store semantics in memory: unique usernames,
// cash checks before debits, holdings derived from the append-only log.
type fakeLedger struct {
	mu        sync.Mutex
	nextUser  int64
	nextTrade int64
	users     map[int64]domain.User
	byName    map[string]int64
	trades    []domain.Trade
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		users:  make(map[int64]domain.User),
		byName: make(map[string]int64),
	}
}

func (f *fakeLedger) CreateUser(_ context.Context, username, hash string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.byName[username]; exists {
		return domain.User{}, domain.ErrUsernameTaken
	}

	f.nextUser++
	u := domain.User{
		ID:        f.nextUser,
		Username:  username,
		Hash:      hash,
		Cash:      domain.StartingCash,
		CreatedAt: time.Now().UTC(),
	}
	f.users[u.ID] = u
	f.byName[username] = u.ID
	return u, nil
}

func (f *fakeLedger) UserByUsername(_ context.Context, username string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.byName[username]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return f.users[id], nil
}

func (f *fakeLedger) UserByID(_ context.Context, id int64) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (f *fakeLedger) ChangePassword(_ context.Context, userID int64, verify func(string) error, newHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if err := verify(u.Hash); err != nil {
		return err
	}
	u.Hash = newHash
	f.users[userID] = u
	return nil
}

func (f *fakeLedger) Buy(_ context.Context, userID int64, symbol string, shares int64, price decimal.Decimal, at time.Time) (domain.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok {
		return domain.Trade{}, domain.ErrUserNotFound
	}

	cost := price.Mul(decimal.NewFromInt(shares))
	if cost.GreaterThan(u.Cash) {
		return domain.Trade{}, domain.ErrInsufficientCash
	}

	u.Cash = u.Cash.Sub(cost)
	f.users[userID] = u
	return f.appendTrade(userID, symbol, shares, price, domain.SideBuy, at), nil
}

func (f *fakeLedger) Sell(_ context.Context, userID int64, symbol string, shares int64, price decimal.Decimal, at time.Time) (domain.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok {
		return domain.Trade{}, domain.ErrUserNotFound
	}

	if shares > f.heldLocked(userID, symbol) {
		return domain.Trade{}, domain.ErrInsufficientShares
	}

	u.Cash = u.Cash.Add(price.Mul(decimal.NewFromInt(shares)))
	f.users[userID] = u
	return f.appendTrade(userID, symbol, shares, price, domain.SideSell, at), nil
}

func (f *fakeLedger) Holdings(_ context.Context, userID int64) ([]domain.Holding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	net := make(map[string]int64)
	var order []string
	for _, t := range f.trades {
		if t.UserID != userID {
			continue
		}
		if _, seen := net[t.Symbol]; !seen {
			order = append(order, t.Symbol)
		}
		if t.Side == domain.SideBuy {
			net[t.Symbol] += t.Shares
		} else {
			net[t.Symbol] -= t.Shares
		}
	}

	var holdings []domain.Holding
	for _, sym := range order {
		if net[sym] != 0 {
			holdings = append(holdings, domain.Holding{Symbol: sym, Shares: net[sym]})
		}
	}
	return holdings, nil
}

func (f *fakeLedger) Trades(_ context.Context, userID int64) ([]domain.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.Trade
	for _, t := range f.trades {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeLedger) heldLocked(userID int64, symbol string) int64 {
	var held int64
	for _, t := range f.trades {
		if t.UserID != userID || t.Symbol != symbol {
			continue
		}
		if t.Side == domain.SideBuy {
			held += t.Shares
		} else {
			held -= t.Shares
		}
	}
	return held
}

func (f *fakeLedger) appendTrade(userID int64, symbol string, shares int64, price decimal.Decimal, side domain.TradeSide, at time.Time) domain.Trade {
	f.nextTrade++
	t := domain.Trade{
		ID:         f.nextTrade,
		UserID:     userID,
		Symbol:     symbol,
		Shares:     shares,
		Price:      price,
		Side:       side,
		ExecutedAt: at,
	}
	f.trades = append(f.trades, t)
	return t
}

// fixedQuotes serves static prices, canonicalizing nothing beyond upper-case.
type fixedQuotes struct {
	prices map[string]decimal.Decimal
}

func (q fixedQuotes) Lookup(_ context.Context, symbol string) (domain.Quote, error) {
	price, ok := q.prices[symbol]
	if !ok {
		return domain.Quote{}, domain.ErrUnknownSymbol
	}
	return domain.Quote{Symbol: symbol, Price: price}, nil
}

func testQuotes() fixedQuotes {
	return fixedQuotes{prices: map[string]decimal.Decimal{
		"AAPL": decimal.RequireFromString("100.00"),
		"MSFT": decimal.RequireFromString("50.00"),
	}}
}

func registerUser(t *testing.T, store *fakeLedger, username string) domain.User {
	t.Helper()
	user, err := NewAccountService(store).Register(context.Background(), username, "hunter2")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	return user
}

func TestRegisterGrantsStartingCash(t *testing.T) {
	store := newFakeLedger()
	user := registerUser(t, store, "alice")

	if !user.Cash.Equal(domain.StartingCash) {
		t.Errorf("starting cash = %s, want %s", user.Cash, domain.StartingCash)
	}
	if user.Hash == "hunter2" {
		t.Error("password stored in plaintext")
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	store := newFakeLedger()
	accounts := NewAccountService(store)

	first := registerUser(t, store, "alice")

	_, err := accounts.Register(context.Background(), "alice", "other")
	if !errors.Is(err, domain.ErrUsernameTaken) {
		t.Fatalf("second Register() error = %v, want ErrUsernameTaken", err)
	}

	// First account untouched.
	got, err := store.UserByID(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("UserByID() error = %v", err)
	}
	if got.Hash != first.Hash || !got.Cash.Equal(first.Cash) {
		t.Error("first account mutated by failed duplicate registration")
	}
}

func TestAuthenticate(t *testing.T) {
	store := newFakeLedger()
	accounts := NewAccountService(store)
	registerUser(t, store, "alice")

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"valid credentials", "alice", "hunter2", nil},
		{"wrong password", "alice", "wrong", domain.ErrInvalidCredentials},
		{"unknown user", "bob", "hunter2", domain.ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := accounts.Authenticate(context.Background(), tt.username, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Authenticate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestChangePassword(t *testing.T) {
	store := newFakeLedger()
	accounts := NewAccountService(store)
	user := registerUser(t, store, "alice")

	if err := accounts.ChangePassword(context.Background(), user.ID, "hunter2", "hunter2"); !errors.Is(err, domain.ErrSamePassword) {
		t.Errorf("same password error = %v, want ErrSamePassword", err)
	}

	if err := accounts.ChangePassword(context.Background(), user.ID, "wrong", "newpass"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("wrong current password error = %v, want ErrInvalidCredentials", err)
	}

	if err := accounts.ChangePassword(context.Background(), user.ID, "hunter2", "newpass"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}

	// New password works, old one does not.
	if _, err := accounts.Authenticate(context.Background(), "alice", "newpass"); err != nil {
		t.Errorf("Authenticate(new) error = %v", err)
	}
	if _, err := accounts.Authenticate(context.Background(), "alice", "hunter2"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("Authenticate(old) error = %v, want ErrInvalidCredentials", err)
	}
}

func TestBuyDebitsCashAndAppendsTrade(t *testing.T) {
	store := newFakeLedger()
	trading := NewTradingService(store, testQuotes())
	user := registerUser(t, store, "alice")

	trade, err := trading.Buy(context.Background(), user.ID, "AAPL", 10)
	if err != nil {
		t.Fatalf("Buy() error = %v", err)
	}
	if trade.Side != domain.SideBuy || trade.Shares != 10 {
		t.Errorf("trade = %+v, want buy of 10", trade)
	}

	got, _ := store.UserByID(context.Background(), user.ID)
	wantCash := domain.StartingCash.Sub(decimal.RequireFromString("1000.00"))
	if !got.Cash.Equal(wantCash) {
		t.Errorf("cash = %s, want %s", got.Cash, wantCash)
	}

	trades, _ := store.Trades(context.Background(), user.ID)
	if len(trades) != 1 {
		t.Fatalf("trade log has %d records, want 1", len(trades))
	}
	if trades[0].ExecutedAt.Location() != time.UTC {
		t.Error("trade timestamp not recorded in UTC")
	}
}

func TestBuyRejections(t *testing.T) {
	store := newFakeLedger()
	trading := NewTradingService(store, testQuotes())
	user := registerUser(t, store, "alice")

	tests := []struct {
		name    string
		symbol  string
		shares  int64
		wantErr error
	}{
		{"zero quantity", "AAPL", 0, ErrInvalidQuantity},
		{"negative quantity", "AAPL", -3, ErrInvalidQuantity},
		{"blank symbol", "  ", 1, domain.ErrUnknownSymbol},
		{"unknown symbol", "ZZZZ", 1, domain.ErrUnknownSymbol},
		{"insufficient cash", "AAPL", 101, domain.ErrInsufficientCash},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := trading.Buy(context.Background(), user.ID, tt.symbol, tt.shares)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Buy() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	// Rejections leave cash and the trade log untouched.
	got, _ := store.UserByID(context.Background(), user.ID)
	if !got.Cash.Equal(domain.StartingCash) {
		t.Errorf("cash = %s, want untouched %s", got.Cash, domain.StartingCash)
	}
	trades, _ := store.Trades(context.Background(), user.ID)
	if len(trades) != 0 {
		t.Errorf("trade log has %d records, want 0", len(trades))
	}
}

func TestSellCreditsCashAndReducesHolding(t *testing.T) {
	store := newFakeLedger()
	trading := NewTradingService(store, testQuotes())
	user := registerUser(t, store, "alice")

	if _, err := trading.Buy(context.Background(), user.ID, "AAPL", 10); err != nil {
		t.Fatalf("Buy() error = %v", err)
	}
	cashAfterBuy, _ := store.UserByID(context.Background(), user.ID)

	trade, err := trading.Sell(context.Background(), user.ID, "AAPL", 4)
	if err != nil {
		t.Fatalf("Sell() error = %v", err)
	}
	if trade.Side != domain.SideSell || trade.Shares != 4 {
		t.Errorf("trade = %+v, want sell of 4", trade)
	}

	got, _ := store.UserByID(context.Background(), user.ID)
	wantCash := cashAfterBuy.Cash.Add(decimal.RequireFromString("400.00"))
	if !got.Cash.Equal(wantCash) {
		t.Errorf("cash = %s, want %s", got.Cash, wantCash)
	}

	holdings, _ := store.Holdings(context.Background(), user.ID)
	if len(holdings) != 1 || holdings[0].Shares != 6 {
		t.Errorf("holdings = %+v, want AAPL x6", holdings)
	}
}

func TestSellMoreThanHeld(t *testing.T) {
	store := newFakeLedger()
	trading := NewTradingService(store, testQuotes())
	user := registerUser(t, store, "alice")

	if _, err := trading.Buy(context.Background(), user.ID, "AAPL", 5); err != nil {
		t.Fatalf("Buy() error = %v", err)
	}
	before, _ := store.UserByID(context.Background(), user.ID)

	_, err := trading.Sell(context.Background(), user.ID, "AAPL", 6)
	if !errors.Is(err, domain.ErrInsufficientShares) {
		t.Fatalf("Sell() error = %v, want ErrInsufficientShares", err)
	}

	after, _ := store.UserByID(context.Background(), user.ID)
	if !after.Cash.Equal(before.Cash) {
		t.Errorf("cash changed on rejected sell: %s -> %s", before.Cash, after.Cash)
	}
	trades, _ := store.Trades(context.Background(), user.ID)
	if len(trades) != 1 {
		t.Errorf("trade log has %d records, want 1", len(trades))
	}
}

func TestRoundTripKeepsHistory(t *testing.T) {
	store := newFakeLedger()
	trading := NewTradingService(store, testQuotes())
	user := registerUser(t, store, "alice")

	if _, err := trading.Buy(context.Background(), user.ID, "AAPL", 10); err != nil {
		t.Fatalf("Buy() error = %v", err)
	}
	if _, err := trading.Sell(context.Background(), user.ID, "AAPL", 10); err != nil {
		t.Fatalf("Sell() error = %v", err)
	}

	holdings, _ := store.Holdings(context.Background(), user.ID)
	if len(holdings) != 0 {
		t.Errorf("holdings = %+v, want none after round trip", holdings)
	}

	// History is append-only: both records survive the flat position.
	trades, _ := store.Trades(context.Background(), user.ID)
	if len(trades) != 2 {
		t.Fatalf("trade log has %d records, want 2", len(trades))
	}
	if trades[0].Side != domain.SideBuy || trades[1].Side != domain.SideSell {
		t.Errorf("history order = %s, %s; want buy then sell", trades[0].Side, trades[1].Side)
	}
}

func TestPortfolioSnapshot(t *testing.T) {
	store := newFakeLedger()
	source := testQuotes()
	trading := NewTradingService(store, source)
	portfolio := NewPortfolioService(store, source)
	user := registerUser(t, store, "alice")

	if _, err := trading.Buy(context.Background(), user.ID, "AAPL", 10); err != nil {
		t.Fatalf("Buy() error = %v", err)
	}
	if _, err := trading.Buy(context.Background(), user.ID, "MSFT", 4); err != nil {
		t.Fatalf("Buy() error = %v", err)
	}

	snap, err := portfolio.Snapshot(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	if len(snap.Positions) != 2 {
		t.Fatalf("positions = %d, want 2", len(snap.Positions))
	}

	// 10000 - 1000 - 200 cash, plus 1000 + 200 in positions.
	wantCash := decimal.RequireFromString("8800.00")
	if !snap.Cash.Equal(wantCash) {
		t.Errorf("cash = %s, want %s", snap.Cash, wantCash)
	}
	if !snap.Total.Equal(domain.StartingCash) {
		t.Errorf("total = %s, want %s", snap.Total, domain.StartingCash)
	}
}

func TestSymbolsHeld(t *testing.T) {
	store := newFakeLedger()
	trading := NewTradingService(store, testQuotes())
	portfolio := NewPortfolioService(store, testQuotes())
	user := registerUser(t, store, "alice")

	if _, err := trading.Buy(context.Background(), user.ID, "AAPL", 1); err != nil {
		t.Fatalf("Buy() error = %v", err)
	}
	if _, err := trading.Buy(context.Background(), user.ID, "MSFT", 1); err != nil {
		t.Fatalf("Buy() error = %v", err)
	}
	if _, err := trading.Sell(context.Background(), user.ID, "MSFT", 1); err != nil {
		t.Fatalf("Sell() error = %v", err)
	}

	symbols, err := portfolio.SymbolsHeld(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("SymbolsHeld() error = %v", err)
	}
	if len(symbols) != 1 || symbols[0] != "AAPL" {
		t.Errorf("symbols = %v, want [AAPL]", symbols)
	}
}
