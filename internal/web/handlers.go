package web

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"go.uber.org/zap"

	"github.com/brokersim/brokersim/internal/domain"
	"github.com/brokersim/brokersim/internal/quotes"
	"github.com/brokersim/brokersim/internal/service"
	"github.com/brokersim/brokersim/pkg/logger"
	"github.com/brokersim/brokersim/pkg/metrics"
)

const localUserID = "userID"

// Service surfaces the handlers consume. Narrow interfaces keep the handlers
// testable against in-memory fakes.
type AccountService interface {
	Register(ctx context.Context, username, password string) (domain.User, error)
	Authenticate(ctx context.Context, username, password string) (domain.User, error)
	ChangePassword(ctx context.Context, userID int64, current, next string) error
}

type TradingService interface {
	Buy(ctx context.Context, userID int64, symbol string, shares int64) (domain.Trade, error)
	Sell(ctx context.Context, userID int64, symbol string, shares int64) (domain.Trade, error)
}

type PortfolioService interface {
	Snapshot(ctx context.Context, userID int64) (domain.Portfolio, error)
	History(ctx context.Context, userID int64) ([]domain.Trade, error)
	SymbolsHeld(ctx context.Context, userID int64) ([]string, error)
}

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type Handler struct {
	sessions  *session.Store
	accounts  AccountService
	trading   TradingService
	portfolio PortfolioService
	quotes    quotes.Source

	dbHealth      HealthChecker
	sessionHealth HealthChecker
}

func NewHandler(
	sessions *session.Store,
	accounts AccountService,
	trading TradingService,
	portfolio PortfolioService,
	source quotes.Source,
	dbHealth HealthChecker,
	sessionHealth HealthChecker,
) *Handler {
	return &Handler{
		sessions:      sessions,
		accounts:      accounts,
		trading:       trading,
		portfolio:     portfolio,
		quotes:        source,
		dbHealth:      dbHealth,
		sessionHealth: sessionHealth,
	}
}

// Index renders the portfolio view: cash, live-priced positions, grand total.
func (h *Handler) Index(c *fiber.Ctx) error {
	userID := c.Locals(localUserID).(int64)

	portfolio, err := h.portfolio.Snapshot(c.Context(), userID)
	if err != nil {
		return h.serverError(c, "load portfolio", err)
	}

	return c.Render("index", fiber.Map{
		"Portfolio": portfolio,
		"Flash":     h.popFlash(c),
	}, "layouts/main")
}

func (h *Handler) BuyForm(c *fiber.Ctx) error {
	return c.Render("buy", fiber.Map{"Flash": h.popFlash(c)}, "layouts/main")
}

func (h *Handler) Buy(c *fiber.Ctx) error {
	userID := c.Locals(localUserID).(int64)

	var form tradeForm
	if err := c.BodyParser(&form); err != nil {
		return h.apology(c, fiber.StatusBadRequest, "malformed form submission")
	}

	if strings.TrimSpace(form.Symbol) == "" {
		return h.apology(c, fiber.StatusBadRequest, "please provide a stock symbol")
	}

	shares, err := strconv.ParseInt(strings.TrimSpace(form.Shares), 10, 64)
	if err != nil {
		return h.apology(c, fiber.StatusBadRequest, "invalid quantity")
	}

	trade, err := h.trading.Buy(c.Context(), userID, form.Symbol, shares)
	switch {
	case errors.Is(err, service.ErrInvalidQuantity):
		return h.apology(c, fiber.StatusBadRequest, "quantity must be at least 1")
	case errors.Is(err, domain.ErrUnknownSymbol):
		return h.apology(c, fiber.StatusBadRequest, "stock does not exist")
	case errors.Is(err, domain.ErrInsufficientCash):
		return h.apology(c, fiber.StatusForbidden, "not enough cash")
	case err != nil:
		return h.serverError(c, "execute buy", err)
	}

	h.setFlash(c, fmt.Sprintf("Bought %d %s", trade.Shares, trade.Symbol))
	return c.Redirect("/", fiber.StatusSeeOther)
}

func (h *Handler) SellForm(c *fiber.Ctx) error {
	userID := c.Locals(localUserID).(int64)

	symbols, err := h.portfolio.SymbolsHeld(c.Context(), userID)
	if err != nil {
		return h.serverError(c, "load held symbols", err)
	}

	return c.Render("sell", fiber.Map{
		"Symbols": symbols,
		"Flash":   h.popFlash(c),
	}, "layouts/main")
}

func (h *Handler) Sell(c *fiber.Ctx) error {
	userID := c.Locals(localUserID).(int64)

	var form tradeForm
	if err := c.BodyParser(&form); err != nil {
		return h.apology(c, fiber.StatusBadRequest, "malformed form submission")
	}

	if strings.TrimSpace(form.Symbol) == "" {
		return h.apology(c, fiber.StatusBadRequest, "please provide a stock symbol")
	}

	shares, err := strconv.ParseInt(strings.TrimSpace(form.Shares), 10, 64)
	if err != nil {
		return h.apology(c, fiber.StatusBadRequest, "invalid sell quantity")
	}

	trade, err := h.trading.Sell(c.Context(), userID, form.Symbol, shares)
	switch {
	case errors.Is(err, service.ErrInvalidQuantity):
		return h.apology(c, fiber.StatusBadRequest, "invalid sell quantity")
	case errors.Is(err, domain.ErrUnknownSymbol):
		return h.apology(c, fiber.StatusBadRequest, "stock does not exist")
	case errors.Is(err, domain.ErrInsufficientShares):
		return h.apology(c, fiber.StatusBadRequest, "insufficient shares to sell")
	case err != nil:
		return h.serverError(c, "execute sell", err)
	}

	h.setFlash(c, fmt.Sprintf("Sold %d %s", trade.Shares, trade.Symbol))
	return c.Redirect("/", fiber.StatusSeeOther)
}

// History lists every trade, oldest first. The log is append-only, so this is
// the full audit trail.
func (h *Handler) History(c *fiber.Ctx) error {
	userID := c.Locals(localUserID).(int64)

	trades, err := h.portfolio.History(c.Context(), userID)
	if err != nil {
		return h.serverError(c, "load history", err)
	}

	return c.Render("history", fiber.Map{
		"Trades": trades,
		"Flash":  h.popFlash(c),
	}, "layouts/main")
}

func (h *Handler) QuoteForm(c *fiber.Ctx) error {
	return c.Render("quote", fiber.Map{"Flash": h.popFlash(c)}, "layouts/main")
}

func (h *Handler) Quote(c *fiber.Ctx) error {
	var form quoteForm
	if err := c.BodyParser(&form); err != nil {
		return h.apology(c, fiber.StatusBadRequest, "malformed form submission")
	}

	if strings.TrimSpace(form.Symbol) == "" {
		return h.apology(c, fiber.StatusBadRequest, "please provide a stock to quote")
	}

	quote, err := h.quotes.Lookup(c.Context(), form.Symbol)
	if errors.Is(err, domain.ErrUnknownSymbol) {
		return h.apology(c, fiber.StatusBadRequest, "stock does not exist")
	}
	if err != nil {
		return h.serverError(c, "lookup quote", err)
	}

	return c.Render("quoted", fiber.Map{"Quote": quote}, "layouts/main")
}

func (h *Handler) LoginForm(c *fiber.Ctx) error {
	return c.Render("login", fiber.Map{"Flash": h.popFlash(c)}, "layouts/main")
}

func (h *Handler) Login(c *fiber.Ctx) error {
	var form loginForm
	if err := c.BodyParser(&form); err != nil {
		return h.apology(c, fiber.StatusBadRequest, "malformed form submission")
	}

	if form.Username == "" {
		return h.apology(c, fiber.StatusForbidden, "must provide username")
	}
	if form.Password == "" {
		return h.apology(c, fiber.StatusForbidden, "must provide password")
	}

	user, err := h.accounts.Authenticate(c.Context(), form.Username, form.Password)
	if errors.Is(err, domain.ErrInvalidCredentials) {
		return h.apology(c, fiber.StatusForbidden, "invalid username and/or password")
	}
	if err != nil {
		return h.serverError(c, "authenticate", err)
	}

	if err := h.establishSession(c, user.ID); err != nil {
		return h.serverError(c, "establish session", err)
	}

	return c.Redirect("/", fiber.StatusSeeOther)
}

// Logout clears session identity unconditionally.
func (h *Handler) Logout(c *fiber.Ctx) error {
	sess, err := h.sessions.Get(c)
	if err == nil {
		if _, ok := sess.Get("user_id").(int64); ok {
			metrics.ActiveSessions.Dec()
		}
		_ = sess.Destroy()
	}
	return c.Redirect("/login", fiber.StatusFound)
}

func (h *Handler) RegisterForm(c *fiber.Ctx) error {
	return c.Render("register", fiber.Map{"Flash": h.popFlash(c)}, "layouts/main")
}

func (h *Handler) Register(c *fiber.Ctx) error {
	var form registerForm
	if err := c.BodyParser(&form); err != nil {
		return h.apology(c, fiber.StatusBadRequest, "malformed form submission")
	}

	if form.Username == "" {
		return h.apology(c, fiber.StatusBadRequest, "must provide username")
	}
	if form.Password == "" {
		return h.apology(c, fiber.StatusBadRequest, "must provide password")
	}
	if form.Confirmation == "" {
		return h.apology(c, fiber.StatusBadRequest, "please verify password")
	}
	if form.Password != form.Confirmation {
		return h.apology(c, fiber.StatusBadRequest, "passwords must match")
	}

	user, err := h.accounts.Register(c.Context(), form.Username, form.Password)
	if errors.Is(err, domain.ErrUsernameTaken) {
		return h.apology(c, fiber.StatusBadRequest, "username already exists")
	}
	if err != nil {
		return h.serverError(c, "register", err)
	}

	if err := h.establishSession(c, user.ID); err != nil {
		return h.serverError(c, "establish session", err)
	}

	return c.Redirect("/", fiber.StatusSeeOther)
}

func (h *Handler) ChangePasswordForm(c *fiber.Ctx) error {
	return c.Render("change", fiber.Map{"Flash": h.popFlash(c)}, "layouts/main")
}

func (h *Handler) ChangePassword(c *fiber.Ctx) error {
	userID := c.Locals(localUserID).(int64)

	var form changePasswordForm
	if err := c.BodyParser(&form); err != nil {
		return h.apology(c, fiber.StatusBadRequest, "malformed form submission")
	}

	if form.Password == "" {
		return h.apology(c, fiber.StatusBadRequest, "please enter current password")
	}
	if form.NewPassword == "" {
		return h.apology(c, fiber.StatusBadRequest, "please enter new password")
	}
	if form.Confirmation == "" {
		return h.apology(c, fiber.StatusBadRequest, "please retype new password")
	}
	if form.NewPassword != form.Confirmation {
		return h.apology(c, fiber.StatusBadRequest, "new passwords must match")
	}

	err := h.accounts.ChangePassword(c.Context(), userID, form.Password, form.NewPassword)
	switch {
	case errors.Is(err, domain.ErrSamePassword):
		return h.apology(c, fiber.StatusBadRequest, "new password must differ from the current one")
	case errors.Is(err, domain.ErrInvalidCredentials):
		return h.apology(c, fiber.StatusForbidden, "current password is incorrect")
	case err != nil:
		return h.serverError(c, "change password", err)
	}

	h.setFlash(c, "Password changed")
	return c.Redirect("/", fiber.StatusSeeOther)
}

// Healthz reports readiness of the ledger database and the session backend.
func (h *Handler) Healthz(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	services := fiber.Map{}
	healthy := true

	if err := h.dbHealth.HealthCheck(ctx); err != nil {
		services["database"] = err.Error()
		healthy = false
	} else {
		services["database"] = "ok"
	}

	if h.sessionHealth != nil {
		if err := h.sessionHealth.HealthCheck(ctx); err != nil {
			services["sessions"] = err.Error()
			healthy = false
		} else {
			services["sessions"] = "ok"
		}
	} else {
		services["sessions"] = "in-memory"
	}

	status := fiber.StatusOK
	if !healthy {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"status":   map[bool]string{true: "ready", false: "not_ready"}[healthy],
		"services": services,
	})
}

// apology renders the generic error page with a message and status code.
func (h *Handler) apology(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).Render("apology", fiber.Map{
		"Message": message,
		"Code":    status,
	}, "layouts/main")
}

func (h *Handler) serverError(c *fiber.Ctx, op string, err error) error {
	logger.Error(op, zap.Error(err), zap.String("path", c.Path()))
	return h.apology(c, fiber.StatusInternalServerError, "something went wrong")
}

func (h *Handler) establishSession(c *fiber.Ctx, userID int64) error {
	sess, err := h.sessions.Get(c)
	if err != nil {
		return err
	}
	_, hadUser := sess.Get("user_id").(int64)
	// Fresh session id on privilege change.
	if err := sess.Regenerate(); err != nil {
		return err
	}
	sess.Set("user_id", userID)
	if err := sess.Save(); err != nil {
		return err
	}
	if !hadUser {
		metrics.ActiveSessions.Inc()
	}
	return nil
}

func (h *Handler) currentUserID(c *fiber.Ctx) (int64, bool) {
	sess, err := h.sessions.Get(c)
	if err != nil {
		return 0, false
	}
	id, ok := sess.Get("user_id").(int64)
	return id, ok
}

func (h *Handler) setFlash(c *fiber.Ctx, message string) {
	sess, err := h.sessions.Get(c)
	if err != nil {
		return
	}
	sess.Set("flash", message)
	_ = sess.Save()
}

func (h *Handler) popFlash(c *fiber.Ctx) string {
	sess, err := h.sessions.Get(c)
	if err != nil {
		return ""
	}
	message, _ := sess.Get("flash").(string)
	if message != "" {
		sess.Delete("flash")
		_ = sess.Save()
	}
	return message
}
