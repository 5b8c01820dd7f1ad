package web

import (
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(app *fiber.App, handler *Handler) {
	app.Use(NoCache())

	// Operational endpoints
	app.Get("/healthz", handler.Healthz)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Account routes, reachable without a session
	app.Get("/login", handler.LoginForm)
	app.Post("/login", handler.Login)
	app.Get("/logout", handler.Logout)
	app.Get("/register", handler.RegisterForm)
	app.Post("/register", handler.Register)

	// Everything else requires a logged-in user
	auth := app.Group("", handler.RequireLogin())
	auth.Get("/", handler.Index)
	auth.Get("/buy", handler.BuyForm)
	auth.Post("/buy", handler.Buy)
	auth.Get("/sell", handler.SellForm)
	auth.Post("/sell", handler.Sell)
	auth.Get("/quote", handler.QuoteForm)
	auth.Post("/quote", handler.Quote)
	auth.Get("/history", handler.History)
	auth.Get("/change", handler.ChangePasswordForm)
	auth.Post("/change", handler.ChangePassword)
}
