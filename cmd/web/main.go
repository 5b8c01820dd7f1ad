package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/template/html/v2"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/brokersim/brokersim/internal/config"
	"github.com/brokersim/brokersim/internal/quotes"
	"github.com/brokersim/brokersim/internal/service"
	"github.com/brokersim/brokersim/internal/storage/postgres"
	"github.com/brokersim/brokersim/internal/storage/redisstore"
	"github.com/brokersim/brokersim/internal/web"
	pkglogger "github.com/brokersim/brokersim/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()

	if err := pkglogger.Init(cfg.LogLevel, cfg.Environment == "development"); err != nil {
		log.Fatal("init logger:", err)
	}
	defer pkglogger.Close()

	db, err := postgres.NewDB(cfg)
	if err != nil {
		log.Fatal("connect postgres:", err)
	}
	defer db.Close()

	ledger := postgres.NewLedger(db.Pool())

	sessionStorage, sessionHealth := connectSessionStore(cfg)

	source, err := buildQuoteSource(cfg)
	if err != nil {
		log.Fatal("configure quote source:", err)
	}

	accounts := service.NewAccountService(ledger)
	trading := service.NewTradingService(ledger, source)
	portfolio := service.NewPortfolioService(ledger, source)

	sessionConfig := session.Config{
		Expiration:     cfg.SessionExpiry,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
	}
	if sessionStorage != nil {
		sessionConfig.Storage = sessionStorage
	}
	sessions := session.New(sessionConfig)

	engine := html.New(cfg.TemplateDir, ".html")
	engine.AddFunc("usd", func(d decimal.Decimal) string {
		return "$" + d.StringFixed(2)
	})

	app := fiber.New(fiber.Config{
		ServerHeader:          "BrokerSim",
		AppName:               "BrokerSim v1.0.0",
		DisableStartupMessage: false,
		ReadTimeout:           cfg.HTTPReadTimeout,
		WriteTimeout:          cfg.HTTPWriteTimeout,
		IdleTimeout:           120 * time.Second,
		Views:                 engine,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	handler := web.NewHandler(sessions, accounts, trading, portfolio, source, db, sessionHealth)
	web.SetupRoutes(app, handler)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		if err := app.Shutdown(); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	addr := fmt.Sprintf("%s:%s", cfg.HTTPHost, cfg.HTTPPort)
	log.Printf("Starting server on %s", addr)

	if err := app.Listen(addr); err != nil {
		log.Fatal("Server error:", err)
	}
}

// connectSessionStore tries Redis first and falls back to fiber's in-memory
// store when it is unreachable.
func connectSessionStore(cfg *config.Config) (fiber.Storage, web.HealthChecker) {
	store, err := redisstore.New(cfg)
	if err != nil {
		log.Printf("Redis unavailable: %v (sessions held in memory)", err)
		return nil, nil
	}

	log.Println("Sessions backed by Redis")
	return store, store
}

func buildQuoteSource(cfg *config.Config) (quotes.Source, error) {
	if cfg.QuoteURL != "" {
		log.Printf("Quotes served by %s", cfg.QuoteURL)
		return quotes.NewClient(cfg.QuoteURL, cfg.QuoteTimeout), nil
	}

	sim, err := quotes.NewSimulator(cfg.QuoteSymbols, time.Now().UnixNano())
	if err != nil {
		return nil, err
	}
	log.Println("Quotes served by the in-process simulator")
	return sim, nil
}
