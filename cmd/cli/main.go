package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/brokersim/brokersim/internal/config"
	"github.com/brokersim/brokersim/internal/quotes"
	"github.com/brokersim/brokersim/internal/storage/postgres"
	"github.com/brokersim/brokersim/internal/storage/redisstore"
)

func main() {
	_ = godotenv.Load()

	var rootCmd = &cobra.Command{
		Use:   "brokersim",
		Short: "BrokerSim admin CLI",
		Long:  `Administration tool for the BrokerSim trading simulator: schema migration, account creation, quote checks and health probes.`,
	}

	var migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the ledger schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate()
		},
	}

	var createUserCmd = &cobra.Command{
		Use:   "create-user [username] [password]",
		Short: "Create an account with the starting cash balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreateUser(args[0], args[1])
		},
	}

	var quoteCmd = &cobra.Command{
		Use:   "quote [symbol]",
		Short: "Look up a quote through the configured source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuote(args[0])
		},
	}

	var healthCmd = &cobra.Command{
		Use:   "health",
		Short: "Check database and session store connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth()
		},
	}

	rootCmd.AddCommand(migrateCmd, createUserCmd, quoteCmd, healthCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func connectDB(cfg *config.Config) (*postgres.DB, error) {
	db, err := postgres.NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return db, nil
}

func runMigrate() error {
	cfg := config.Load()

	db, err := connectDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fmt.Println("Applying schema...")
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	fmt.Println("Schema up to date")
	return nil
}

func runCreateUser(username, password string) error {
	cfg := config.Load()

	db, err := connectDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	ledger := postgres.NewLedger(db.Pool())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := ledger.CreateUser(ctx, username, string(hash))
	if err != nil {
		return err
	}

	fmt.Printf("Created user %s (id %d) with $%s\n", user.Username, user.ID, user.Cash.StringFixed(2))
	return nil
}

func runQuote(symbol string) error {
	cfg := config.Load()

	var source quotes.Source
	if cfg.QuoteURL != "" {
		source = quotes.NewClient(cfg.QuoteURL, cfg.QuoteTimeout)
	} else {
		sim, err := quotes.NewSimulator(cfg.QuoteSymbols, time.Now().UnixNano())
		if err != nil {
			return err
		}
		source = sim
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.QuoteTimeout)
	defer cancel()

	quote, err := source.Lookup(ctx, symbol)
	if err != nil {
		return err
	}

	fmt.Printf("%s: $%s\n", quote.Symbol, quote.Price.StringFixed(2))
	return nil
}

func runHealth() error {
	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fmt.Print("PostgreSQL: ")
	db, err := connectDB(cfg)
	if err != nil {
		fmt.Printf("error: %v\n", err)
	} else {
		defer db.Close()
		if err := db.HealthCheck(ctx); err != nil {
			fmt.Printf("error: %v\n", err)
		} else {
			fmt.Println("ok")
		}
	}

	fmt.Print("Redis: ")
	store, err := redisstore.New(cfg)
	if err != nil {
		fmt.Printf("unavailable: %v\n", err)
		return nil
	}
	defer store.Close()

	if err := store.HealthCheck(ctx); err != nil {
		fmt.Printf("error: %v\n", err)
	} else {
		fmt.Println("ok")
	}

	return nil
}
