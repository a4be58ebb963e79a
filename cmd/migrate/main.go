// ==============================================================================
// DATABASE MIGRATION - cmd/migrate/main.go
// ==============================================================================
// Applies the schema under migrations/ (distributors, users, clients,
// reminders and the client number sequence).
// ==============================================================================
package main

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"onboard/pkg/config"
	"onboard/pkg/logger"
)

const usage = "Usage: migrate [up|down|steps N|version|force VERSION]"

func main() {
	cfg := config.Load()
	log := logger.New("onboard-migrate")

	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL environment variable is required", nil)
	}
	if len(os.Args) < 2 {
		log.Fatal(usage, nil)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatal("Failed to create migration driver", map[string]interface{}{"error": err.Error()})
	}

	source := "file://" + getEnv("MIGRATIONS_PATH", "migrations")
	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		log.Fatal("Failed to create migrate instance", map[string]interface{}{"error": err.Error(), "source": source})
	}

	if err := run(m, os.Args[1:]); err != nil {
		log.Fatal("Migration command failed", map[string]interface{}{"command": os.Args[1], "error": err.Error()})
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		log.Fatal("Failed to get version", map[string]interface{}{"error": err.Error()})
	}
	log.Info("Migration finished", map[string]interface{}{
		"command": os.Args[1],
		"version": version,
		"dirty":   dirty,
	})
}

func run(m *migrate.Migrate, args []string) error {
	switch args[0] {
	case "up":
		return ignoreNoChange(m.Up())
	case "down":
		return ignoreNoChange(m.Down())
	case "steps":
		n, err := intArg(args)
		if err != nil {
			return err
		}
		return ignoreNoChange(m.Steps(n))
	case "force":
		v, err := intArg(args)
		if err != nil {
			return err
		}
		return m.Force(v)
	case "version":
		return nil
	default:
		return fmt.Errorf("unknown command %q; %s", args[0], usage)
	}
}

func intArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s needs a number; %s", args[0], usage)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", args[1])
	}
	return n, nil
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
