// Command migrate applies the schema migrations for the usage database.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/sentinel-ops/sentinel-gateway/internal/config"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	steps := flag.Int("steps", 0, "number of steps (0 = all)")
	dbURL := flag.String("db-url", "", "database URL (overrides env)")
	migrationsPath := flag.String("path", "migrations", "path to migrations directory")
	flag.Parse()

	if err := run(*direction, *steps, *dbURL, *migrationsPath); err != nil {
		log.Fatal(err)
	}
}

func run(direction string, steps int, dbURL, migrationsPath string) error {
	dsn := dbURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		dsn = dsnFromEnv()
	}

	m, err := migrate.New("file://"+migrationsPath, dsn)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	switch direction {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	default:
		return fmt.Errorf("invalid direction %q (use 'up' or 'down')", direction)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration %s failed: %w", direction, err)
	}

	v, dirty, _ := m.Version()
	fmt.Printf("migration %s complete (version: %d, dirty: %v)\n", direction, v, dirty)
	return nil
}

// dsnFromEnv assembles the DSN from the gateway's database defaults with
// the usual DB_* overrides, so the CLI and the gateway point at the same
// database out of the box.
func dsnFromEnv() string {
	db := config.DefaultConfig().Database
	db.Password = "sentinel-dev"

	if v := os.Getenv("DB_HOST"); v != "" {
		db.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			db.Port = p
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		db.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		db.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		db.Name = v
	}
	return db.DSN()
}
