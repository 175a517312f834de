package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/pflag"

	"github.com/liamcoop/labparser/internal/config"
	"github.com/liamcoop/labparser/internal/logger"
)

func main() {
	var databaseURL string
	var migrationsPath string
	var command string

	fs := pflag.NewFlagSet("labparser-migrate", pflag.ExitOnError)
	fs.StringVarP(&databaseURL, "database", "d", "", "Database URL (falls back to LABPARSE_DATABASE_URL / DATABASE_URL)")
	fs.StringVarP(&migrationsPath, "path", "p", "migrations", "Path to migrations directory")
	fs.StringVarP(&command, "command", "c", "up", "Migration command: up, down, version, force")
	_ = fs.Parse(os.Args[1:])

	if databaseURL == "" {
		settings, err := config.LoadSettings()
		if err != nil {
			logger.Fatal("failed to load settings", "error", err)
		}
		databaseURL = settings.DatabaseURL
	}
	if databaseURL == "" {
		logger.Fatal("database URL is required, use --database or DATABASE_URL")
	}

	logger.Info("connecting to database", "database", config.MaskDatabaseURL(databaseURL), "path", migrationsPath)

	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
	if err != nil {
		logger.Fatal("failed to create migration instance", "error", err)
	}
	defer m.Close()

	switch command {
	case "up":
		logger.Info("running migrations up")
		err = m.Up()
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			logger.Info("no migrations to run, database is up to date")
		case err != nil:
			logger.Fatal("failed to run migrations", "error", err)
		default:
			logger.Info("migrations completed")
		}

	case "down":
		logger.Info("rolling back migrations")
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Fatal("failed to roll back migrations", "error", err)
		}
		logger.Info("rollback completed")

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			logger.Fatal("failed to get version", "error", err)
		}
		logger.Info("current version", "version", version, "dirty", dirty)

	case "force":
		if fs.NArg() < 1 {
			logger.Fatal("force requires a version number: --command force <version>")
		}
		version, err := strconv.Atoi(fs.Arg(0))
		if err != nil {
			logger.Fatal("invalid version number", "error", err)
		}
		if err := m.Force(version); err != nil {
			logger.Fatal("failed to force version", "error", err)
		}
		logger.Info("forced version", "version", version)

	default:
		logger.Fatal("unknown command, use up, down, version or force", "command", command)
	}
}
