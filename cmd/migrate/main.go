// Command migrate applies the SQL migrations in migrations/ against the
// mailbox database. Applied versions are tracked in the schema_migrations
// table via golang-migrate.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/stackmail/mailbox/backend/internal/config"
)

const migrationTimeout = 5 * time.Minute

func main() {
	path := flag.String("path", "migrations", "Path to migrations directory")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	if args[0] == "create" {
		if len(args) < 2 {
			log.Fatal("create requires a migration name")
		}
		if err := createMigration(*path, args[1]); err != nil {
			log.Fatalf("Error: %v", err)
		}
		return
	}

	cfg := config.Load()
	m, err := openMigrate(cfg.Database.DSN(), *path)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	defer m.Close()

	if err := run(m, args[0], args[1:]); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options] <command> [args]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Database migration tool for the mailbox service.\n")
	fmt.Fprintf(os.Stderr, "Connection settings come from the DB_* environment variables.\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  up [N]       Apply all or N pending migrations\n")
	fmt.Fprintf(os.Stderr, "  down [N]     Roll back all or N migrations\n")
	fmt.Fprintf(os.Stderr, "  version      Print current migration version\n")
	fmt.Fprintf(os.Stderr, "  force V      Set version V without running migrations\n")
	fmt.Fprintf(os.Stderr, "  create NAME  Create a new migration file pair\n")
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
}

func run(m *migrate.Migrate, cmd string, args []string) error {
	switch cmd {
	case "up":
		steps, err := optionalSteps(args)
		if err != nil {
			return err
		}
		return apply(m, steps, m.Up)
	case "down":
		steps, err := optionalSteps(args)
		if err != nil {
			return err
		}
		return apply(m, -steps, m.Down)
	case "version":
		return showVersion(m)
	case "force":
		if len(args) < 1 {
			return errors.New("force requires a version number")
		}
		v, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version: %s", args[0])
		}
		log.Printf("Forcing version to %d (no migrations will be run)", v)
		return m.Force(v)
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// optionalSteps parses the optional step count; 0 means all
func optionalSteps(args []string) (int, error) {
	if len(args) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid number of steps: %s", args[0])
	}
	return n, nil
}

// apply runs steps migrations in the signed direction, or all of them
// via the fallback when steps is zero
func apply(m *migrate.Migrate, steps int, all func() error) error {
	before, _, _ := m.Version()

	var err error
	if steps != 0 {
		err = m.Steps(steps)
	} else {
		err = all()
	}
	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("No schema changes to apply")
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	after, _, _ := m.Version()
	log.Printf("Migrated: %d -> %d", before, after)
	return nil
}

func showVersion(m *migrate.Migrate) error {
	v, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Println("No migrations have been applied yet")
			return nil
		}
		return fmt.Errorf("failed to get version: %w", err)
	}
	if dirty {
		log.Printf("Current migration version: %d (dirty)", v)
	} else {
		log.Printf("Current migration version: %d", v)
	}
	return nil
}

// createMigration writes an empty numbered up/down file pair
func createMigration(path, name string) error {
	next, err := nextMigrationNumber(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create migrations directory: %w", err)
	}

	stamp := time.Now().Format(time.RFC3339)
	for _, suffix := range []string{"up", "down"} {
		file := filepath.Join(path, fmt.Sprintf("%03d_%s.%s.sql", next, name, suffix))
		content := fmt.Sprintf("-- %s (%s)\n-- Created: %s\n", name, suffix, stamp)
		if err := os.WriteFile(file, []byte(content), 0644); err != nil {
			return fmt.Errorf("failed to create %s migration: %w", suffix, err)
		}
		log.Printf("Created %s", file)
	}
	return nil
}

func nextMigrationNumber(path string) (int, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, err
	}

	max := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var n int
		if _, err := fmt.Sscanf(entry.Name(), "%d_", &n); err == nil && n > max {
			max = n
		}
	}
	return max + 1, nil
}

func openMigrate(dsn, path string) (*migrate.Migrate, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve migrations path: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+abs, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.LockTimeout = migrationTimeout

	return m, nil
}
