package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jmoiron/sqlx"
	"github.com/kubeusers/backend/internal/auth/password"
	"github.com/kubeusers/backend/internal/auth/token"
	"github.com/kubeusers/backend/internal/config"
	"github.com/kubeusers/backend/internal/database"
	"github.com/kubeusers/backend/internal/logger"
	"github.com/kubeusers/backend/internal/repositories"
	"github.com/kubeusers/backend/internal/services"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const usage = `usage: authctl <command> [arguments]

commands:
  migrate up|down|version   manage the users schema
  seed                      create the bootstrap accounts if missing
  hash-password             read a password from the terminal and print its hash
  set-active USER true|false  activate or deactivate an account`

// readPassword reads without echo; replaced in tests
var readPassword = term.ReadPassword

// loadConfig is replaced in tests
var loadConfig = config.Load

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "migrate":
		return runMigrate(ctx, cfg, rest, out)
	case "seed":
		return runSeed(ctx, cfg, log, rest, out)
	case "hash-password":
		return runHashPassword(cfg, out)
	case "set-active":
		return runSetActive(ctx, cfg, log, rest, out)
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func openDB(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	return database.Open(ctx, cfg.Database)
}

func runMigrate(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	if len(args) != 1 {
		return errors.New("usage: authctl migrate up|down|version")
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := database.NewMigrator(db.DB, cfg.Database.Driver)
	if err != nil {
		return err
	}

	switch args[0] {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "version":
		version, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			fmt.Fprintln(out, "no migrations applied")
			return nil
		}
		if verr != nil {
			return verr
		}
		fmt.Fprintf(out, "version %d (dirty: %t)\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate direction %q", args[0])
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", args[0], err)
	}
	fmt.Fprintf(out, "migrate %s: done\n", args[0])
	return nil
}

func runSeed(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(out)
	withTestUser := fs.Bool("test-user", cfg.Seed.TestUser, "also create the test user")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	hasher, err := password.NewHasher(cfg.Password.Algorithm, cfg.Password.BcryptCost)
	if err != nil {
		return err
	}

	repo := repositories.NewAccountRepository(db, log)
	svc := services.NewAccountService(repo, hasher, token.NewGenerator(cfg.JWT.Secret, cfg.JWT.AccessTokenExpiry), nil, nil, log)

	seeds := services.DefaultSeedAccounts(cfg.Seed.AdminUsername, cfg.Seed.AdminEmail, cfg.Seed.AdminPassword, *withTestUser)
	created, err := svc.EnsureSeedAccounts(ctx, seeds)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "seeded %d account(s)\n", created)
	return nil
}

func runHashPassword(cfg *config.Config, out io.Writer) error {
	hasher, err := password.NewHasher(cfg.Password.Algorithm, cfg.Password.BcryptCost)
	if err != nil {
		return err
	}

	fmt.Fprint(out, "Enter password: ")
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	if len(pw) == 0 {
		return errors.New("password must not be empty")
	}

	hash, err := hasher.Hash(string(pw))
	if err != nil {
		return err
	}

	fmt.Fprintln(out, hash)
	return nil
}

func runSetActive(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string, out io.Writer) error {
	if len(args) != 2 {
		return errors.New("usage: authctl set-active USER true|false")
	}
	active, err := strconv.ParseBool(args[1])
	if err != nil {
		return fmt.Errorf("invalid status %q: %w", args[1], err)
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := repositories.NewAccountRepository(db, log)
	if err := repo.SetActive(ctx, args[0], active); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s is_active=%t\n", args[0], active)
	return nil
}
