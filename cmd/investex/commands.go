package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Aidin1998/investex/internal/cache"
	"github.com/Aidin1998/investex/internal/catalog"
	"github.com/Aidin1998/investex/internal/database"
	"github.com/Aidin1998/investex/internal/deposit"
	"github.com/Aidin1998/investex/internal/identities"
	"github.com/Aidin1998/investex/internal/ledger"
	"github.com/Aidin1998/investex/internal/messaging"
	"github.com/Aidin1998/investex/internal/purchase"
	"github.com/Aidin1998/investex/internal/server"
	"github.com/Aidin1998/investex/internal/wallet"
	"github.com/Aidin1998/investex/pkg/tracing"
	"github.com/google/subcommands"
	"go.uber.org/zap"
)

const statsInterval = 15 * time.Second

type serveCmd struct {
	noSeed bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the HTTP API" }
func (*serveCmd) Usage() string {
	return `serve [-no-seed]

  Migrates the store, seeds the catalog when it is empty and serves the API
  until interrupted.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.noSeed, "no-seed", false, "skip seeding an empty catalog")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := bootstrap()
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(a.db); err != nil {
		a.logger.Error("Migration failed", zap.Error(err))
		return subcommands.ExitFailure
	}

	if a.cfg.Tracing.Enabled {
		shutdown, err := tracing.Setup(ctx, tracing.Config{
			ServiceName: a.cfg.Tracing.ServiceName,
			Tracing:     true,
			Metrics:     a.cfg.Tracing.Metrics,
		})
		if err != nil {
			a.logger.Error("Failed to set up tracing", zap.Error(err))
			return subcommands.ExitFailure
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				a.logger.Warn("Tracing shutdown failed", zap.Error(err))
			}
		}()
	}

	go database.CollectStats(ctx, a.db, "primary", statsInterval, a.logger)

	timeout := a.cfg.Database.StoreTimeout
	catalogOpts := []catalog.Option{catalog.WithTimeout(timeout)}
	if a.cfg.Redis.Enabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.Addr = a.cfg.Redis.Address
		cacheCfg.Password = a.cfg.Redis.Password
		cacheCfg.DB = a.cfg.Redis.DB
		if a.cfg.Redis.CacheTTL > 0 {
			cacheCfg.TTL = a.cfg.Redis.CacheTTL
		}
		instrumentCache, rdb, err := cache.Connect(ctx, cacheCfg, a.logger)
		if err != nil {
			a.logger.Warn("Instrument cache disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			catalogOpts = append(catalogOpts, catalog.WithCache(instrumentCache))
		}
	}

	var publisher ledger.Publisher
	if a.cfg.Kafka.Enabled {
		kafkaCfg := messaging.DefaultKafkaConfig()
		kafkaCfg.Brokers = a.cfg.Kafka.Brokers
		kafkaCfg.Topic = a.cfg.Kafka.NotificationTopic
		p := messaging.NewNotificationPublisher(kafkaCfg, a.logger)
		defer p.Close()
		publisher = p
	}

	catalogSvc := catalog.NewService(a.db, a.logger, catalogOpts...)
	walletSvc := wallet.NewService(a.db, a.logger, timeout)
	recorder := ledger.NewService(a.db, publisher, a.logger, timeout)

	if a.cfg.Seed.Enabled && !c.noSeed {
		if _, err := seedCatalog(ctx, catalogSvc, a.cfg.Seed.File, a.logger); err != nil {
			a.logger.Error("Seeding failed", zap.Error(err))
			return subcommands.ExitFailure
		}
	}

	srv := server.NewServer(a.logger, a.db, server.Services{
		Identities: identities.NewService(a.logger, a.db, a.cfg.JWT.Secret, a.cfg.JWT.ExpirationHours, timeout),
		Catalog:    catalogSvc,
		Wallets:    walletSvc,
		Purchases: purchase.NewEngine(a.db, catalogSvc, walletSvc, recorder, a.logger,
			purchase.WithAttempts(a.cfg.Purchase.RetryAttempts),
			purchase.WithTimeout(timeout)),
		Deposits: deposit.NewService(a.db, walletSvc, recorder, a.logger, a.cfg.Currency, timeout),
		Ledger:   recorder,
	}, a.cfg.Server)

	if err := srv.Run(ctx); err != nil {
		a.logger.Error("Server stopped", zap.Error(err))
		return subcommands.ExitFailure
	}
	a.logger.Info("Server stopped")
	return subcommands.ExitSuccess
}

type migrateCmd struct{}

func (*migrateCmd) Name() string             { return "migrate" }
func (*migrateCmd) Synopsis() string         { return "create or update the store schema" }
func (*migrateCmd) Usage() string            { return "migrate\n" }
func (*migrateCmd) SetFlags(_ *flag.FlagSet) {}

func (*migrateCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := bootstrap()
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	if err := database.Migrate(a.db); err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	a.logger.Info("Schema migrated", zap.String("driver", a.cfg.Database.Driver))
	return subcommands.ExitSuccess
}

type seedCmd struct {
	file string
}

func (*seedCmd) Name() string     { return "seed" }
func (*seedCmd) Synopsis() string { return "load the initial instrument catalog" }
func (*seedCmd) Usage() string {
	return `seed [-file <path>]

  Inserts the instruments from a YAML seed file when the catalog is empty.
  Without -file the configured seed file is used, falling back to the
  built-in catalog when that file does not exist.
`
}

func (c *seedCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.file, "file", "", "YAML seed file")
}

func (c *seedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := bootstrap()
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	file := c.file
	if file == "" {
		file = a.cfg.Seed.File
	} else if _, err := os.Stat(file); err != nil {
		fail("seed file %s: %v", file, err)
		return subcommands.ExitUsageError
	}

	if err := database.Migrate(a.db); err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	svc := catalog.NewService(a.db, a.logger, catalog.WithTimeout(a.cfg.Database.StoreTimeout))
	if _, err := seedCatalog(ctx, svc, file, a.logger); err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type backfillRiskCmd struct{}

func (*backfillRiskCmd) Name() string             { return "backfill-risk" }
func (*backfillRiskCmd) Synopsis() string         { return "set risk 1 on instruments stored without one" }
func (*backfillRiskCmd) Usage() string            { return "backfill-risk\n" }
func (*backfillRiskCmd) SetFlags(_ *flag.FlagSet) {}

func (*backfillRiskCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := bootstrap()
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	svc := catalog.NewService(a.db, a.logger, catalog.WithTimeout(a.cfg.Database.StoreTimeout))
	n, err := svc.BackfillRisk(ctx)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	a.logger.Info("Risk backfilled", zap.Int64("instruments", n))
	return subcommands.ExitSuccess
}

type createAdminCmd struct {
	name     string
	email    string
	password string
}

func (*createAdminCmd) Name() string     { return "create-admin" }
func (*createAdminCmd) Synopsis() string { return "create or promote an administrator" }
func (*createAdminCmd) Usage() string {
	return `create-admin -email <email> -password <password> [-name <name>]

  Creates an administrator account, or promotes the existing user with that
  email after checking the password.
`
}

func (c *createAdminCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "Administrator", "display name")
	f.StringVar(&c.email, "email", "", "login email (required)")
	f.StringVar(&c.password, "password", "", "login password, at least 8 characters (required)")
}

func (c *createAdminCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.email == "" || len(c.password) < 8 {
		fail("-email and a -password of at least 8 characters are required")
		return subcommands.ExitUsageError
	}

	a, err := bootstrap()
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	defer a.close()

	if err := database.Migrate(a.db); err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}

	svc := identities.NewService(a.logger, a.db, a.cfg.JWT.Secret, a.cfg.JWT.ExpirationHours, a.cfg.Database.StoreTimeout)
	user, err := svc.EnsureAdmin(ctx, c.name, c.email, c.password)
	if err != nil {
		fail("%v", err)
		return subcommands.ExitFailure
	}
	a.logger.Info("Administrator ready", zap.String("user_id", user.ID.String()), zap.String("email", user.Email))
	return subcommands.ExitSuccess
}

// seedCatalog loads instruments from file, or the built-in set when the file
// is missing, and inserts them into an empty catalog.
func seedCatalog(ctx context.Context, svc *catalog.Service, file string, logger *zap.Logger) (int, error) {
	instruments, err := catalog.LoadSeedFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("Seed file not found, using built-in catalog", zap.String("file", file))
		instruments, err = catalog.DefaultSeed(), nil
	}
	if err != nil {
		return 0, err
	}

	n, err := svc.Seed(ctx, instruments)
	if err != nil {
		return 0, err
	}
	logger.Info("Catalog seeded", zap.Int("inserted", n), zap.String("file", file))
	return n, nil
}
