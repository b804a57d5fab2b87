package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/openpredict/marketd/internal/blob/s3"
	"github.com/openpredict/marketd/internal/cache/redis"
	"github.com/openpredict/marketd/internal/config"
	"github.com/openpredict/marketd/internal/domain"
	"github.com/openpredict/marketd/internal/ledger"
	"github.com/openpredict/marketd/internal/market"
	"github.com/openpredict/marketd/internal/notify"
	"github.com/openpredict/marketd/internal/oracle"
	"github.com/openpredict/marketd/internal/server"
	"github.com/openpredict/marketd/internal/server/handler"
	"github.com/openpredict/marketd/internal/server/ws"
	"github.com/openpredict/marketd/internal/service"
	"github.com/openpredict/marketd/internal/store/memory"
	"github.com/openpredict/marketd/internal/store/postgres"
)

// Dependencies bundles everything the application needs to run. It is
// constructed by Wire and torn down by the returned cleanup function.
// Bus, Locks, Hub, and Archiver are nil when their backend is not configured.
type Dependencies struct {
	Settlements domain.SettlementStore
	State       domain.StateStore
	Audit       domain.AuditStore

	Bus   domain.SignalBus
	Locks domain.LockManager

	Collateral *ledger.Token
	Outcomes   *ledger.OutcomeSet

	Service  *service.MarketService
	Server   *server.Server
	Hub      *ws.Hub
	Archiver *s3blob.SettlementArchiver
}

// Wire constructs all concrete dependencies from the configuration and
// returns them with a cleanup function to be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Stores: PostgreSQL when configured, in-memory otherwise ---
	if cfg.Postgres.Enabled() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Settlements = postgres.NewSettlementStore(pool)
		deps.State = postgres.NewStateStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
	} else {
		logger.Info("wire: postgres not configured, using in-memory stores")
		deps.Settlements = memory.NewSettlementStore()
		deps.State = memory.NewStateStore()
		deps.Audit = memory.NewAuditStore()
	}

	// --- Redis: signal bus and distributed lock ---
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Bus = redis.NewSignalBus(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
	} else {
		logger.Info("wire: redis not configured, event fanout and locking disabled")
	}

	// --- In-process ledgers ---
	deps.Collateral = ledger.NewToken("collateral")
	outcomes, err := ledger.NewOutcomeSet(cfg.LedgerAddress(), deps.Collateral, uint8(cfg.Market.OutcomeCount))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: outcome ledger: %w", err)
	}
	deps.Outcomes = outcomes

	// --- Market core ---
	core, err := market.New(market.Config{
		Creator:    cfg.CreatorAddress(),
		Account:    cfg.AccountAddress(),
		Outcomes:   outcomes,
		Oracle:     oracle.NewClient(cfg.Oracle.BaseURL),
		FeeRateNum: cfg.Market.FeeRateNum,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: market: %w", err)
	}

	// --- Notifications ---
	var notifier service.Notifier
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		sender := notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		notifier = notify.NewNotifier([]notify.Sender{sender}, cfg.Notify.Events, logger)
	}

	deps.Service = service.NewMarketService(
		core,
		deps.Settlements,
		deps.State,
		deps.Audit,
		deps.Bus,
		deps.Locks,
		notifier,
		logger,
	)

	// --- WebSocket hub (needs the signal bus) ---
	if deps.Bus != nil {
		deps.Hub = ws.NewHub(deps.Bus, logger)
	}

	// --- Settlement archiver ---
	if cfg.S3.Enabled() {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         true,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewSettlementArchiver(
			s3blob.NewWriter(s3Client),
			deps.Settlements,
			deps.Audit,
			time.Duration(cfg.S3.ArchiveIntervalMin)*time.Minute,
			logger,
		)
	}

	// --- HTTP server ---
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(Version),
		Market: handler.NewMarketHandler(deps.Service, logger),
	}
	if cfg.Server.DevLedger {
		handlers.Ledger = handler.NewLedgerHandler(deps.Collateral, outcomes, cfg.AccountAddress(), logger)
	}
	deps.Server = server.NewServer(server.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		APIKey:      cfg.Server.APIKey,
	}, handlers, deps.Hub, logger)

	return deps, cleanup, nil
}
