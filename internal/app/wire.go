package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/auctionhaus/marketd/internal/blob/s3"
	"github.com/auctionhaus/marketd/internal/cache/redis"
	"github.com/auctionhaus/marketd/internal/config"
	"github.com/auctionhaus/marketd/internal/crypto"
	"github.com/auctionhaus/marketd/internal/domain"
	"github.com/auctionhaus/marketd/internal/market"
	"github.com/auctionhaus/marketd/internal/notify"
	"github.com/auctionhaus/marketd/internal/platform/chain"
	"github.com/auctionhaus/marketd/internal/platform/local"
	"github.com/auctionhaus/marketd/internal/store/badgerdb"
	"github.com/auctionhaus/marketd/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the
// application modes need to operate. It is constructed by Wire and torn
// down by the returned cleanup function.
type Dependencies struct {
	// Stores
	FixedStore        domain.FixedStore
	EnglishStore      domain.EnglishStore
	DutchStore        domain.DutchStore
	BidStore          domain.BidStore
	SaleStore         domain.SaleStore
	CancellationStore domain.CancellationStore
	AuditStore        domain.AuditStore

	// Caches and coordination
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// External ledger
	Registry domain.AssetRegistry
	Funds    domain.FundPusher
	Operator common.Address

	// Marketplace services
	Fixed   *market.FixedService
	English *market.EnglishService
	Dutch   *market.DutchService

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// needsS3 returns true for modes that require object storage.
func needsS3(mode string) bool {
	switch mode {
	case "archive", "full":
		return true
	default:
		return false
	}
}

// needsServices returns true for modes that mutate marketplace state.
func needsServices(mode string) bool {
	switch mode {
	case "serve", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	mode := strings.ToLower(cfg.Mode)

	// --- Persistence: Postgres by default, Badger for an embedded dev
	// deployment ---
	switch cfg.Storage {
	case "badger":
		bClient, err := badgerdb.New(badgerdb.ClientConfig{
			Dir:      cfg.Badger.Dir,
			InMemory: cfg.Badger.InMemory,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: badger: %w", err)
		}
		closers = append(closers, func() { _ = bClient.Close() })

		deps.FixedStore = badgerdb.NewFixedStore(bClient)
		deps.EnglishStore = badgerdb.NewEnglishStore(bClient)
		deps.DutchStore = badgerdb.NewDutchStore(bClient)
		deps.BidStore = badgerdb.NewBidStore(bClient)
		deps.SaleStore = badgerdb.NewSaleStore(bClient)
		deps.CancellationStore = badgerdb.NewCancellationStore(bClient)
		audit, err := badgerdb.NewAuditStore(bClient)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: badger audit store: %w", err)
		}
		deps.AuditStore = audit

	default:
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
		deps.FixedStore = postgres.NewFixedStore(pool)
		deps.EnglishStore = postgres.NewEnglishStore(pool)
		deps.DutchStore = postgres.NewDutchStore(pool)
		deps.BidStore = postgres.NewBidStore(pool)
		deps.SaleStore = postgres.NewSaleStore(pool)
		deps.CancellationStore = postgres.NewCancellationStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
	}

	// --- Redis: locks, rate limits, price cache, signal bus ---
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

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Asset registry and fund pushes ---
	switch cfg.Chain.Registry {
	case "local":
		registry := local.NewRegistry()
		deps.Registry = registry
		deps.Funds = local.NewFunds()
		if cfg.Chain.PrivateKey != "" {
			signer, err := crypto.NewSigner(cfg.Chain.PrivateKey, int64(cfg.Chain.ChainID))
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: signer: %w", err)
			}
			deps.Operator = signer.Address()
		}
		logger.InfoContext(ctx, "wire: using in-process asset registry",
			slog.String("operator", deps.Operator.Hex()),
		)

	default:
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Chain.PrivateKey,
			EncryptedKeyPath: cfg.Chain.EncryptedKeyPath,
			KeyPassword:      cfg.Chain.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: operator key: %w", err)
		}
		signer, err := crypto.NewSigner(keyHex, int64(cfg.Chain.ChainID))
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
		deps.Operator = signer.Address()

		registry, err := chain.NewRegistry(cfg.Chain.RPCURL, signer)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain registry: %w", err)
		}
		closers = append(closers, registry.Close)
		deps.Registry = registry

		funds, err := chain.NewFunds(cfg.Chain.RPCURL, signer)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: chain funds: %w", err)
		}
		closers = append(closers, funds.Close)
		deps.Funds = funds
	}

	// --- Marketplace services ---
	if needsServices(mode) {
		guards := market.NewGuards(
			deps.Registry, deps.Operator,
			deps.FixedStore, deps.EnglishStore, deps.DutchStore,
		)
		settle := market.NewSettlement(
			deps.Registry, deps.Funds, deps.SaleStore, deps.AuditStore, logger,
		)

		deps.Fixed = market.NewFixedService(
			deps.FixedStore, deps.CancellationStore, guards, deps.LockManager,
			settle, deps.SignalBus, deps.AuditStore, logger,
			cfg.Market.LockTTL.Duration,
		)
		deps.English = market.NewEnglishService(
			deps.EnglishStore, deps.BidStore, deps.CancellationStore, guards,
			deps.LockManager, deps.RateLimiter, settle, deps.SignalBus,
			deps.AuditStore, logger,
			cfg.Market.LockTTL.Duration,
			cfg.Market.BidRateLimit,
			cfg.Market.BidRateWindow.Duration,
		)
		deps.Dutch = market.NewDutchService(
			deps.DutchStore, deps.CancellationStore, guards, deps.LockManager,
			settle, deps.PriceCache, deps.SignalBus, deps.AuditStore, logger,
			cfg.Market.LockTTL.Duration,
			cfg.Market.PriceCacheTTL.Duration,
		)
	}

	// --- S3 blob storage (only for modes that archive) ---
	if needsS3(mode) && cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.SaleStore, deps.AuditStore)
	}

	// --- Notifications ---
	senders := notify.SendersFromConfig(
		cfg.Notify.TelegramToken,
		cfg.Notify.TelegramChatID,
		cfg.Notify.DiscordWebhookURL,
	)
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
